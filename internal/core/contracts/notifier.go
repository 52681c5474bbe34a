package contracts

import (
	"context"

	"chaty/internal/core/domain"
)

// Notifier delivers a push notification to device tokens.
type Notifier interface {
	SendPushNotification(ctx context.Context, tokens []string, n domain.PushNotification) error
}
