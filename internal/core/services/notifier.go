package services

import (
	"context"

	"chaty/internal/core/domain"
)

// NopNotifier is wired when push delivery is not configured.
type NopNotifier struct{}

func (NopNotifier) SendPushNotification(context.Context, []string, domain.PushNotification) error {
	return nil
}
