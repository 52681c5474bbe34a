package contracts

import (
	"context"
)

type MessageQueue interface {
	// Publish appends a payload to the stream.
	Publish(ctx context.Context, payload []byte) error
	// Subscribe reads the stream as a member of the consumer group until ctx is done.
	Subscribe(ctx context.Context, handler func(ctx context.Context, messageID string, data []byte) error) error
	// Acknowledge removes a delivered entry from the group's pending list.
	Acknowledge(ctx context.Context, messageID string) error
	// Delete drops an entry from the stream.
	Delete(ctx context.Context, messageID string) error
}
