package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"chaty/internal/core/contracts"
	"chaty/internal/core/domain"
	"chaty/pkg/logging"
)

// NotificationWorker drains the push stream and hands each job to the
// delivery provider.
type NotificationWorker struct {
	log    *slog.Logger
	queue  contracts.MessageQueue
	sender contracts.Notifier
}

func NewNotificationWorker(
	log *slog.Logger,
	queue contracts.MessageQueue,
	sender contracts.Notifier,
) *NotificationWorker {
	return &NotificationWorker{
		log:    log,
		queue:  queue,
		sender: sender,
	}
}

// Run blocks until ctx is done.
func (w *NotificationWorker) Run(ctx context.Context) error {
	w.log.InfoContext(ctx, "worker - run - subscribe to notification stream")
	return w.queue.Subscribe(ctx, w.ProcessMessage)
}

// ProcessMessage delivers one job, then acks and deletes the entry. A failed
// delivery is left pending for the queue to redeliver; an undecodable one is
// dropped.
func (w *NotificationWorker) ProcessMessage(ctx context.Context, messageID string, raw []byte) error {
	var job domain.PushJob
	if err := json.Unmarshal(raw, &job); err != nil {
		w.log.ErrorContext(ctx, "worker - process message - wrong payload", "message_id", messageID, logging.Err(err))
		w.settle(ctx, messageID)
		return fmt.Errorf("decode push job: %w", err)
	}
	if err := w.sender.SendPushNotification(ctx, job.Tokens, job.Notification); err != nil {
		w.log.ErrorContext(ctx, "worker - process message - send failed", "message_id", messageID, logging.Err(err))
		return err
	}
	w.settle(ctx, messageID)
	w.log.DebugContext(ctx, "worker - process message - delivered", "message_id", messageID, "tokens", len(job.Tokens))
	return nil
}

func (w *NotificationWorker) settle(ctx context.Context, messageID string) {
	if err := w.queue.Acknowledge(ctx, messageID); err != nil {
		w.log.ErrorContext(ctx, "worker - process message - acknowledge message failed", "message_id", messageID, logging.Err(err))
		return
	}
	// the entry is already acked; a failed delete only costs stream memory
	if err := w.queue.Delete(ctx, messageID); err != nil {
		w.log.ErrorContext(ctx, "worker - process message - delete message failed", "message_id", messageID, logging.Err(err))
	}
}
