package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chaty/internal/core/domain"
	"chaty/pkg/logging"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NotificationQueue is a Redis stream read by a consumer group. It doubles as
// the Notifier used by the relay: a push becomes a stream entry delivered
// later by the notification worker.
type NotificationQueue struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	log      *slog.Logger

	// pending entries idle this long are claimed and handed out again
	claimIdle     time.Duration
	claimEvery    time.Duration
	maxDeliveries int64
}

func NewNotificationQueue(log *slog.Logger, rdb *redis.Client, namespace, stream, group string) *NotificationQueue {
	return &NotificationQueue{
		rdb:      rdb,
		stream:   namespaced(namespace, "stream:"+stream),
		group:    group,
		consumer: uuid.NewString(),
		block:    2 * time.Second,
		log:      log,

		claimIdle:     time.Minute,
		claimEvery:    30 * time.Second,
		maxDeliveries: 5,
	}
}

func (q *NotificationQueue) Publish(ctx context.Context, payload []byte) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: 1000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": payload},
	}).Err()
}

// SendPushNotification enqueues the delivery instead of performing it.
func (q *NotificationQueue) SendPushNotification(ctx context.Context, tokens []string, n domain.PushNotification) error {
	if len(tokens) == 0 {
		return nil
	}
	raw, err := json.Marshal(domain.PushJob{Tokens: tokens, Notification: n})
	if err != nil {
		return fmt.Errorf("encode push job: %w", err)
	}
	if err := q.Publish(ctx, raw); err != nil {
		return fmt.Errorf("enqueue push job: %w", err)
	}
	return nil
}

// Subscribe blocks reading new entries until ctx is done. A handler error
// leaves the entry pending. Pending entries idle for claimIdle, including
// those of a consumer that went away, are claimed and handled again until
// they reach maxDeliveries, after which they are dropped.
func (q *NotificationQueue) Subscribe(
	ctx context.Context,
	handler func(ctx context.Context, messageID string, data []byte) error,
) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	var lastClaim time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(lastClaim) >= q.claimEvery {
			q.reclaim(ctx, handler)
			lastClaim = time.Now()
		}
		res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    q.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.log.Warn("queue - subscribe - read failed", "stream", q.stream, logging.Err(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		for _, stream := range res {
			q.dispatch(ctx, stream.Messages, handler)
		}
	}
}

func (q *NotificationQueue) dispatch(
	ctx context.Context,
	msgs []redis.XMessage,
	handler func(ctx context.Context, messageID string, data []byte) error,
) {
	for _, msg := range msgs {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			q.drop(ctx, msg.ID)
			continue
		}
		if err := handler(ctx, msg.ID, []byte(raw)); err != nil {
			q.log.Error("queue - subscribe - handler failed", "message_id", msg.ID, logging.Err(err))
		}
	}
}

func (q *NotificationQueue) reclaim(
	ctx context.Context,
	handler func(ctx context.Context, messageID string, data []byte) error,
) {
	pending, err := q.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.log.Warn("queue - reclaim - pending failed", "stream", q.stream, logging.Err(err))
		}
		return
	}
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		if p.Idle < q.claimIdle {
			continue
		}
		if p.RetryCount >= q.maxDeliveries {
			q.log.Error("queue - reclaim - deliveries exhausted, dropping", "message_id", p.ID, "deliveries", p.RetryCount)
			q.drop(ctx, p.ID)
			continue
		}
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return
	}
	msgs, err := q.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.claimIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		q.log.Warn("queue - reclaim - claim failed", "stream", q.stream, logging.Err(err))
		return
	}
	q.log.Info("queue - reclaim - redelivering", "stream", q.stream, "count", len(msgs))
	q.dispatch(ctx, msgs, handler)
}

func (q *NotificationQueue) drop(ctx context.Context, messageID string) {
	if err := q.Acknowledge(ctx, messageID); err != nil {
		q.log.Warn("queue - drop - acknowledge failed", "message_id", messageID, logging.Err(err))
		return
	}
	if err := q.Delete(ctx, messageID); err != nil {
		q.log.Warn("queue - drop - delete failed", "message_id", messageID, logging.Err(err))
	}
}

func (q *NotificationQueue) Acknowledge(ctx context.Context, messageID string) error {
	return q.rdb.XAck(ctx, q.stream, q.group, messageID).Err()
}

func (q *NotificationQueue) Delete(ctx context.Context, messageID string) error {
	return q.rdb.XDel(ctx, q.stream, messageID).Err()
}

// Pending reports how many delivered entries have not been acknowledged.
func (q *NotificationQueue) Pending(ctx context.Context) (int64, error) {
	res, err := q.rdb.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}
