package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chaty/internal/core/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{
		db: db,
	}
}

func (r *MessageRepo) Create(ctx context.Context, msg domain.NewMessage) (*domain.Message, error) {
	m := &domain.Message{
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
	}
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		INSERT INTO private_messages (conversation_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, msg.ConversationID, msg.SenderID, msg.Content).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) FindCreatedAt(ctx context.Context, convID, messageID string) (time.Time, error) {
	var createdAt time.Time
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT created_at FROM private_messages
		WHERE id = $1 AND conversation_id = $2
	`, messageID, convID).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, domain.ErrMessageNotFound
		}
		return time.Time{}, err
	}
	return createdAt, nil
}

func (r *MessageRepo) FindUnreadIDs(ctx context.Context, convID, receiverID string, upto time.Time) ([]string, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT m.id
		FROM private_messages m
		WHERE m.conversation_id = $1
		  AND m.sender_id <> $2
		  AND m.created_at <= $3
		  AND NOT EXISTS (
		      SELECT 1 FROM private_message_reads r
		       WHERE r.message_id = m.id AND r.receiver_id = $2)
		ORDER BY m.created_at ASC, m.id ASC
	`, convID, receiverID, upto)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *MessageRepo) FindPage(ctx context.Context, convID string, limit int, cursor string) (domain.Page[domain.Message], error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at,
		       (SELECT count(*) FROM private_message_reads r WHERE r.message_id = m.id)
		FROM private_messages m
		WHERE m.conversation_id = $1
		  AND ($2 = '' OR (m.created_at, m.id) < (
		      SELECT k.created_at, k.id FROM private_messages k WHERE k.id::text = $2))
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3
	`, convID, cursor, limit+1)
	if err != nil {
		return domain.Page[domain.Message]{}, err
	}
	defer rows.Close()
	msgs := make([]domain.Message, 0, limit)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.SenderID,
			&m.Content,
			&m.CreatedAt,
			&m.ReadsCount,
		); err != nil {
			return domain.Page[domain.Message]{}, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Message]{}, err
	}
	return paginate(msgs, limit, func(m domain.Message) string { return m.ID }), nil
}

type ReadReceiptRepo struct {
	db *sql.DB
}

func NewReadReceiptRepo(db *sql.DB) *ReadReceiptRepo {
	return &ReadReceiptRepo{db: db}
}

// receiptBatch keeps each insert well under the 65535 bind parameter limit.
const receiptBatch = 1000

// CreateMany inserts one row per message in batches; rows that already exist
// are skipped.
func (r *ReadReceiptRepo) CreateMany(ctx context.Context, messageIDs []string, receiverID string, readAt time.Time) error {
	exec := GetExecutor(ctx, r.db)
	for start := 0; start < len(messageIDs); start += receiptBatch {
		batch := messageIDs[start:min(start+receiptBatch, len(messageIDs))]
		args := make([]any, 0, len(batch)+2)
		args = append(args, receiverID, readAt)
		values := make([]string, 0, len(batch))
		for i, id := range batch {
			values = append(values, fmt.Sprintf("($%d, $1, $2)", i+3))
			args = append(args, id)
		}
		query := `INSERT INTO private_message_reads (message_id, receiver_id, read_at) VALUES ` +
			strings.Join(values, ", ") +
			` ON CONFLICT (message_id, receiver_id) DO NOTHING`
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert read receipts: %w", err)
		}
	}
	return nil
}
