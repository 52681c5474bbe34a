package postgres

import (
	"context"
	"database/sql"
	"errors"

	"chaty/internal/core/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) FindParticipants(ctx context.Context, convID string) (*domain.Participants, error) {
	p := &domain.Participants{}
	query := `SELECT id, user1_id, user2_id FROM private_conversations WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, query, convID).Scan(&p.ConversationID, &p.User1ID, &p.User2ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *ConversationRepo) FindByID(ctx context.Context, convID string) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	query := `SELECT id, user1_id, user2_id, created_at FROM private_conversations WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, query, convID).Scan(&c.ID, &c.User1ID, &c.User2ID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return c, nil
}

// Conversations are ordered by their last activity: the newest message, or
// the creation time for an empty conversation. The cursor row is looked up
// inside the same result so pagination is keyset on (activity, id).
const findByUserQuery = `
WITH convs AS (
	SELECT c.id,
	       peer.id           AS peer_id,
	       peer.username     AS peer_name,
	       peer.last_seen_at AS peer_seen_at,
	       lm.id             AS lm_id,
	       lm.sender_id      AS lm_sender_id,
	       lm.content        AS lm_content,
	       lm.created_at     AS lm_created_at,
	       COALESCE(lm.created_at, c.created_at) AS activity
	FROM private_conversations c
	JOIN users peer
	  ON peer.id = CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END
	LEFT JOIN LATERAL (
		SELECT m.id, m.sender_id, m.content, m.created_at
		FROM private_messages m
		WHERE m.conversation_id = c.id
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1
	) lm ON true
	WHERE (c.user1_id = $1 OR c.user2_id = $1)
	  AND ($2 = '' OR peer.username ILIKE '%' || $2 || '%')
)
SELECT convs.id, convs.peer_id, convs.peer_name, convs.peer_seen_at,
       convs.lm_id, convs.lm_sender_id, convs.lm_content, convs.lm_created_at,
       convs.activity,
       (SELECT count(*)
          FROM private_messages m
         WHERE m.conversation_id = convs.id
           AND m.sender_id <> $1
           AND NOT EXISTS (
               SELECT 1 FROM private_message_reads r
                WHERE r.message_id = m.id AND r.receiver_id = $1)) AS unread
FROM convs
WHERE $3 = ''
   OR (convs.activity, convs.id) < (SELECT k.activity, k.id FROM convs k WHERE k.id::text = $3)
ORDER BY convs.activity DESC, convs.id DESC
LIMIT $4`

func (r *ConversationRepo) FindByUser(
	ctx context.Context,
	userID string,
	limit int,
	search, cursor string,
) (domain.Page[domain.ConversationSummary], error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, findByUserQuery, userID, search, cursor, limit+1)
	if err != nil {
		return domain.Page[domain.ConversationSummary]{}, err
	}
	defer rows.Close()

	items := make([]domain.ConversationSummary, 0, limit)
	for rows.Next() {
		var (
			s         domain.ConversationSummary
			peerSeen  sql.NullTime
			lmID      sql.NullString
			lmSender  sql.NullString
			lmContent sql.NullString
			lmCreated sql.NullTime
		)
		if err := rows.Scan(
			&s.ID, &s.PeerID, &s.PeerName, &peerSeen,
			&lmID, &lmSender, &lmContent, &lmCreated,
			&s.UpdatedAt, &s.UnreadCount,
		); err != nil {
			return domain.Page[domain.ConversationSummary]{}, err
		}
		if peerSeen.Valid {
			t := peerSeen.Time
			s.PeerSeenAt = &t
		}
		if lmID.Valid {
			s.LastMessage = &domain.Message{
				ID:             lmID.String,
				ConversationID: s.ID,
				SenderID:       lmSender.String,
				Content:        lmContent.String,
				CreatedAt:      lmCreated.Time,
			}
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.ConversationSummary]{}, err
	}
	return paginate(items, limit, func(s domain.ConversationSummary) string { return s.ID }), nil
}

// paginate trims the look-ahead row fetched past limit and turns it into a cursor.
func paginate[T any](items []T, limit int, id func(T) string) domain.Page[T] {
	page := domain.Page[T]{Data: items}
	if limit > 0 && len(items) > limit {
		page.Data = items[:limit]
		next := id(page.Data[limit-1])
		page.NextCursor = &next
	}
	return page
}
