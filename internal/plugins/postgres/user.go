package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chaty/internal/core/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// SetOnlineStatus is last-write-wins by event time: presence_updated_at
// records the stamp of the last applied write and older writes match no row.
// last_seen_at only moves on the offline edge.
func (r *UserRepo) SetOnlineStatus(ctx context.Context, userID string, isOnline bool, at time.Time) error {
	if userID == "" {
		return domain.ErrInvalidUserID
	}
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		UPDATE users
		SET is_online = $2,
		    last_seen_at = CASE WHEN $2 THEN last_seen_at ELSE $3 END,
		    presence_updated_at = $3
		WHERE id = $1
		  AND (presence_updated_at IS NULL OR presence_updated_at <= $3)
	`, userID, isOnline, at)
	return err
}

func (r *UserRepo) FindPresence(ctx context.Context, userID string) (*domain.UserPresence, error) {
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	p := &domain.UserPresence{}
	var lastSeen sql.NullTime
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT id, is_online, last_seen_at FROM users WHERE id = $1
	`, userID).Scan(&p.UserID, &p.IsOnline, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		p.LastSeenAt = &t
	}
	return p, nil
}

type PushTokenRepo struct {
	db *sql.DB
}

func NewPushTokenRepo(db *sql.DB) *PushTokenRepo {
	return &PushTokenRepo{db: db}
}

func (r *PushTokenRepo) FindActiveTokens(ctx context.Context, userID string) ([]string, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT fcm_token FROM user_push_tokens
		WHERE user_id = $1 AND is_active
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}
