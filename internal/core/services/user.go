package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chaty/internal/core/domain"
)

// UserService owns the durable presence columns and their cached view.
type UserService struct {
	log   *slog.Logger
	repo  domain.UserRepository
	cache *CacheReader
}

func NewUserService(log *slog.Logger, repo domain.UserRepository, cache *CacheReader) *UserService {
	return &UserService{
		log:   log,
		repo:  repo,
		cache: cache,
	}
}

// Presence returns the stored status of userID. An unknown user reads as
// offline with no last-seen time.
func (s *UserService) Presence(ctx context.Context, userID string) (domain.UserPresence, error) {
	p, err := ReadThrough(ctx, s.cache, presenceKey(userID), 0, func(ctx context.Context) (domain.UserPresence, error) {
		p, err := s.repo.FindPresence(ctx, userID)
		if err != nil {
			return domain.UserPresence{}, err
		}
		return *p, nil
	})
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.UserPresence{UserID: userID}, nil
	}
	return p, err
}

// SetOnline persists a status change stamped with the time of the event and
// drops the cached view after the write lands.
func (s *UserService) SetOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	if err := s.repo.SetOnlineStatus(ctx, userID, online, at); err != nil {
		return fmt.Errorf("set online status: %w", err)
	}
	s.cache.Invalidate(ctx, presenceKey(userID))
	return nil
}
