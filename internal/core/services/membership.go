package services

import (
	"context"
	"fmt"

	"chaty/internal/core/domain"
)

// Membership resolves conversation participants through the cache.
// Participants never change after creation, so the entry needs no
// invalidation.
type Membership struct {
	cache *CacheReader
	repo  domain.ConversationRepository
}

func NewMembership(cache *CacheReader, repo domain.ConversationRepository) *Membership {
	return &Membership{cache: cache, repo: repo}
}

func (m *Membership) Participants(ctx context.Context, convID string) (*domain.Participants, error) {
	return ReadThrough(ctx, m.cache, participantsKey(convID), 0, func(ctx context.Context) (*domain.Participants, error) {
		return m.repo.FindParticipants(ctx, convID)
	})
}

// Authorize returns the participants when userID is one of them. A
// non-participant gets the same not-found answer as an unknown conversation.
func (m *Membership) Authorize(ctx context.Context, convID, userID string) (*domain.Participants, error) {
	p, err := m.Participants(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !p.Has(userID) {
		return nil, fmt.Errorf("%w: %w", domain.ErrConversationNotFound, domain.ErrNotParticipant)
	}
	return p, nil
}
