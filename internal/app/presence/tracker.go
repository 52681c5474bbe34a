package presence

import (
	"context"
	"hash/fnv"
	"sync"

	"chaty/internal/metrics"
)

const stripeCount = 64

type stripe struct {
	mu     sync.Mutex
	counts map[string]int
}

// Tracker counts live connections per user in process memory. Updates for
// one user are serialized by the stripe that owns the user id; different
// users rarely contend.
type Tracker struct {
	stripes [stripeCount]stripe
}

func NewTracker() *Tracker {
	t := &Tracker{}
	for i := range t.stripes {
		t.stripes[i].counts = make(map[string]int)
	}
	return t
}

func (t *Tracker) stripeFor(userID string) *stripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &t.stripes[h.Sum32()%stripeCount]
}

func (t *Tracker) MarkConnected(_ context.Context, userID string) (bool, error) {
	s := t.stripeFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[userID]++
	online := s.counts[userID] == 1
	if online {
		metrics.UsersOnline.Inc()
	}
	return online, nil
}

// MarkDisconnected without a matching connect leaves the count at zero and
// reports no edge.
func (t *Tracker) MarkDisconnected(_ context.Context, userID string) (bool, error) {
	s := t.stripeFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.counts[userID]
	if !ok {
		return false, nil
	}
	if n <= 1 {
		delete(s.counts, userID)
		metrics.UsersOnline.Dec()
		return true, nil
	}
	s.counts[userID] = n - 1
	return false, nil
}

func (t *Tracker) Count(_ context.Context, userID string) (int, error) {
	s := t.stripeFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[userID], nil
}
