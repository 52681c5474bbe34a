package presence

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerEdges(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker()

	online, err := tr.MarkConnected(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, online)

	online, _ = tr.MarkConnected(ctx, "u1")
	assert.False(t, online, "second device is not an online edge")

	offline, _ := tr.MarkDisconnected(ctx, "u1")
	assert.False(t, offline)
	n, _ := tr.Count(ctx, "u1")
	assert.Equal(t, 1, n)

	offline, _ = tr.MarkDisconnected(ctx, "u1")
	assert.True(t, offline)
	n, _ = tr.Count(ctx, "u1")
	assert.Equal(t, 0, n)
}

func TestTrackerUnmatchedDisconnect(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker()

	offline, err := tr.MarkDisconnected(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, offline)

	n, _ := tr.Count(ctx, "ghost")
	assert.Equal(t, 0, n)

	online, _ := tr.MarkConnected(ctx, "ghost")
	assert.True(t, online, "floor keeps the next connect an online edge")
}

func TestTrackerRandomSequencesBalanceEdges(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		tr := NewTracker()
		var onlineEdges, offlineEdges int
		for i := 0; i < 200; i++ {
			if rng.Intn(2) == 0 {
				if ok, _ := tr.MarkConnected(ctx, "u"); ok {
					onlineEdges++
				}
			} else {
				if ok, _ := tr.MarkDisconnected(ctx, "u"); ok {
					offlineEdges++
				}
			}
			n, _ := tr.Count(ctx, "u")
			require.GreaterOrEqual(t, n, 0)
		}
		n, _ := tr.Count(ctx, "u")
		for ; n > 0; n-- {
			if ok, _ := tr.MarkDisconnected(ctx, "u"); ok {
				offlineEdges++
			}
		}
		assert.Equal(t, onlineEdges, offlineEdges)
	}
}

func TestTrackerConcurrentConnects(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker()
	var edges atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := tr.MarkConnected(ctx, "u1"); ok {
				edges.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), edges.Load())

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := tr.MarkDisconnected(ctx, "u1"); ok {
				edges.Add(-1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(0), edges.Load())
	n, _ := tr.Count(ctx, "u1")
	assert.Equal(t, 0, n)
}
