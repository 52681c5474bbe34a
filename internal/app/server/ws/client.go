package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chaty/internal/core/domain"
	"chaty/internal/metrics"
	"chaty/pkg/logging"

	"github.com/oklog/ulid/v2"
)

const sendBufferSize = 256

var errBufferFull = errors.New("send buffer full")

// Client is one live connection as seen by the registry. Outbound frames go
// through a bounded buffer drained by a dedicated writer goroutine, so a slow
// peer never blocks a broadcaster.
type Client struct {
	id     string
	userID string
	ws     *WebSocket
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	out    chan []byte
	once   sync.Once
	done   chan struct{}
}

func NewClient(parent context.Context, log *slog.Logger, ws *WebSocket, userID string) *Client {
	ctx, cancel := context.WithCancel(parent)
	c := &Client{
		id:     ulid.Make().String(),
		userID: userID,
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	c.log = log.With(logging.Connection(c.id), logging.User(userID))
	go c.writeLoop()
	return c
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

func (c *Client) WebSocket() *WebSocket { return c.ws }

// Context is cancelled once the client is closed.
func (c *Client) Context() context.Context { return c.ctx }

// Send queues data without blocking. A full buffer drops the frame.
func (c *Client) Send(_ context.Context, data []byte) error {
	if c.ctx.Err() != nil {
		return domain.ErrConnectionClosed
	}
	select {
	case c.out <- data:
		return nil
	default:
		metrics.DroppedFrames.Inc()
		return errBufferFull
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		c.ws.Close()
	})
}

// Done is closed when the writer goroutine has exited.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
		c.Close()
	}()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.out:
			if err := c.ws.WriteMessage(data); err != nil {
				c.log.Debug("ws client - write - failed", logging.Err(err))
				return
			}
		case <-ticker.C:
			if err := c.ws.WritePing(); err != nil {
				c.log.Debug("ws client - ping - failed", logging.Err(err))
				return
			}
		}
	}
}
