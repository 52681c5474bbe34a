package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chaty/pkg/logging"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024
)

// WebSocket serializes writes to a gorilla connection; gorilla allows one
// concurrent writer and one concurrent reader.
type WebSocket struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex
	once    sync.Once
}

func NewWebSocket(log *slog.Logger, conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn, log: log}
}

func (w *WebSocket) WriteMessage(data []byte) error {
	return w.write(websocket.TextMessage, data)
}

func (w *WebSocket) WritePing() error {
	return w.write(websocket.PingMessage, nil)
}

func (w *WebSocket) write(kind int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(kind, data)
}

// ReadLoop delivers every non-empty text frame to onMsg, one at a time and
// in arrival order, until the peer goes away or ctx is done.
func (w *WebSocket) ReadLoop(ctx context.Context, onMsg func([]byte)) {
	defer w.Close()

	w.conn.SetReadLimit(maxMessageSize)
	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for ctx.Err() == nil {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				w.log.WarnContext(ctx, "ws - read loop - unexpected close", logging.Err(err))
			}
			return
		}
		if len(data) > 0 {
			onMsg(data)
		}
	}
}

func (w *WebSocket) Close() {
	w.once.Do(func() {
		w.writeMu.Lock()
		_ = w.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.writeMu.Unlock()
		_ = w.conn.Close()
	})
}
