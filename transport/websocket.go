package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 64 << 10,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// DialWebSocket connects to a producer served by WebSocketHandler.
func DialWebSocket(ctx context.Context, rawURL string) (Channel, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf(`transport: dial %v: %v: %w`, rawURL, resp.Status, err)
		}
		return nil, fmt.Errorf(`transport: dial %v: %w`, rawURL, err)
	}
	return NewWebSocket(ws), nil
}

// WebSocketHandler upgrades each request and runs serve on the resulting
// channel. The channel is closed when serve returns.
func WebSocketHandler(logger *slog.Logger, serve func(ctx context.Context, ch Channel) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error(`websocket upgrade failed`, slog.String(`error`, err.Error()))
			return
		}
		ch := NewWebSocket(ws)
		defer ch.Close()

		logger.Info(`websocket client connected`, slog.String(`remote`, r.RemoteAddr))
		if err := serve(r.Context(), ch); err != nil {
			logger.Warn(`websocket session failed`,
				slog.String(`remote`, r.RemoteAddr),
				slog.String(`error`, err.Error()))
		}
	})
}

// WebSocket adapts a websocket connection to a byte stream. Every Write is
// sent as one binary message, reads span message boundaries.
type WebSocket struct {
	ws *websocket.Conn

	rmu sync.Mutex
	r   io.Reader

	wmu    sync.Mutex
	once   sync.Once
	closed error
}

// NewWebSocket wraps ws.
func NewWebSocket(ws *websocket.Conn) *WebSocket {
	return &WebSocket{ws: ws}
}

// Read implements io.Reader. A close frame from the peer reads as io.EOF.
func (c *WebSocket) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	for {
		if c.r == nil {
			typ, r, err := c.ws.NextReader()
			if err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if errors.Is(err, io.EOF) {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write implements io.Writer.
func (c *WebSocket) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and closes the connection.
func (c *WebSocket) Close() error {
	c.once.Do(func() {
		// WriteControl may run concurrently with a blocked Write.
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, ``)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closed = c.ws.Close()
	})
	return c.closed
}
