package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrClientClosed = errors.New("websocket client closed")

// Client is one streaming connection. Writes are serialized; Close may be
// called from any goroutine, any number of times.
type Client struct {
	id        string
	conn      *websocket.Conn
	writeWait time.Duration

	mu        sync.Mutex // serializes data frames
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// NewClient wraps an upgraded connection
func NewClient(conn *websocket.Conn, writeWait time.Duration) *Client {
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &Client{
		id:        uuid.New().String(),
		conn:      conn,
		writeWait: writeWait,
		closed:    make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Send writes frame as a single text message.
func (c *Client) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(c.deadline(ctx))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Ping sends a ping control frame.
func (c *Client) Ping() error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// PingLoop pings every period until ctx is done, the client is closed or a
// ping fails.
func (c *Client) PingLoop(ctx context.Context, period time.Duration) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				return
			}
		}
	}
}

// Close sends a best-effort close frame and closes the underlying connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Client) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
