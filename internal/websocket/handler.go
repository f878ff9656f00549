package websocket

import (
	"context"
	"net/http"
	"time"

	"traffic-light/internal/bridge"
	"traffic-light/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxMessageSize = 512

type Options struct {
	AllowedOrigins []string
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
}

func (o Options) withDefaults() Options {
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	return o
}

// Handler upgrades streaming requests and hands each connection to the bridge.
type Handler struct {
	bridge   *bridge.Bridge
	hub      *Hub
	opts     Options
	upgrader websocket.Upgrader
	log      *WebSocketLogger
}

func NewHandler(b *bridge.Bridge, hub *Hub, opts Options, l *logger.Logger) *Handler {
	opts = opts.withDefaults()
	return &Handler{
		bridge: b,
		hub:    hub,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		log: NewWebSocketLogger(l),
	}
}

// Connect handles GET /traffic-light. It blocks for the lifetime of the
// connection.
func (h *Handler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.log.Warn("upgrade_failed", "", zap.Error(err), zap.String("remote_addr", c.ClientIP()))
		return
	}

	client := NewClient(conn, h.opts.WriteWait)
	if !h.hub.Register(client) {
		_ = client.Close()
		return
	}
	defer h.hub.Unregister(client)

	ctx := context.WithValue(c.Request.Context(), logger.ClientIdKey, client.ID())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.log.Info("connected", client.ID(), zap.String("remote_addr", c.ClientIP()))

	go func() {
		defer cancel()
		h.readLoop(client)
	}()
	go client.PingLoop(ctx, h.opts.PingPeriod)

	if err := h.bridge.Serve(ctx, client); err != nil {
		h.log.Error("stream_ended", client.ID(), err)
		return
	}
	h.log.Info("disconnected", client.ID())
}

// readLoop discards inbound messages and returns when the peer goes away or
// stops answering pings.
func (h *Handler) readLoop(client *Client) {
	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.log.Warn("read_failed", client.ID(), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
