package broker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"traffic-light/pkg/logger"

	relay_errors "traffic-light/pkg/errors"
)

const natsFlushTimeout = 2 * time.Second

// DialNATS connects to url with reconnect logging wired to l.
func DialNATS(url string, l *logger.Logger, opts ...nats.Option) (*nats.Conn, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if len(opts) == 0 {
		opts = append(opts,
			nats.Name("traffic-light"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					l.Warnf("nats disconnected: %v", err)
				}
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				l.Infof("nats reconnected to %s", nc.ConnectedUrl())
			}),
		)
	}
	return nats.Connect(url, opts...)
}

// NATSBroker uses the topic as a NATS subject.
type NATSBroker struct {
	conn       *nats.Conn
	bufferSize int
	log        *logger.Logger
	closed     atomic.Bool
	live       registry
}

func NewNATS(conn *nats.Conn, bufferSize int, l *logger.Logger) *NATSBroker {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &NATSBroker{
		conn:       conn,
		bufferSize: bufferSize,
		log:        l.With(zap.String("component", "broker"), zap.String("driver", DriverNATS)),
		live:       newRegistry(),
	}
}

func (b *NATSBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.closed.Load() {
		return fmt.Errorf("%w: %w", relay_errors.ErrPublish, relay_errors.ErrBrokerClosed)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", relay_errors.ErrPublish, err)
	}
	if err := b.conn.Publish(topic, payload); err != nil {
		return fmt.Errorf("%w: %w", relay_errors.ErrPublish, err)
	}
	return nil
}

func (b *NATSBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("%w: %w", relay_errors.ErrSubscribe, relay_errors.ErrBrokerClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", relay_errors.ErrSubscribe, err)
	}

	sub := newSubscription(DriverNATS, topic, b.bufferSize)
	// NATS runs the handler on one goroutine per subscription, which keeps
	// offers ordered.
	nsub, err := b.conn.Subscribe(topic, func(msg *nats.Msg) {
		sub.box.offer(msg.Data)
	})
	if err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%w: %w", relay_errors.ErrSubscribe, err)
	}
	nsub.SetClosedHandler(func(string) { sub.box.close() })

	// Make sure the server knows about the interest before returning.
	if err := b.conn.FlushTimeout(natsFlushTimeout); err != nil {
		_ = nsub.Unsubscribe()
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%w: %w", relay_errors.ErrSubscribe, err)
	}

	sub.release = func() error {
		b.live.remove(sub)
		if err := nsub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			return err
		}
		return nil
	}
	b.live.add(sub)
	return sub, nil
}

func (b *NATSBroker) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return relay_errors.ErrBrokerClosed
	}
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats connection is %s", b.conn.Status())
	}
	return nil
}

func (b *NATSBroker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.live.closeAll()
	b.conn.Close()
	return nil
}
