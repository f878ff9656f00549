package bridge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"traffic-light/internal/domain/light"
	"traffic-light/internal/observability"
	"traffic-light/pkg/events"
	"traffic-light/pkg/logger"

	relay_errors "traffic-light/pkg/errors"
)

// Conn is the streaming client as seen by the bridge. The transport owns it;
// the bridge only borrows it while the connection is open.
type Conn interface {
	ID() string
	// Send writes one frame. Any error means the connection is unusable.
	Send(ctx context.Context, frame []byte) error
	// Close is idempotent and tolerates a connection the transport already closed.
	Close() error
}

type State int

const (
	StateAccepted State = iota
	StateAttached
	StatePumping
	StateTeardown
	StateTerminated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateAttached:
		return "attached"
	case StatePumping:
		return "pumping"
	case StateTeardown:
		return "teardown"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Bridge attaches streaming connections to broker subscriptions. One Bridge
// serves every connection; all per-connection state lives in Serve.
type Bridge struct {
	subscriber events.Subscriber
	topic      string
	log        *logger.Logger
}

func New(subscriber events.Subscriber, topic string, l *logger.Logger) *Bridge {
	if l == nil {
		l = logger.NewNop()
	}
	return &Bridge{
		subscriber: subscriber,
		topic:      topic,
		log:        l.With(zap.String("component", "bridge"), zap.String("topic", topic)),
	}
}

// Serve subscribes on behalf of conn and forwards every event until ctx is
// cancelled, the subscription ends, or a send fails. The subscription and
// the connection are released on every exit path. A nil return means the
// connection ended normally.
func (b *Bridge) Serve(ctx context.Context, conn Conn) (err error) {
	log := b.log.WithContext(ctx).With(zap.String("client_id", conn.ID()))
	state := StateAccepted

	sub, err := b.subscriber.Subscribe(ctx, b.topic)
	if err != nil {
		state = StateFailed
		_ = conn.Close()
		observability.BridgeTerminations.WithLabelValues(state.String()).Inc()
		log.Warn("attach failed", zap.Error(err))
		if !errors.Is(err, relay_errors.ErrSubscribe) {
			err = fmt.Errorf("%w: %w", relay_errors.ErrSubscribe, err)
		}
		return err
	}
	state = StateAttached
	log.Debug("attached", zap.Stringer("state", state), zap.String("subscription_id", sub.ID()))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bridge panic: %v", r)
		}
		last := state
		state = StateTeardown
		if uerr := sub.Unsubscribe(); uerr != nil {
			log.Warn("unsubscribe failed", zap.Stringer("state", state), zap.Error(uerr))
		}
		if cerr := conn.Close(); cerr != nil {
			log.Debug("close failed", zap.Error(cerr))
		}
		state = StateTerminated
		if err != nil && !errors.Is(err, relay_errors.ErrConnectionSend) {
			state = StateFailed
			log.Error("bridge terminated", zap.Stringer("state", state), zap.Stringer("last_state", last), zap.Error(err))
		} else {
			log.Debug("bridge terminated", zap.Stringer("state", state), zap.Stringer("last_state", last), zap.NamedError("cause", err))
		}
		observability.BridgeTerminations.WithLabelValues(state.String()).Inc()
	}()

	state = StatePumping
	return b.pump(ctx, sub, conn, log)
}

func (b *Bridge) pump(ctx context.Context, sub events.Subscription, conn Conn, log *zap.Logger) error {
	for {
		payload, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, relay_errors.ErrSubscriptionClosed) {
				return nil
			}
			return err
		}

		frame, err := encodeFrame(payload)
		if err != nil {
			observability.BridgeFrames.WithLabelValues("serialization_error").Inc()
			log.Warn("dropping event", zap.Error(err), zap.ByteString("payload", payload))
			continue
		}

		if err := conn.Send(ctx, frame); err != nil {
			observability.BridgeFrames.WithLabelValues("send_error").Inc()
			return fmt.Errorf("%w: %w", relay_errors.ErrConnectionSend, err)
		}
		observability.BridgeFrames.WithLabelValues("sent").Inc()
	}
}

// encodeFrame validates a broker payload and produces the outbound message.
func encodeFrame(payload []byte) ([]byte, error) {
	event, err := light.DecodeEvent(payload)
	if err != nil {
		return nil, err
	}
	return light.Encode(event)
}
