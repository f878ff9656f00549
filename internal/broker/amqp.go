package broker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"traffic-light/pkg/logger"

	relay_errors "traffic-light/pkg/errors"
)

// AMQPBroker maps each topic to a fanout exchange. Every subscription gets
// an exclusive, auto-deleted queue bound to that exchange on its own channel.
type AMQPBroker struct {
	conn       *amqp.Connection
	pub        *amqp.Channel
	declared   *haxmap.Map[string, struct{}]
	bufferSize int
	log        *logger.Logger
	closed     atomic.Bool
	live       registry
}

func DialAMQP(url string, bufferSize int, l *logger.Logger) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return NewAMQP(conn, pub, bufferSize, l), nil
}

func NewAMQP(conn *amqp.Connection, pub *amqp.Channel, bufferSize int, l *logger.Logger) *AMQPBroker {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if l == nil {
		l = logger.NewNop()
	}
	b := &AMQPBroker{
		conn:       conn,
		pub:        pub,
		declared:   haxmap.New[string, struct{}](),
		bufferSize: bufferSize,
		log:        l.With(zap.String("component", "broker"), zap.String("driver", DriverAMQP)),
		live:       newRegistry(),
	}

	go func() {
		if err := <-conn.NotifyClose(make(chan *amqp.Error, 1)); err != nil {
			b.log.Errorf("amqp connection closed: %v", err)
		}
	}()
	return b
}

func declareExchange(ch *amqp.Channel, topic string) error {
	return ch.ExchangeDeclare(topic, amqp.ExchangeFanout, false, false, false, false, nil)
}

func (b *AMQPBroker) ensureExchange(topic string) error {
	if _, ok := b.declared.Get(topic); ok {
		return nil
	}
	if err := declareExchange(b.pub, topic); err != nil {
		return err
	}
	b.declared.Set(topic, struct{}{})
	return nil
}

func (b *AMQPBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.closed.Load() {
		return fmt.Errorf("%w: %w", relay_errors.ErrPublish, relay_errors.ErrBrokerClosed)
	}
	if err := b.ensureExchange(topic); err != nil {
		return fmt.Errorf("%w: %w", relay_errors.ErrPublish, err)
	}
	err := b.pub.PublishWithContext(ctx, topic, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", relay_errors.ErrPublish, err)
	}
	return nil
}

func (b *AMQPBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("%w: %w", relay_errors.ErrSubscribe, relay_errors.ErrBrokerClosed)
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", relay_errors.ErrSubscribe, err)
	}
	sub := newSubscription(DriverAMQP, topic, b.bufferSize)
	deliveries, err := consumeFanout(ch, topic, sub.id)
	if err != nil {
		_ = ch.Close()
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%w: %w", relay_errors.ErrSubscribe, err)
	}

	sub.release = func() error {
		b.live.remove(sub)
		if err := ch.Cancel(sub.id, false); err != nil && !errors.Is(err, amqp.ErrClosed) {
			b.log.Logger.Debug("amqp cancel failed", zap.String("topic", topic), zap.Error(err))
		}
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
		return nil
	}
	b.live.add(sub)

	go func() {
		for d := range deliveries {
			sub.box.offer(d.Body)
		}
		sub.box.close()
	}()
	return sub, nil
}

func consumeFanout(ch *amqp.Channel, topic, consumer string) (<-chan amqp.Delivery, error) {
	if err := declareExchange(ch, topic); err != nil {
		return nil, err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, err
	}
	if err := ch.QueueBind(q.Name, "", topic, false, nil); err != nil {
		return nil, err
	}
	return ch.Consume(q.Name, consumer, true, true, false, false, nil)
}

func (b *AMQPBroker) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return relay_errors.ErrBrokerClosed
	}
	if b.conn.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

func (b *AMQPBroker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.live.closeAll()
	_ = b.pub.Close()
	if err := b.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}
