package broker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"traffic-light/pkg/logger"

	relay_errors "traffic-light/pkg/errors"
)

// RedisBroker fans out through Redis PUBLISH/SUBSCRIBE. Every subscription
// holds its own PubSub connection so one slow client never stalls another.
type RedisBroker struct {
	client     *goredis.Client
	bufferSize int
	log        *logger.Logger
	closed     atomic.Bool
	live       registry
}

func NewRedis(client *goredis.Client, bufferSize int, l *logger.Logger) *RedisBroker {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &RedisBroker{
		client:     client,
		bufferSize: bufferSize,
		log:        l.With(zap.String("component", "broker"), zap.String("driver", DriverRedis)),
		live:       newRegistry(),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.closed.Load() {
		return fmt.Errorf("%w: %w", relay_errors.ErrPublish, relay_errors.ErrBrokerClosed)
	}
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("%w: %w", relay_errors.ErrPublish, err)
	}
	return nil
}

// Subscribe returns only after Redis has confirmed the subscription, so
// every publish made afterwards reaches it.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("%w: %w", relay_errors.ErrSubscribe, relay_errors.ErrBrokerClosed)
	}

	pubsub := b.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %w", relay_errors.ErrSubscribe, err)
	}

	sub := newSubscription(DriverRedis, topic, b.bufferSize)
	sub.release = func() error {
		b.live.remove(sub)
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		// Close alone releases the connection; UNSUBSCRIBE is best effort.
		if err := pubsub.Unsubscribe(ctx, topic); err != nil {
			b.log.Logger.Debug("redis unsubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
		return pubsub.Close()
	}
	b.live.add(sub)

	msgs := pubsub.Channel(goredis.WithChannelSize(b.bufferSize))
	go func() {
		for msg := range msgs {
			sub.box.offer([]byte(msg.Payload))
		}
		// The channel only closes once the PubSub is gone.
		sub.box.close()
	}()

	return sub, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return relay_errors.ErrBrokerClosed
	}
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.live.closeAll()
	if err := b.client.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
