package broker

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"

	relay_errors "traffic-light/pkg/errors"
)

// MemoryBroker fans out inside the process. It is the driver used when no
// external broker is configured and by tests.
type MemoryBroker struct {
	topics     *haxmap.Map[string, *memoryTopic]
	bufferSize int
	closed     atomic.Bool
	live       registry
}

type memoryTopic struct {
	name string
	// mu orders publishes so every subscriber sees the same sequence. It is
	// only held for non-blocking enqueues.
	mu   sync.Mutex
	subs *haxmap.Map[string, *subscription]
}

func NewMemory(bufferSize int) *MemoryBroker {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &MemoryBroker{
		topics:     haxmap.New[string, *memoryTopic](),
		bufferSize: bufferSize,
		live:       newRegistry(),
	}
}

func (b *MemoryBroker) topic(name string) *memoryTopic {
	t, _ := b.topics.GetOrCompute(name, func() *memoryTopic {
		return &memoryTopic{
			name: name,
			subs: haxmap.New[string, *subscription](),
		}
	})
	return t
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.closed.Load() {
		return fmt.Errorf("%w: %w", relay_errors.ErrPublish, relay_errors.ErrBrokerClosed)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", relay_errors.ErrPublish, err)
	}
	t, ok := b.topics.Get(topic)
	if !ok {
		return nil
	}

	data := bytes.Clone(payload)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs.ForEach(func(_ string, s *subscription) bool {
		s.box.offer(data)
		return true
	})
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("%w: %w", relay_errors.ErrSubscribe, relay_errors.ErrBrokerClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", relay_errors.ErrSubscribe, err)
	}

	t := b.topic(topic)
	sub := newSubscription(DriverMemory, topic, b.bufferSize)
	sub.release = func() error {
		t.subs.Del(sub.id)
		b.live.remove(sub)
		return nil
	}
	t.subs.Set(sub.id, sub)
	b.live.add(sub)
	return sub, nil
}

// SubscriberCount returns the number of active subscriptions on topic.
func (b *MemoryBroker) SubscriberCount(topic string) int {
	t, ok := b.topics.Get(topic)
	if !ok {
		return 0
	}
	return int(t.subs.Len())
}

func (b *MemoryBroker) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return relay_errors.ErrBrokerClosed
	}
	return nil
}

// Close ends every live subscription. Further publishes and subscribes fail.
func (b *MemoryBroker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.live.closeAll()
	return nil
}
