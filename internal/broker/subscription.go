package broker

import (
	"context"
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/google/uuid"

	"traffic-light/internal/observability"
	relay_errors "traffic-light/pkg/errors"
)

const defaultBufferSize = 16

// mailbox is the bounded per-subscription queue. When it is full the oldest
// payload is discarded so the newest state always gets through.
// offer must not be called concurrently for the same mailbox.
type mailbox struct {
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newMailbox(size int) *mailbox {
	return &mailbox{
		queue: make(chan []byte, max(size, 1)),
		done:  make(chan struct{}),
	}
}

// offer enqueues payload without blocking and reports how many queued
// payloads were discarded to make room.
func (m *mailbox) offer(payload []byte) (dropped int) {
	select {
	case <-m.done:
		return 0
	default:
	}
	for {
		select {
		case m.queue <- payload:
			return dropped
		default:
		}
		select {
		case <-m.queue:
			dropped++
			observability.DroppedEvents.Inc()
		default:
		}
	}
}

func (m *mailbox) next(ctx context.Context) ([]byte, error) {
	select {
	case <-m.done:
		return nil, relay_errors.ErrSubscriptionClosed
	default:
	}
	select {
	case payload := <-m.queue:
		return payload, nil
	case <-m.done:
		return nil, relay_errors.ErrSubscriptionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *mailbox) close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// subscription is shared by every driver. release frees the driver side
// resources and runs at most once.
type subscription struct {
	id      string
	topic   string
	driver  string
	box     *mailbox
	once    sync.Once
	release func() error
}

func newSubscription(driver, topic string, bufferSize int) *subscription {
	observability.ActiveSubscriptions.WithLabelValues(driver).Inc()
	return &subscription{
		id:     uuid.NewString(),
		topic:  topic,
		driver: driver,
		box:    newMailbox(bufferSize),
	}
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Topic() string {
	return s.topic
}

func (s *subscription) Next(ctx context.Context) ([]byte, error) {
	return s.box.next(ctx)
}

// Unsubscribe closes the event sequence and releases driver resources. Only
// the first call can return an error.
func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.box.close()
		observability.ActiveSubscriptions.WithLabelValues(s.driver).Dec()
		if s.release != nil {
			err = s.release()
		}
	})
	return err
}

// registry tracks live subscriptions of a driver so Close can end them.
type registry struct {
	subs *haxmap.Map[string, *subscription]
}

func newRegistry() registry {
	return registry{subs: haxmap.New[string, *subscription]()}
}

func (r registry) add(s *subscription) {
	r.subs.Set(s.id, s)
}

func (r registry) remove(s *subscription) {
	r.subs.Del(s.id)
}

func (r registry) len() int {
	return int(r.subs.Len())
}

// closeAll unsubscribes everything still registered.
func (r registry) closeAll() {
	var live []*subscription
	r.subs.ForEach(func(_ string, s *subscription) bool {
		live = append(live, s)
		return true
	})
	for _, s := range live {
		_ = s.Unsubscribe()
	}
}
