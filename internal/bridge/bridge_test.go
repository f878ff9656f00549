package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-light/internal/broker"
	"traffic-light/pkg/events"

	relay_errors "traffic-light/pkg/errors"
)

const topic = "traffic-light-channel"

// fakeConn records frames and can be told to fail or panic on send.
type fakeConn struct {
	id      string
	mu      sync.Mutex
	frames  []string
	sendErr error
	panicky bool
	closes  int
	frameCh chan string
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, frameCh: make(chan string, 16)}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panicky {
		panic("boom")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, string(frame))
	c.frameCh <- string(frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) failWith(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *fakeConn) next(t *testing.T) string {
	t.Helper()
	select {
	case f := <-c.frameCh:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
		return ""
	}
}

// failingSubscriber always refuses to subscribe.
type failingSubscriber struct{}

func (failingSubscriber) Subscribe(context.Context, string) (events.Subscription, error) {
	return nil, errors.New("broker unreachable")
}

func serve(t *testing.T, b *Bridge, ctx context.Context, conn Conn) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- b.Serve(ctx, conn) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not terminate")
		return nil
	}
}

func waitForSubscribers(t *testing.T, mb *broker.MemoryBroker, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return mb.SubscriberCount(topic) == n
	}, time.Second, 5*time.Millisecond)
}

func TestBridge_ForwardsEventsInOrder(t *testing.T) {
	mb := broker.NewMemory(8)
	defer mb.Close()
	b := New(mb, topic, nil)
	conn := newFakeConn("c1")

	ctx, cancel := context.WithCancel(context.Background())
	done := serve(t, b, ctx, conn)
	waitForSubscribers(t, mb, 1)

	for _, c := range []string{"green", "yellow", "red"} {
		require.NoError(t, mb.Publish(context.Background(), topic, []byte(`{"color":"`+c+`"}`)))
	}
	assert.JSONEq(t, `{"color":"green"}`, conn.next(t))
	assert.JSONEq(t, `{"color":"yellow"}`, conn.next(t))
	assert.JSONEq(t, `{"color":"red"}`, conn.next(t))

	cancel()
	assert.NoError(t, wait(t, done))
	assert.Equal(t, 1, conn.closeCount())
	assert.Equal(t, 0, mb.SubscriberCount(topic))
}

func TestBridge_AttachFailureClosesConnection(t *testing.T) {
	b := New(failingSubscriber{}, topic, nil)
	conn := newFakeConn("c1")

	err := b.Serve(context.Background(), conn)
	require.Error(t, err)
	assert.ErrorIs(t, err, relay_errors.ErrSubscribe)
	assert.Equal(t, 1, conn.closeCount())
}

func TestBridge_SendFailureTearsDown(t *testing.T) {
	mb := broker.NewMemory(8)
	defer mb.Close()
	b := New(mb, topic, nil)

	dead := newFakeConn("dead")
	alive := newFakeConn("alive")
	dead.failWith(errors.New("broken pipe"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deadDone := serve(t, b, ctx, dead)
	aliveDone := serve(t, b, ctx, alive)
	waitForSubscribers(t, mb, 2)

	require.NoError(t, mb.Publish(context.Background(), topic, []byte(`{"color":"red"}`)))

	err := wait(t, deadDone)
	assert.ErrorIs(t, err, relay_errors.ErrConnectionSend)
	assert.Equal(t, 1, dead.closeCount())
	waitForSubscribers(t, mb, 1)

	// the surviving client keeps receiving
	assert.JSONEq(t, `{"color":"red"}`, alive.next(t))
	require.NoError(t, mb.Publish(context.Background(), topic, []byte(`{"color":"green"}`)))
	assert.JSONEq(t, `{"color":"green"}`, alive.next(t))

	cancel()
	assert.NoError(t, wait(t, aliveDone))
}

func TestBridge_SkipsUndecodablePayloads(t *testing.T) {
	mb := broker.NewMemory(8)
	defer mb.Close()
	b := New(mb, topic, nil)
	conn := newFakeConn("c1")

	ctx, cancel := context.WithCancel(context.Background())
	done := serve(t, b, ctx, conn)
	waitForSubscribers(t, mb, 1)

	for _, payload := range []string{`{"color":"blue"}`, `garbage`, `{"color":"yellow"}`} {
		require.NoError(t, mb.Publish(context.Background(), topic, []byte(payload)))
	}
	assert.JSONEq(t, `{"color":"yellow"}`, conn.next(t))
	assert.Equal(t, 0, conn.closeCount())

	cancel()
	assert.NoError(t, wait(t, done))
}

func TestBridge_PanicStillTearsDown(t *testing.T) {
	mb := broker.NewMemory(8)
	defer mb.Close()
	b := New(mb, topic, nil)
	conn := newFakeConn("c1")
	conn.panicky = true

	done := serve(t, b, context.Background(), conn)
	waitForSubscribers(t, mb, 1)
	require.NoError(t, mb.Publish(context.Background(), topic, []byte(`{"color":"red"}`)))

	err := wait(t, done)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Equal(t, 1, conn.closeCount())
	assert.Equal(t, 0, mb.SubscriberCount(topic))
}

func TestBridge_BrokerShutdownEndsServe(t *testing.T) {
	mb := broker.NewMemory(8)
	b := New(mb, topic, nil)
	conn := newFakeConn("c1")

	done := serve(t, b, context.Background(), conn)
	waitForSubscribers(t, mb, 1)

	require.NoError(t, mb.Close())
	assert.NoError(t, wait(t, done))
	assert.Equal(t, 1, conn.closeCount())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pumping", StatePumping.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(42)", State(42).String())
}
