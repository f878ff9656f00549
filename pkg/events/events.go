package events

import "context"

// Publisher hands a payload to the fan-out mechanism for topic. It returns
// once the payload is accepted, not once subscribers have read it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscriber registers interest in a topic.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription is one consumer's view of a topic. Next yields payloads
// published after the subscription was created, in publish order, until
// Unsubscribe is called or the underlying transport goes away.
type Subscription interface {
	ID() string
	Topic() string
	Next(ctx context.Context) ([]byte, error)
	// Unsubscribe is idempotent.
	Unsubscribe() error
}

type Broker interface {
	Publisher
	Subscriber
	Ping(ctx context.Context) error
	Close() error
}
