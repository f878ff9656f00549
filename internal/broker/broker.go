package broker

import (
	"context"
	"fmt"
	"time"

	"traffic-light/internal/redis"
	"traffic-light/pkg/events"
	"traffic-light/pkg/logger"

	relay_errors "traffic-light/pkg/errors"
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverNATS   = "nats"
	DriverAMQP   = "amqp"
)

type (
	Broker       = events.Broker
	Subscription = events.Subscription
)

// Config selects and configures the fan-out driver.
type Config struct {
	Driver     string
	BufferSize int
	Redis      redis.Config
	NATSURL    string
	AMQPURL    string
}

// New connects the configured driver. The returned broker is meant to live
// for the whole process and must be closed at shutdown.
func New(ctx context.Context, cfg Config, l *logger.Logger) (Broker, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(cfg.BufferSize), nil
	case DriverRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedis(client, cfg.BufferSize, l), nil
	case DriverNATS:
		conn, err := DialNATS(cfg.NATSURL, l)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		return NewNATS(conn, cfg.BufferSize, l), nil
	case DriverAMQP:
		b, err := DialAMQP(cfg.AMQPURL, cfg.BufferSize, l)
		if err != nil {
			return nil, fmt.Errorf("connect to amqp: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", relay_errors.ErrUnknownDriver, cfg.Driver)
	}
}

// releaseTimeout bounds the network calls made while tearing down a
// subscription.
const releaseTimeout = 2 * time.Second
