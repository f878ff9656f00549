package services

import (
	"context"
	"errors"

	"traffic-light/internal/domain/light"
	"traffic-light/internal/observability"
	"traffic-light/pkg/events"
	"traffic-light/pkg/logger"

	relay_errors "traffic-light/pkg/errors"
)

// LightService is the publish entry point. It never waits for subscribers.
type LightService struct {
	publisher events.Publisher
	topic     string
	log       *logger.Logger
}

func NewLightService(publisher events.Publisher, topic string, l *logger.Logger) *LightService {
	if l == nil {
		l = logger.NewNop()
	}
	return &LightService{publisher: publisher, topic: topic, log: l}
}

func (s *LightService) Topic() string {
	return s.topic
}

// Update validates color and publishes it. Invalid colors fail with
// ErrValidation and never reach the broker; broker failures wrap ErrPublish.
func (s *LightService) Update(ctx context.Context, color string) (light.Event, error) {
	event, err := light.NewEvent(color)
	if err != nil {
		observability.PublishTotal.WithLabelValues("invalid").Inc()
		return light.Event{}, err
	}

	payload, err := light.Encode(event)
	if err != nil {
		observability.PublishTotal.WithLabelValues("error").Inc()
		return light.Event{}, err
	}

	if err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
		observability.PublishTotal.WithLabelValues("error").Inc()
		s.log.WithContext(ctx).Sugar().Errorf("Error publishing to %s: %v", s.topic, err)
		if !errors.Is(err, relay_errors.ErrPublish) {
			err = errors.Join(relay_errors.ErrPublish, err)
		}
		return light.Event{}, err
	}

	observability.PublishTotal.WithLabelValues("ok").Inc()
	return event, nil
}
