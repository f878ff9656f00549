package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PublishTotal counts publish attempts by outcome (ok, invalid, error).
	PublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "light_relay_publish_total",
		Help: "Total number of publish requests by result",
	}, []string{"result"})

	// ActiveSubscriptions tracks subscriptions currently registered with the broker.
	ActiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "light_relay_active_subscriptions",
		Help: "Current number of active broker subscriptions",
	}, []string{"driver"})

	// DroppedEvents counts payloads discarded because a subscription queue was full.
	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "light_relay_dropped_events_total",
		Help: "Events discarded by the newest-wins overflow policy",
	})

	// ActiveConnections tracks attached streaming clients.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "light_relay_active_connections",
		Help: "Current number of open streaming connections",
	})

	// BridgeFrames counts frames handled by connection bridges by outcome
	// (sent, serialization_error, send_error).
	BridgeFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "light_relay_bridge_frames_total",
		Help: "Frames processed by connection bridges by result",
	}, []string{"result"})

	// BridgeTerminations counts bridge exits by final state.
	BridgeTerminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "light_relay_bridge_terminations_total",
		Help: "Connection bridge terminations by final state",
	}, []string{"state"})
)
