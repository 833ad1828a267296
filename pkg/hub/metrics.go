package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus instruments for the hub.
type metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	roomsActive       prometheus.Gauge
	eventsTotal       *prometheus.CounterVec
	eventsDropped     prometheus.Counter
	locksActive       prometheus.Gauge
	lockOpsTotal      *prometheus.CounterVec
	broadcastBytes    prometheus.Counter
}

// newMetrics registers the hub instruments with the given registry.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sceneflow",
			Name:      "connections_active",
			Help:      "Number of active WebSocket connections",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sceneflow",
			Name:      "connections_total",
			Help:      "Total WebSocket connections accepted",
		}),
		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sceneflow",
			Name:      "rooms_active",
			Help:      "Number of rooms with at least one member",
		}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sceneflow",
			Name:      "events_total",
			Help:      "Total events routed by the hub, by event type",
		}, []string{"type"}),
		eventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sceneflow",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a client send queue was full",
		}),
		locksActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sceneflow",
			Name:      "locks_active",
			Help:      "Number of active resource locks",
		}),
		lockOpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sceneflow",
			Name:      "lock_operations_total",
			Help:      "Lock API operations, by operation and outcome",
		}, []string{"op", "status"}),
		broadcastBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sceneflow",
			Name:      "broadcast_bytes_total",
			Help:      "Total bytes fanned out to clients",
		}),
	}
}
