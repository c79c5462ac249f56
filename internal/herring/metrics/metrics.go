// Package metrics exposes the prometheus collectors shared by every
// device in a process. Grounded on rockstar-0000-aistore's stats
// package and linkerd-linkerd2's direct use of client_golang: one
// registry per process, counters for wire traffic, gauges for live
// counts.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set is the bundle of collectors a Device registers on construction.
// Each Device carries its own Set registered under a distinct "device"
// label so multiple Device instances in one process do not collide.
type Set struct {
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	ActiveInstances  prometheus.Gauge
	MapActivations   prometheus.Counter
	DevicesExpired   prometheus.Counter
}

// NewSet builds and registers a Set against reg, labeling every series
// with the given device name. reg may be nil, in which case the
// collectors are created but never registered (used in tests that don't
// want to touch the default registry).
func NewSet(reg prometheus.Registerer, device string) *Set {
	constLabels := prometheus.Labels{"device": device}

	s := &Set{
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "mapper",
			Name:        "messages_sent_total",
			Help:        "Number of protocol messages sent on the bus.",
			ConstLabels: constLabels,
		}, []string{"address"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "mapper",
			Name:        "messages_received_total",
			Help:        "Number of protocol messages received from the bus.",
			ConstLabels: constLabels,
		}, []string{"address"}),
		ActiveInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mapper",
			Name:        "active_instances",
			Help:        "Number of currently active signal instances owned by this device.",
			ConstLabels: constLabels,
		}),
		MapActivations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mapper",
			Name:        "map_activations_total",
			Help:        "Number of maps that reached ACTIVE status.",
			ConstLabels: constLabels,
		}),
		DevicesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mapper",
			Name:        "devices_expired_total",
			Help:        "Number of remote devices the graph marked EXPIRED.",
			ConstLabels: constLabels,
		}),
	}

	if reg != nil {
		reg.MustRegister(s.MessagesSent, s.MessagesReceived, s.ActiveInstances, s.MapActivations, s.DevicesExpired)
	}

	return s
}

// Noop returns a Set whose collectors are never registered, for callers
// that don't want metrics wired (e.g. short-lived tests).
func Noop() *Set {
	return NewSet(nil, "noop")
}
