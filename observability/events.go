package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"dope/core/events"
)

// EventMetrics counts committed protocol events.
type EventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *EventMetrics
)

// Events returns the metrics registry tracking structured protocol events.
func Events() *EventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = NewEventMetrics()
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// NewEventMetrics builds an unregistered event counter.
func NewEventMetrics() *EventMetrics {
	return &EventMetrics{
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dope",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Count of committed protocol events segmented by module and type.",
		}, []string{"module", "type"}),
	}
}

// Collector exposes the underlying counter for registration and tests.
func (m *EventMetrics) Collector() *prometheus.CounterVec { return m.emitted }

// Emit implements events.Emitter.
func (m *EventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	kind := strings.TrimSpace(evt.EventType())
	if kind == "" {
		kind = "unknown"
	}
	module := kind
	if idx := strings.IndexByte(kind, '.'); idx > 0 {
		module = kind[:idx]
	}
	m.emitted.WithLabelValues(module, kind).Inc()
}
