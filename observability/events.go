package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Event names recorded by the daemon after a mutation commits.
const (
	EventSwap           = "swap"
	EventLiquidityAdd   = "liquidity_add"
	EventLiquidityBurn  = "liquidity_remove"
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
	EventTrancheSold    = "tranche_sold"
	EventCollection     = "collection"
)

type eventMetrics struct {
	committed *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed state changes.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			committed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "campusfi",
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Count of committed state changes segmented by module and event.",
			}, []string{"module", "event"}),
		}
		prometheus.MustRegister(eventRegistry.committed)
	})
	return eventRegistry
}

// Record increments the counter for a committed event.
func (m *eventMetrics) Record(module, event string) {
	if m == nil {
		return
	}
	normalized := strings.ToLower(strings.TrimSpace(event))
	if normalized == "" {
		normalized = "unknown"
	}
	m.committed.WithLabelValues(labelOrUnknown(module), normalized).Inc()
}
