package observability

import (
	"strings"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"custodyledger/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

// CountingEmitter records every committed event in the events registry, adds
// reward and reclaimed units to the ledger registry, then hands the event to
// Next.
type CountingEmitter struct {
	Next events.Emitter
}

func (c CountingEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	Events().RecordEvent(evt.EventType())
	switch e := evt.(type) {
	case events.LotteryRedeemed:
		Ledger().RecordReward(float64(e.Reward))
	case events.RecordReclaimed:
		if amount, err := uint256.FromDecimal(e.Amount); err == nil {
			Ledger().RecordReclaimed(amount.Float64())
		}
	}
	if c.Next != nil {
		c.Next.Emit(evt)
	}
}
