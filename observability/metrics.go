package observability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type ledgerMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	reclaimed  prometheus.Counter
	rewards    prometheus.Counter
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *ledgerMetrics
)

// Ledger returns the lazily-initialised registry recording entry lifecycle
// and sweeper activity.
func Ledger() *ledgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &ledgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Total ledger operations segmented by module, operation, and outcome.",
			}, []string{"module", "operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "ledger",
				Name:      "failures_total",
				Help:      "Total ledger operation failures segmented by module, operation, and reason.",
			}, []string{"module", "operation", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "custody",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "operation"}),
			reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "sweeper",
				Name:      "reclaimed_units_total",
				Help:      "Storage-backing units moved out of tombstoned records.",
			}),
			rewards: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "lottery",
				Name:      "reward_units_total",
				Help:      "Reward units issued by successful redemptions.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.failures,
			ledgerRegistry.latency,
			ledgerRegistry.reclaimed,
			ledgerRegistry.rewards,
		)
	})
	return ledgerRegistry
}

// Observe records the outcome of one ledger operation. The failure reason is
// the first registered sentinel the error matches.
func (m *ledgerMetrics) Observe(module, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.failures.WithLabelValues(module, operation, reason(err)).Inc()
	}
	m.operations.WithLabelValues(module, operation, outcome).Inc()
	m.latency.WithLabelValues(module, operation).Observe(duration.Seconds())
}

// RecordReclaimed adds units drained by the sweeper.
func (m *ledgerMetrics) RecordReclaimed(units float64) {
	if m == nil || units <= 0 {
		return
	}
	m.reclaimed.Add(units)
}

// RecordReward adds units issued by a redemption.
func (m *ledgerMetrics) RecordReward(units float64) {
	if m == nil || units <= 0 {
		return
	}
	m.rewards.Add(units)
}

var (
	failureReasonsMu sync.RWMutex
	failureReasons   = []error{context.Canceled, context.DeadlineExceeded}
)

// RegisterFailureReasons adds sentinels whose messages may appear as the
// reason label. Errors matching none of them are reported as "other".
func RegisterFailureReasons(sentinels ...error) {
	failureReasonsMu.Lock()
	defer failureReasonsMu.Unlock()
	for _, sentinel := range sentinels {
		if sentinel != nil {
			failureReasons = append(failureReasons, sentinel)
		}
	}
}

func reason(err error) string {
	failureReasonsMu.RLock()
	defer failureReasonsMu.RUnlock()
	for _, sentinel := range failureReasons {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "other"
}
