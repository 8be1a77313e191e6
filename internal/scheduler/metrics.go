package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics are the scheduler's Prometheus collectors
type Metrics struct {
	dispatches   *prometheus.CounterVec
	deadTasks    prometheus.Counter
	tickDuration prometheus.Histogram
}

// NewMetrics registers scheduler collectors with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailhub",
			Subsystem: "scheduler",
			Name:      "dispatches_total",
			Help:      "Scheduled dispatch attempts by outcome.",
		}, []string{"outcome"}),
		deadTasks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mailhub",
			Subsystem: "scheduler",
			Name:      "dead_tasks_total",
			Help:      "Due tasks skipped because their account no longer exists.",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mailhub",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of scheduler ticks.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}
