package scheduler

import (
	"math/rand/v2"
	"time"

	"github.com/mixelka/mailhub/pkg/models"
)

type options struct {
	Notifier Notifier
	Metrics  *Metrics
	Rand     models.RandSource
	Now      func() time.Time
}

// Option applies configuration to the scheduler loop.
type Option func(*options)

func defaultOptions() options {
	return options{
		Notifier: noopNotifier{},
		Rand:     globalRand{},
		Now:      time.Now,
	}
}

// WithNotifier reports failed and dead tasks to n.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		o.Notifier = n
	}
}

// WithMetrics records tick outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.Metrics = m
	}
}

// WithRandSource replaces the source used for jittered loop delays.
func WithRandSource(r models.RandSource) Option {
	return func(o *options) {
		o.Rand = r
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.Now = now
	}
}

type globalRand struct{}

func (globalRand) Int64N(n int64) int64 {
	return rand.Int64N(n)
}
