package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Ticker runs one scheduler pass
type Ticker interface {
	Tick(ctx context.Context) Summary
}

// Runner drives a Ticker from a cron schedule
type Runner struct {
	ticker   Ticker
	schedule cron.Schedule
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewRunner parses schedule (standard cron or @every descriptors) and prepares the runner
func NewRunner(ticker Ticker, schedule string, logger *slog.Logger) (*Runner, error) {
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	logger = logger.With("component", "runner")
	cl := cronLogger{logger: logger}
	return &Runner{
		ticker:   ticker,
		schedule: parsed,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:   logger,
	}, nil
}

// Run ticks on schedule until ctx is cancelled, then waits for a running tick to finish
func (r *Runner) Run(ctx context.Context) error {
	r.cron.Schedule(r.schedule, cron.FuncJob(func() {
		r.ticker.Tick(ctx)
	}))
	r.cron.Start()
	r.logger.Info("scheduler started")

	<-ctx.Done()
	<-r.cron.Stop().Done()
	r.logger.Info("scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
