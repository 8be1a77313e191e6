package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mixelka/mailhub/internal/database"
	"github.com/mixelka/mailhub/internal/dispatch"
	"github.com/mixelka/mailhub/pkg/models"
)

// TaskStore is the persistence the loop needs
type TaskStore interface {
	DueTasks(ctx context.Context, now time.Time) ([]*models.SendTask, error)
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	CompleteTask(ctx context.Context, id int64) error
	RescheduleTask(ctx context.Context, id int64, nextRunAt time.Time) error
	FailTask(ctx context.Context, id int64, message string) error
}

// Sender dispatches one message
type Sender interface {
	Send(ctx context.Context, acc *models.Account, to, subject, htmlBody string) dispatch.Result
}

// Notifier is told about tasks that need an operator's attention
type Notifier interface {
	TaskFailed(ctx context.Context, task *models.SendTask, acc *models.Account, reason string)
	DeadTask(ctx context.Context, task *models.SendTask)
}

type noopNotifier struct{}

func (noopNotifier) TaskFailed(context.Context, *models.SendTask, *models.Account, string) {}
func (noopNotifier) DeadTask(context.Context, *models.SendTask)                            {}

// Summary counts what one tick did
type Summary struct {
	Due         int
	Sent        int
	Failed      int
	Dead        int
	Skipped     int
	StoreErrors int
}

// Loop processes due send tasks
type Loop struct {
	store    TaskStore
	sender   Sender
	notifier Notifier
	metrics  *Metrics
	rnd      models.RandSource
	now      func() time.Time
	logger   *slog.Logger
}

// NewLoop creates a new scheduler loop
func NewLoop(store TaskStore, sender Sender, logger *slog.Logger, opts ...Option) *Loop {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Notifier == nil {
		o.Notifier = noopNotifier{}
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics(nil)
	}
	return &Loop{
		store:    store,
		sender:   sender,
		notifier: o.Notifier,
		metrics:  o.Metrics,
		rnd:      o.Rand,
		now:      o.Now,
		logger:   logger.With("component", "scheduler"),
	}
}

// Tick processes every due task sequentially. Errors are logged and counted,
// never returned.
func (l *Loop) Tick(ctx context.Context) Summary {
	var summary Summary
	start := l.now()
	defer func() {
		l.metrics.tickDuration.Observe(l.now().Sub(start).Seconds())
	}()

	tasks, err := l.store.DueTasks(ctx, start)
	if err != nil {
		l.logger.Error("failed to load due tasks", "error", err)
		summary.StoreErrors++
		return summary
	}
	summary.Due = len(tasks)

	for _, task := range tasks {
		if ctx.Err() != nil {
			l.logger.Warn("tick interrupted", "error", ctx.Err())
			break
		}
		l.process(ctx, task, &summary)
	}

	if summary.Due > 0 {
		l.logger.Info("tick complete",
			"due", summary.Due,
			"sent", summary.Sent,
			"failed", summary.Failed,
			"dead", summary.Dead,
			"skipped", summary.Skipped,
			"store_errors", summary.StoreErrors,
		)
	}
	return summary
}

func (l *Loop) process(ctx context.Context, task *models.SendTask, summary *Summary) {
	logger := l.logger.With("task_id", task.ID, "account_id", task.AccountID)

	acc, err := l.store.GetAccountByID(ctx, task.AccountID)
	if errors.Is(err, database.ErrNotFound) {
		logger.Warn("dead task: account no longer exists")
		l.metrics.deadTasks.Inc()
		l.notifier.DeadTask(ctx, task)
		summary.Dead++
		return
	}
	if err != nil {
		logger.Error("failed to load account", "error", err)
		summary.StoreErrors++
		return
	}
	if !acc.Enabled {
		logger.Info("account disabled, task skipped")
		summary.Skipped++
		return
	}

	res := l.sender.Send(ctx, acc, task.ToEmail, task.Subject, task.Content)
	if !res.OK {
		l.metrics.dispatches.WithLabelValues(outcomeFailure).Inc()
		summary.Failed++
		if err := l.store.FailTask(ctx, task.ID, res.Error); err != nil {
			logger.Error("failed to record task failure", "error", err)
			summary.StoreErrors++
		}
		l.notifier.TaskFailed(ctx, task, acc, res.Error)
		return
	}

	l.metrics.dispatches.WithLabelValues(outcomeSuccess).Inc()
	summary.Sent++
	if task.IsLoop {
		next := l.now().Add(models.LenientDelay(task.DelayConfig).Resolve(l.rnd))
		err = l.store.RescheduleTask(ctx, task.ID, next)
		logger.Debug("loop task rescheduled", "next_run_at", next)
	} else {
		err = l.store.CompleteTask(ctx, task.ID)
	}
	if err != nil {
		logger.Error("failed to record task success", "error", err)
		summary.StoreErrors++
	}
}
