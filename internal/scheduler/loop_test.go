package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/mailhub/internal/database"
	"github.com/mixelka/mailhub/internal/dispatch"
	"github.com/mixelka/mailhub/pkg/models"
)

type memStore struct {
	mu       sync.Mutex
	tasks    map[int64]*models.SendTask
	accounts map[int64]*models.Account
	failOn   map[int64]bool
}

func newMemStore() *memStore {
	return &memStore{
		tasks:    make(map[int64]*models.SendTask),
		accounts: make(map[int64]*models.Account),
		failOn:   make(map[int64]bool),
	}
}

func (s *memStore) DueTasks(_ context.Context, now time.Time) ([]*models.SendTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.SendTask
	for _, task := range s.tasks {
		if task.Due(now) {
			copied := *task
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextRunAt != due[j].NextRunAt {
			return due[i].NextRunAt < due[j].NextRunAt
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}

func (s *memStore) GetAccountByID(_ context.Context, id int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *acc
	return &copied, nil
}

func (s *memStore) update(id int64, fn func(*models.SendTask)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[id] {
		return errors.New("disk full")
	}
	task, ok := s.tasks[id]
	if !ok {
		return database.ErrNotFound
	}
	fn(task)
	return nil
}

func (s *memStore) CompleteTask(_ context.Context, id int64) error {
	return s.update(id, func(t *models.SendTask) {
		t.SuccessCount++
		t.Status = models.TaskSuccess
	})
}

func (s *memStore) RescheduleTask(_ context.Context, id int64, next time.Time) error {
	return s.update(id, func(t *models.SendTask) {
		t.SuccessCount++
		t.Status = models.TaskPending
		t.NextRunAt = next.UnixMilli()
	})
}

func (s *memStore) FailTask(_ context.Context, id int64, message string) error {
	return s.update(id, func(t *models.SendTask) {
		t.FailCount++
		t.Status = models.TaskError
		t.LastError = message
	})
}

type fakeSender struct {
	results map[string]dispatch.Result
	sent    []string
}

func (f *fakeSender) Send(_ context.Context, _ *models.Account, to, _, _ string) dispatch.Result {
	f.sent = append(f.sent, to)
	if res, ok := f.results[to]; ok {
		return res
	}
	return dispatch.Result{OK: true}
}

type recordingNotifier struct {
	failed []int64
	dead   []int64
}

func (n *recordingNotifier) TaskFailed(_ context.Context, task *models.SendTask, _ *models.Account, _ string) {
	n.failed = append(n.failed, task.ID)
}

func (n *recordingNotifier) DeadTask(_ context.Context, task *models.SendTask) {
	n.dead = append(n.dead, task.ID)
}

type fixedRand struct{}

func (fixedRand) Int64N(n int64) int64 { return 0 }

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestLoop(store TaskStore, sender Sender, opts ...Option) *Loop {
	opts = append([]Option{WithClock(func() time.Time { return now }), WithRandSource(fixedRand{})}, opts...)
	return NewLoop(store, sender, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestTickOneShotSuccess(t *testing.T) {
	store := newMemStore()
	store.accounts[1] = &models.Account{ID: 1, Enabled: true}
	store.tasks[10] = &models.SendTask{ID: 10, AccountID: 1, ToEmail: "a@x.com", NextRunAt: now.Add(-time.Minute).UnixMilli(), Status: models.TaskPending}

	summary := newTestLoop(store, &fakeSender{}).Tick(context.Background())
	assert.Equal(t, Summary{Due: 1, Sent: 1}, summary)
	assert.Equal(t, models.TaskSuccess, store.tasks[10].Status)
	assert.Equal(t, 1, store.tasks[10].SuccessCount)

	// Terminal tasks are never selected again
	summary = newTestLoop(store, &fakeSender{}).Tick(context.Background())
	assert.Equal(t, Summary{}, summary)
}

func TestTickLoopReschedules(t *testing.T) {
	store := newMemStore()
	store.accounts[1] = &models.Account{ID: 1, Enabled: true}
	store.tasks[10] = &models.SendTask{ID: 10, AccountID: 1, ToEmail: "a@x.com", DelayConfig: "0|1|30|0", IsLoop: true, NextRunAt: now.UnixMilli(), Status: models.TaskPending}

	newTestLoop(store, &fakeSender{}).Tick(context.Background())

	task := store.tasks[10]
	assert.Equal(t, models.TaskPending, task.Status)
	assert.Equal(t, now.Add(90*time.Minute).UnixMilli(), task.NextRunAt)
	assert.Equal(t, 1, task.SuccessCount)
}

func TestTickLoopCyclesAdvanceNextRun(t *testing.T) {
	store := newMemStore()
	store.accounts[1] = &models.Account{ID: 1, Enabled: true}
	store.tasks[10] = &models.SendTask{ID: 10, AccountID: 1, ToEmail: "a@x.com", DelayConfig: "0|0|5-10|0", IsLoop: true, NextRunAt: now.UnixMilli(), Status: models.TaskPending}

	clock := now
	sender := &fakeSender{}
	loop := newTestLoop(store, sender,
		WithClock(func() time.Time { return clock }),
		WithRandSource(rand.New(rand.NewPCG(5, 6))),
	)

	prev := store.tasks[10].NextRunAt
	for cycle := 1; cycle <= 5; cycle++ {
		summary := loop.Tick(context.Background())
		require.Equal(t, Summary{Due: 1, Sent: 1}, summary, "cycle %d", cycle)

		task := store.tasks[10]
		assert.Equal(t, models.TaskPending, task.Status)
		assert.Equal(t, cycle, task.SuccessCount)
		assert.Greater(t, task.NextRunAt, prev)
		assert.GreaterOrEqual(t, task.NextRunAt, clock.Add(5*time.Minute).UnixMilli())
		assert.LessOrEqual(t, task.NextRunAt, clock.Add(10*time.Minute).UnixMilli())

		// Nothing is due until the clock reaches the new next run
		assert.Equal(t, Summary{}, loop.Tick(context.Background()))

		prev = task.NextRunAt
		clock = task.NextRun()
	}
	assert.Len(t, sender.sent, 5)
}

func TestTickLoopOversizedDelayFloors(t *testing.T) {
	store := newMemStore()
	store.accounts[1] = &models.Account{ID: 1, Enabled: true}
	store.tasks[10] = &models.SendTask{ID: 10, AccountID: 1, ToEmail: "a@x.com", DelayConfig: "0-9223372036854775807|0|0|0", IsLoop: true, NextRunAt: now.UnixMilli(), Status: models.TaskPending}
	store.tasks[11] = &models.SendTask{ID: 11, AccountID: 1, ToEmail: "b@x.com", NextRunAt: now.UnixMilli(), Status: models.TaskPending}

	sender := &fakeSender{}
	loop := newTestLoop(store, sender, WithRandSource(rand.New(rand.NewPCG(1, 2))))

	var summary Summary
	require.NotPanics(t, func() { summary = loop.Tick(context.Background()) })
	assert.Equal(t, Summary{Due: 2, Sent: 2}, summary)

	task := store.tasks[10]
	assert.Equal(t, models.TaskPending, task.Status)
	assert.Equal(t, 1, task.SuccessCount)
	assert.Equal(t, now.Add(models.MinLoopDelay).UnixMilli(), task.NextRunAt)
	assert.Equal(t, models.TaskSuccess, store.tasks[11].Status)

	// Already rescheduled, so the next tick does not resend
	assert.Equal(t, Summary{}, loop.Tick(context.Background()))
	assert.Len(t, sender.sent, 2)
}

func TestTickLoopDelayFloor(t *testing.T) {
	store := newMemStore()
	store.accounts[1] = &models.Account{ID: 1, Enabled: true}
	store.tasks[10] = &models.SendTask{ID: 10, AccountID: 1, DelayConfig: "x|y", IsLoop: true, NextRunAt: now.UnixMilli()}

	newTestLoop(store, &fakeSender{}).Tick(context.Background())
	assert.Equal(t, now.Add(models.MinLoopDelay).UnixMilli(), store.tasks[10].NextRunAt)
}

func TestTickFailureKeepsNextRun(t *testing.T) {
	store := newMemStore()
	store.accounts[1] = &models.Account{ID: 1, Enabled: true}
	next := now.Add(-time.Hour).UnixMilli()
	store.tasks[10] = &models.SendTask{ID: 10, AccountID: 1, ToEmail: "bad@x.com", IsLoop: true, NextRunAt: next, Status: models.TaskPending}

	sender := &fakeSender{results: map[string]dispatch.Result{"bad@x.com": {Error: "mailbox unavailable"}}}
	notifier := &recordingNotifier{}
	loop := newTestLoop(store, sender, WithNotifier(notifier))

	summary := loop.Tick(context.Background())
	assert.Equal(t, Summary{Due: 1, Failed: 1}, summary)

	task := store.tasks[10]
	assert.Equal(t, models.TaskError, task.Status)
	assert.Equal(t, 1, task.FailCount)
	assert.Equal(t, "mailbox unavailable", task.LastError)
	assert.Equal(t, next, task.NextRunAt)
	assert.Equal(t, []int64{10}, notifier.failed)

	// Errored tasks are retried on the following tick
	summary = loop.Tick(context.Background())
	assert.Equal(t, 1, summary.Due)
	assert.Equal(t, 2, store.tasks[10].FailCount)
}

func TestTickDeadTask(t *testing.T) {
	store := newMemStore()
	store.tasks[10] = &models.SendTask{ID: 10, AccountID: 99, NextRunAt: now.UnixMilli(), Status: models.TaskPending}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	notifier := &recordingNotifier{}
	sender := &fakeSender{}

	summary := newTestLoop(store, sender, WithNotifier(notifier), WithMetrics(metrics)).Tick(context.Background())
	assert.Equal(t, Summary{Due: 1, Dead: 1}, summary)
	assert.Empty(t, sender.sent)
	assert.Equal(t, []int64{10}, notifier.dead)
	assert.Equal(t, models.TaskPending, store.tasks[10].Status)
	assert.Equal(t, float64(1), counterValue(t, metrics.deadTasks))
}

func TestTickSkipsDisabledAccount(t *testing.T) {
	store := newMemStore()
	store.accounts[1] = &models.Account{ID: 1, Enabled: false}
	store.tasks[10] = &models.SendTask{ID: 10, AccountID: 1, NextRunAt: now.UnixMilli(), Status: models.TaskPending}

	sender := &fakeSender{}
	summary := newTestLoop(store, sender).Tick(context.Background())
	assert.Equal(t, Summary{Due: 1, Skipped: 1}, summary)
	assert.Empty(t, sender.sent)
}

func TestTickContinuesAfterStoreError(t *testing.T) {
	store := newMemStore()
	store.accounts[1] = &models.Account{ID: 1, Enabled: true}
	store.tasks[10] = &models.SendTask{ID: 10, AccountID: 1, ToEmail: "first@x.com", NextRunAt: now.Add(-2 * time.Minute).UnixMilli()}
	store.tasks[11] = &models.SendTask{ID: 11, AccountID: 1, ToEmail: "second@x.com", NextRunAt: now.Add(-time.Minute).UnixMilli()}
	store.failOn[10] = true

	sender := &fakeSender{}
	summary := newTestLoop(store, sender).Tick(context.Background())
	assert.Equal(t, Summary{Due: 2, Sent: 2, StoreErrors: 1}, summary)
	assert.Equal(t, []string{"first@x.com", "second@x.com"}, sender.sent)
	assert.Equal(t, models.TaskSuccess, store.tasks[11].Status)
}

func TestTickMetrics(t *testing.T) {
	store := newMemStore()
	store.accounts[1] = &models.Account{ID: 1, Enabled: true}
	store.tasks[10] = &models.SendTask{ID: 10, AccountID: 1, ToEmail: "ok@x.com", NextRunAt: now.UnixMilli()}
	store.tasks[11] = &models.SendTask{ID: 11, AccountID: 1, ToEmail: "bad@x.com", NextRunAt: now.UnixMilli()}

	metrics := NewMetrics(prometheus.NewRegistry())
	sender := &fakeSender{results: map[string]dispatch.Result{"bad@x.com": {Error: "boom"}}}
	newTestLoop(store, sender, WithMetrics(metrics)).Tick(context.Background())

	assert.Equal(t, float64(1), counterValue(t, metrics.dispatches.WithLabelValues(outcomeSuccess)))
	assert.Equal(t, float64(1), counterValue(t, metrics.dispatches.WithLabelValues(outcomeFailure)))

	var m dto.Metric
	require.NoError(t, metrics.tickDuration.Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
