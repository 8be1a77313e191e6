package models

import "time"

// TaskStatus lifecycle status of a send task
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskSuccess TaskStatus = "success" // Terminal, one-shot tasks only
	TaskError   TaskStatus = "error"   // Retried on the next scheduler pass
)

// SendTask is a scheduled outbound message owned by one account
type SendTask struct {
	ID           int64      `db:"id"`
	AccountID    int64      `db:"account_id"`
	ToEmail      string     `db:"to_email"`
	Subject      string     `db:"subject"`
	Content      string     `db:"content"`      // HTML body
	DelayConfig  string     `db:"delay_config"` // d|h|m|s, each part N or min-max
	IsLoop       bool       `db:"is_loop"`
	NextRunAt    int64      `db:"next_run_at"` // Unix ms
	Status       TaskStatus `db:"status"`
	SuccessCount int        `db:"success_count"`
	FailCount    int        `db:"fail_count"`
	LastError    string     `db:"last_error"`
	CreatedAt    int64      `db:"created_at"`
}

// NextRun returns the next run timestamp as time
func (t *SendTask) NextRun() time.Time {
	return time.UnixMilli(t.NextRunAt)
}

// Due reports whether the scheduler should pick the task at now
func (t *SendTask) Due(now time.Time) bool {
	return t.Status != TaskSuccess && t.NextRunAt <= now.UnixMilli()
}
