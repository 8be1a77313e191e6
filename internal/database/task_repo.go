package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/mailhub/pkg/models"
)

// CreateTask queues a validated send task
func (db *DB) CreateTask(ctx context.Context, req models.TaskRequest) (*models.SendTask, error) {
	now := time.Now().UnixMilli()
	query := `
		INSERT INTO send_tasks (account_id, to_email, subject, content, delay_config, is_loop, next_run_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := db.insert(ctx, query,
		req.AccountID,
		req.To,
		req.Subject,
		req.Content,
		req.DelayConfig,
		req.Loop,
		req.NextRunAt,
		models.TaskPending,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &models.SendTask{
		ID:          id,
		AccountID:   req.AccountID,
		ToEmail:     req.To,
		Subject:     req.Subject,
		Content:     req.Content,
		DelayConfig: req.DelayConfig,
		IsLoop:      req.Loop,
		NextRunAt:   req.NextRunAt,
		Status:      models.TaskPending,
		CreatedAt:   now,
	}, nil
}

// GetTaskByID returns a task by ID
func (db *DB) GetTaskByID(ctx context.Context, id int64) (*models.SendTask, error) {
	var task models.SendTask
	err := db.GetContext(ctx, &task, db.Rebind(`SELECT * FROM send_tasks WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// ListTasks returns all tasks ordered by next run
func (db *DB) ListTasks(ctx context.Context) ([]*models.SendTask, error) {
	var tasks []*models.SendTask
	err := db.SelectContext(ctx, &tasks, `SELECT * FROM send_tasks ORDER BY next_run_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// DueTasks returns tasks that are not finished and whose next run is at or before now
func (db *DB) DueTasks(ctx context.Context, now time.Time) ([]*models.SendTask, error) {
	var tasks []*models.SendTask
	query := `SELECT * FROM send_tasks WHERE status <> ? AND next_run_at <= ? ORDER BY next_run_at ASC, id ASC`
	err := db.SelectContext(ctx, &tasks, db.Rebind(query), models.TaskSuccess, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to get due tasks: %w", err)
	}
	return tasks, nil
}

// CompleteTask records a successful one-shot dispatch (terminal)
func (db *DB) CompleteTask(ctx context.Context, id int64) error {
	query := `UPDATE send_tasks SET success_count = success_count + 1, status = ?, last_error = '' WHERE id = ?`
	return db.updateTask(ctx, query, models.TaskSuccess, id)
}

// RescheduleTask records a successful loop dispatch and sets the next run
func (db *DB) RescheduleTask(ctx context.Context, id int64, nextRunAt time.Time) error {
	query := `UPDATE send_tasks SET success_count = success_count + 1, status = ?, next_run_at = ?, last_error = '' WHERE id = ?`
	return db.updateTask(ctx, query, models.TaskPending, nextRunAt.UnixMilli(), id)
}

// FailTask records a failed dispatch, leaving next run untouched
func (db *DB) FailTask(ctx context.Context, id int64, message string) error {
	query := `UPDATE send_tasks SET fail_count = fail_count + 1, status = ?, last_error = ? WHERE id = ?`
	return db.updateTask(ctx, query, models.TaskError, message, id)
}

func (db *DB) updateTask(ctx context.Context, query string, args ...any) error {
	n, err := db.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask deletes a task
func (db *DB) DeleteTask(ctx context.Context, id int64) error {
	if _, err := db.exec(ctx, `DELETE FROM send_tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}
