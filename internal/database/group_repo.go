package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/mailhub/pkg/models"
)

// CreateGroup creates a filter group
func (db *DB) CreateGroup(ctx context.Context, req models.GroupRequest) (*models.FilterGroup, error) {
	now := time.Now().UnixMilli()
	query := `
		INSERT INTO filter_groups (name, match_sender, match_receiver, match_body, created_at)
		VALUES (?, ?, ?, ?, ?)`
	id, err := db.insert(ctx, query, req.Name, req.MatchSender, req.MatchReceiver, req.MatchBody, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	return &models.FilterGroup{
		ID:            id,
		Name:          req.Name,
		MatchSender:   req.MatchSender,
		MatchReceiver: req.MatchReceiver,
		MatchBody:     req.MatchBody,
		CreatedAt:     now,
	}, nil
}

// GetGroupByID returns a filter group by ID
func (db *DB) GetGroupByID(ctx context.Context, id int64) (*models.FilterGroup, error) {
	var group models.FilterGroup
	err := db.GetContext(ctx, &group, db.Rebind(`SELECT * FROM filter_groups WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &group, nil
}

// DeleteGroup deletes a group and clears the reference on every rule using it
func (db *DB) DeleteGroup(ctx context.Context, id int64) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE access_rules SET group_id = NULL WHERE group_id = ?`), id); err != nil {
		return fmt.Errorf("failed to detach group rules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM filter_groups WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group delete: %w", err)
	}
	return nil
}
