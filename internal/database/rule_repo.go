package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/mixelka/mailhub/pkg/models"
)

// CreateRule creates a public access rule
func (db *DB) CreateRule(ctx context.Context, req models.RuleRequest) (*models.AccessRule, error) {
	now := time.Now().UnixMilli()
	query := `
		INSERT INTO access_rules (name, alias, query_code, fetch_limit, valid_until, match_sender, match_receiver, match_body, group_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := db.insert(ctx, query,
		req.Name,
		req.Alias,
		req.QueryCode,
		req.FetchLimit,
		req.ValidUntil,
		req.MatchSender,
		req.MatchReceiver,
		req.MatchBody,
		req.GroupID,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("query code %s: %w", req.QueryCode, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return &models.AccessRule{
		ID:            id,
		Name:          req.Name,
		Alias:         req.Alias,
		QueryCode:     req.QueryCode,
		FetchLimit:    req.FetchLimit,
		ValidUntil:    req.ValidUntil,
		MatchSender:   req.MatchSender,
		MatchReceiver: req.MatchReceiver,
		MatchBody:     req.MatchBody,
		GroupID:       req.GroupID,
		CreatedAt:     now,
	}, nil
}

// GetRuleByCode returns the rule for a share code
func (db *DB) GetRuleByCode(ctx context.Context, code string) (*models.AccessRule, error) {
	var rule models.AccessRule
	err := db.GetContext(ctx, &rule, db.Rebind(`SELECT * FROM access_rules WHERE query_code = ?`), code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

// ListRules returns all rules, newest first
func (db *DB) ListRules(ctx context.Context) ([]*models.AccessRule, error) {
	var rules []*models.AccessRule
	err := db.SelectContext(ctx, &rules, `SELECT * FROM access_rules ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// DeleteRules deletes the rules with the given IDs
func (db *DB) DeleteRules(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM access_rules WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build rule delete: %w", err)
	}
	if _, err := db.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete rules: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
