package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/mailhub/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// CreateAccount creates a new provider account
func (db *DB) CreateAccount(ctx context.Context, req models.AccountRequest) (*models.Account, error) {
	now := time.Now().UnixMilli()
	query := `
		INSERT INTO accounts (name, email, client_id, client_secret, refresh_token, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	id, err := db.insert(ctx, query, req.Name, req.Email, req.ClientID, req.ClientSecret, req.RefreshToken, true, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return &models.Account{
		ID:           id,
		Name:         req.Name,
		Email:        req.Email,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		RefreshToken: req.RefreshToken,
		Enabled:      true,
		CreatedAt:    now,
	}, nil
}

// GetAccountByID returns an account by ID
func (db *DB) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	return db.getAccount(ctx, `SELECT * FROM accounts WHERE id = ?`, id)
}

// GetAccountByName returns the first account with exactly this name
func (db *DB) GetAccountByName(ctx context.Context, name string) (*models.Account, error) {
	return db.getAccount(ctx, `SELECT * FROM accounts WHERE name = ? ORDER BY id LIMIT 1`, name)
}

// FindAccountByEmailFragment returns the first account whose email contains fragment
func (db *DB) FindAccountByEmailFragment(ctx context.Context, fragment string) (*models.Account, error) {
	if fragment == "" {
		return nil, ErrNotFound
	}
	query := `SELECT * FROM accounts WHERE email <> '' AND LOWER(email) LIKE '%' || LOWER(?) || '%' ORDER BY id LIMIT 1`
	return db.getAccount(ctx, query, fragment)
}

func (db *DB) getAccount(ctx context.Context, query string, args ...any) (*models.Account, error) {
	var account models.Account
	err := db.GetContext(ctx, &account, db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// ListAccounts returns all accounts, newest first
func (db *DB) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	err := db.SelectContext(ctx, &accounts, `SELECT * FROM accounts ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccountTokens stores the result of a token refresh
func (db *DB) UpdateAccountTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt int64) error {
	query := `UPDATE accounts SET access_token = ?, refresh_token = ?, expires_at = ? WHERE id = ?`
	n, err := db.exec(ctx, query, accessToken, refreshToken, expiresAt, id)
	if err != nil {
		return fmt.Errorf("failed to update account tokens: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAccount applies a partial edit and returns the stored account.
// Rules keep their bound name; a renamed account is still found by email.
func (db *DB) UpdateAccount(ctx context.Context, id int64, u models.AccountUpdate) (*models.Account, error) {
	account, err := db.GetAccountByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Apply(account)

	query := `
		UPDATE accounts SET name = ?, email = ?, client_id = ?, client_secret = ?, refresh_token = ?,
			access_token = ?, expires_at = ?
		WHERE id = ?`
	n, err := db.exec(ctx, query, account.Name, account.Email, account.ClientID, account.ClientSecret,
		account.RefreshToken, account.AccessToken, account.ExpiresAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return account, nil
}

// SetAccountEnabled toggles whether the scheduler may use the account
func (db *DB) SetAccountEnabled(ctx context.Context, id int64, enabled bool) error {
	n, err := db.exec(ctx, `UPDATE accounts SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to set account enabled: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccount deletes an account with its tasks and the rules bound to its name
func (db *DB) DeleteAccount(ctx context.Context, id int64) error {
	account, err := db.GetAccountByID(ctx, id)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM send_tasks WHERE account_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete account tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM access_rules WHERE name = ?`), account.Name); err != nil {
		return fmt.Errorf("failed to delete account rules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM accounts WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit account delete: %w", err)
	}
	return nil
}
