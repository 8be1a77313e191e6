package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mixelka/mailhub/internal/config"
)

// DB wraps sqlx.DB
type DB struct {
	*sqlx.DB
}

// New creates a new database connection for the configured driver
func New(cfg *config.Config) (*DB, error) {
	if cfg.DatabaseDriver == config.DriverPostgres {
		return Open(config.DriverPostgres, cfg.DatabaseURL)
	}
	return NewSQLite(cfg.DatabasePath)
}

// NewSQLite opens a SQLite database file, creating its directory
func NewSQLite(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Connect with WAL mode and foreign keys enabled
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	return Open(config.DriverSQLite, dsn)
}

// Open connects with an explicit driver name and DSN
func Open(driver, dsn string) (*DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{db}, nil
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if db.DriverName() == config.DriverPostgres {
		schema = postgresSchema
	}
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// insert runs an INSERT ... RETURNING id statement written with ? placeholders
func (db *DB) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	err := db.QueryRowxContext(ctx, db.Rebind(query+" RETURNING id"), args...).Scan(&id)
	return id, err
}

// exec runs a statement written with ? placeholders
func (db *DB) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
