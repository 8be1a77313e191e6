package database

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    client_id TEXT NOT NULL,
    client_secret TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    access_token TEXT NOT NULL DEFAULT '',
    expires_at INTEGER NOT NULL DEFAULT 0,
    enabled BOOLEAN NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS send_tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    to_email TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    delay_config TEXT NOT NULL DEFAULT '',
    is_loop BOOLEAN NOT NULL DEFAULT 0,
    next_run_at INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    success_count INTEGER NOT NULL DEFAULT 0,
    fail_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS filter_groups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    match_sender TEXT NOT NULL DEFAULT '',
    match_receiver TEXT NOT NULL DEFAULT '',
    match_body TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS access_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    alias TEXT NOT NULL DEFAULT '',
    query_code TEXT NOT NULL UNIQUE,
    fetch_limit TEXT NOT NULL DEFAULT '5',
    valid_until INTEGER,
    match_sender TEXT NOT NULL DEFAULT '',
    match_receiver TEXT NOT NULL DEFAULT '',
    match_body TEXT NOT NULL DEFAULT '',
    group_id INTEGER REFERENCES filter_groups(id) ON DELETE SET NULL,
    created_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_accounts_name ON accounts(name);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON send_tasks(status, next_run_at);
CREATE INDEX IF NOT EXISTS idx_tasks_account ON send_tasks(account_id);
CREATE INDEX IF NOT EXISTS idx_rules_name ON access_rules(name);
CREATE INDEX IF NOT EXISTS idx_rules_group ON access_rules(group_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    client_id TEXT NOT NULL,
    client_secret TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    access_token TEXT NOT NULL DEFAULT '',
    expires_at BIGINT NOT NULL DEFAULT 0,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    created_at BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS send_tasks (
    id BIGSERIAL PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    to_email TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    delay_config TEXT NOT NULL DEFAULT '',
    is_loop BOOLEAN NOT NULL DEFAULT FALSE,
    next_run_at BIGINT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    success_count INTEGER NOT NULL DEFAULT 0,
    fail_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS filter_groups (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    match_sender TEXT NOT NULL DEFAULT '',
    match_receiver TEXT NOT NULL DEFAULT '',
    match_body TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS access_rules (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    alias TEXT NOT NULL DEFAULT '',
    query_code TEXT NOT NULL UNIQUE,
    fetch_limit TEXT NOT NULL DEFAULT '5',
    valid_until BIGINT,
    match_sender TEXT NOT NULL DEFAULT '',
    match_receiver TEXT NOT NULL DEFAULT '',
    match_body TEXT NOT NULL DEFAULT '',
    group_id BIGINT REFERENCES filter_groups(id) ON DELETE SET NULL,
    created_at BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_accounts_name ON accounts(name);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON send_tasks(status, next_run_at);
CREATE INDEX IF NOT EXISTS idx_tasks_account ON send_tasks(account_id);
CREATE INDEX IF NOT EXISTS idx_rules_name ON access_rules(name);
CREATE INDEX IF NOT EXISTS idx_rules_group ON access_rules(group_id);
`
