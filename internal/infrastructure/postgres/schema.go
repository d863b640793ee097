package postgres

import (
	"context"
	"fmt"
)

// schema is applied on startup. Statements are idempotent so a restart
// against an already-provisioned database is a no-op.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id BIGSERIAL PRIMARY KEY,
		plaid_item_id TEXT NOT NULL UNIQUE,
		access_token TEXT NOT NULL,
		cursor TEXT,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		institution_id TEXT,
		institution_name TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		item_id BIGINT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		plaid_account_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		official_name TEXT,
		mask TEXT,
		account_type TEXT NOT NULL,
		subtype TEXT NOT NULL,
		current_balance DOUBLE PRECISION,
		available_balance DOUBLE PRECISION,
		iso_currency_code TEXT NOT NULL DEFAULT 'USD',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		plaid_transaction_id TEXT,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		amount DOUBLE PRECISION NOT NULL,
		iso_currency_code TEXT NOT NULL DEFAULT 'USD',
		transaction_date DATE NOT NULL,
		name TEXT NOT NULL,
		merchant_name TEXT,
		pending BOOLEAN NOT NULL DEFAULT FALSE,
		category TEXT,
		subcategory TEXT,
		notes TEXT,
		is_split BOOLEAN NOT NULL DEFAULT FALSE,
		parent_transaction_id TEXT REFERENCES transactions(id) ON DELETE CASCADE,
		original_transaction_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT transactions_provider_identity UNIQUE (account_id, plaid_transaction_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS transaction_tags (
		transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (transaction_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reconnection_staging (
		token TEXT PRIMARY KEY,
		existing_item_id BIGINT NOT NULL,
		plaid_item_id TEXT NOT NULL,
		access_token TEXT NOT NULL,
		institution_id TEXT,
		institution_name TEXT,
		accounts JSONB NOT NULL,
		transaction_count INT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS device_tokens (
		token TEXT PRIMARY KEY,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account_date ON transactions (account_id, transaction_date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_parent ON transactions (parent_transaction_id)`,
}

// EnsureSchema creates the tables this service needs.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
