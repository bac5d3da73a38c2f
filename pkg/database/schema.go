package database

import (
	"context"
	"fmt"
)

// Schema statements in application order. accounts and federated_identities back
// the identity provider; profiles is the document-style profile collection.
var schemaUp = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email VARCHAR(320) NOT NULL,
		password_hash TEXT,
		display_name VARCHAR(255),
		avatar_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email ON accounts (LOWER(email))`,

	`CREATE TABLE IF NOT EXISTS federated_identities (
		provider VARCHAR(32) NOT NULL,
		subject VARCHAR(255) NOT NULL,
		account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (provider, subject)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_federated_identities_account ON federated_identities (account_id)`,

	`CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		email VARCHAR(320) NOT NULL,
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		role VARCHAR(32) NOT NULL CHECK (role IN ('citizen', 'ragpicker', 'institution', 'admin')),
		avatar_url TEXT NOT NULL DEFAULT '',
		state VARCHAR(128) NOT NULL DEFAULT '',
		city VARCHAR(128) NOT NULL DEFAULT '',
		zone VARCHAR(128) NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		extensions JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (updated_at >= created_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_profiles_role ON profiles (role)`,
}

var schemaDown = []string{
	`DROP TABLE IF EXISTS profiles CASCADE`,
	`DROP TABLE IF EXISTS federated_identities CASCADE`,
	`DROP TABLE IF EXISTS accounts CASCADE`,
}

// Migrate creates every table and index if missing.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	return execAll(ctx, db, schemaUp)
}

// Drop removes every table owned by the service.
func (db *PostgresDB) Drop(ctx context.Context) error {
	return execAll(ctx, db, schemaDown)
}

func execAll(ctx context.Context, db *PostgresDB, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
