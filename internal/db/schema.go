package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
        id TEXT PRIMARY KEY,
        email TEXT NOT NULL DEFAULT '',
        full_name TEXT NOT NULL DEFAULT '',
        credits INTEGER NOT NULL DEFAULT 0,
        subscription_tier TEXT NOT NULL DEFAULT 'free',
        stripe_customer_id TEXT,
        stripe_subscription_id TEXT,
        subscription_cancelling BOOLEAN NOT NULL DEFAULT FALSE,
        subscription_end_date TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE INDEX IF NOT EXISTS profiles_email_idx ON profiles (lower(email))`,
	`CREATE INDEX IF NOT EXISTS profiles_stripe_customer_idx ON profiles (stripe_customer_id)`,
	`CREATE TABLE IF NOT EXISTS processed_events (
        idempotency_key TEXT PRIMARY KEY,
        source TEXT NOT NULL,
        user_id TEXT NOT NULL,
        credits INTEGER NOT NULL,
        processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
}

// EnsureSchema creates the tables if they do not exist yet.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
