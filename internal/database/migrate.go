package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order and is safe to re-run.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS pending_orders (
		gateway_order_id TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		tier             TEXT NOT NULL,
		amount           BIGINT NOT NULL,
		currency         TEXT NOT NULL,
		status           TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_orders_user_id ON pending_orders(user_id)`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
		gateway_subscription_id TEXT PRIMARY KEY,
		user_id                 TEXT NOT NULL,
		plan_id                 TEXT NOT NULL,
		status                  TEXT NOT NULL,
		tier                    TEXT NOT NULL,
		amount                  BIGINT NOT NULL,
		currency                TEXT NOT NULL,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_user_id ON subscriptions(user_id)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id         TEXT PRIMARY KEY,
		order_id   TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		amount     BIGINT NOT NULL,
		currency   TEXT NOT NULL,
		status     TEXT NOT NULL,
		method     TEXT NOT NULL DEFAULT '',
		channel    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_order_id ON payments(order_id)`,

	`CREATE TABLE IF NOT EXISTS member_sequences (
		year       INTEGER PRIMARY KEY,
		last_value BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS founding_members (
		user_id         TEXT PRIMARY KEY,
		tier            TEXT NOT NULL,
		member_number   TEXT NOT NULL UNIQUE,
		price_paid      BIGINT NOT NULL,
		currency        TEXT NOT NULL,
		badge           TEXT NOT NULL,
		purchased_at    TIMESTAMPTZ NOT NULL,
		display_on_wall BOOLEAN NOT NULL DEFAULT TRUE
	)`,

	`CREATE TABLE IF NOT EXISTS profiles (
		user_id                TEXT PRIMARY KEY,
		email                  TEXT NOT NULL DEFAULT '',
		display_name           TEXT NOT NULL DEFAULT '',
		is_premium             BOOLEAN NOT NULL DEFAULT FALSE,
		is_founding_member     BOOLEAN NOT NULL DEFAULT FALSE,
		founding_member_number TEXT,
		lifetime_access        BOOLEAN NOT NULL DEFAULT FALSE,
		purchased_date         TIMESTAMPTZ
	)`,
}

// Migrate creates the tables this service owns.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
