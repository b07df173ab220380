package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'USER',
		balance       BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS rounds (
		id          UUID PRIMARY KEY,
		state       TEXT NOT NULL,
		result      JSONB,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS bets (
		id         UUID PRIMARY KEY,
		user_id    BIGINT NOT NULL REFERENCES users(id),
		round_id   UUID NOT NULL REFERENCES rounds(id),
		amount     BIGINT NOT NULL CHECK (amount > 0),
		payout     BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, round_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger (
		id          BIGSERIAL PRIMARY KEY,
		type        TEXT NOT NULL,
		amount      BIGINT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		user_id     BIGINT NOT NULL REFERENCES users(id),
		actor_id    BIGINT NOT NULL REFERENCES users(id),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id          BIGSERIAL PRIMARY KEY,
		code        TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price       BIGINT NOT NULL CHECK (price >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS user_items (
		user_id  BIGINT NOT NULL REFERENCES users(id),
		item_id  BIGINT NOT NULL REFERENCES items(id),
		quantity INT NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, item_id)
	)`,
}

// defaultItems seeds the shop catalog on first start. ON CONFLICT keeps the
// seed idempotent across restarts.
const defaultItems = `INSERT INTO items (code, name, description, price) VALUES
	('lucky-charm',   'Lucky Charm',   'A shiny trinket that definitely boosts morale.', 300),
	('vip-card',      'VIP Card',      'Status symbol. Grants swagger in the lobby.',    750),
	('golden-ticket', 'Golden Ticket', 'One-time prize entry for special events.',      1200)
	ON CONFLICT (code) DO NOTHING`

// Migrate applies the schema and seeds the default shop items. All
// statements are idempotent, so it is safe to run on every start.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if _, err := db.Exec(ctx, defaultItems); err != nil {
		return fmt.Errorf("seed items: %w", err)
	}
	return nil
}
