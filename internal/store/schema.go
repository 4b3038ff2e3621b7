package store

import (
	"context"
	"fmt"
)

var _schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id                    BIGSERIAL PRIMARY KEY,
		character_id          BIGINT NOT NULL,
		character_name        TEXT NOT NULL,
		refresh_token         TEXT NOT NULL,
		chat_id               BIGINT NOT NULL,
		status                TEXT NOT NULL DEFAULT 'active',
		wallet_balance        NUMERIC(20,2) NOT NULL DEFAULT 0,
		deletion_scheduled_at TIMESTAMPTZ,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_character_active
		ON accounts (character_id) WHERE status = 'active'`,

	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id BIGINT NOT NULL,
		account_id     BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		is_buy         BOOLEAN NOT NULL,
		type_id        BIGINT NOT NULL,
		quantity       BIGINT NOT NULL,
		unit_price     NUMERIC(20,2) NOT NULL,
		location_id    BIGINT NOT NULL,
		client_id      BIGINT NOT NULL,
		journal_ref_id BIGINT NOT NULL,
		date           TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (transaction_id, account_id)
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_account_date
		ON transactions (account_id, date)`,

	`CREATE TABLE IF NOT EXISTS journal (
		ref_id      BIGINT NOT NULL,
		account_id  BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		ref_type    TEXT NOT NULL,
		amount      NUMERIC(20,2) NOT NULL,
		context_id  BIGINT,
		description TEXT NOT NULL DEFAULT '',
		date        TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (ref_id, account_id)
	)`,
	`CREATE INDEX IF NOT EXISTS journal_account_date
		ON journal (account_id, date)`,

	`CREATE TABLE IF NOT EXISTS lots (
		id           BIGSERIAL PRIMARY KEY,
		account_id   BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		type_id      BIGINT NOT NULL,
		quantity     BIGINT NOT NULL CHECK (quantity >= 0),
		unit_cost    NUMERIC(20,2) NOT NULL,
		acquired_at  TIMESTAMPTZ NOT NULL,
		source_tx_id BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS lots_account_type_acquired
		ON lots (account_id, type_id, acquired_at)`,

	`CREATE TABLE IF NOT EXISTS order_snapshots (
		order_id      BIGINT NOT NULL,
		account_id    BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		is_buy_order  BOOLEAN NOT NULL,
		type_id       BIGINT NOT NULL,
		price         NUMERIC(20,2) NOT NULL,
		volume_remain BIGINT NOT NULL,
		volume_total  BIGINT NOT NULL,
		location_id   BIGINT NOT NULL,
		region_id     BIGINT NOT NULL,
		duration      INT NOT NULL,
		issued        TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (order_id, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS historic_orders (
		order_id      BIGINT NOT NULL,
		account_id    BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		state         TEXT NOT NULL,
		volume_remain BIGINT NOT NULL,
		PRIMARY KEY (order_id, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS stream_cursors (
		account_id        BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		stream            TEXT NOT NULL,
		etag              TEXT NOT NULL DEFAULT '',
		body              BYTEA,
		expires_at        TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
		last_fetched_at   TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
		last_processed_id BIGINT NOT NULL DEFAULT 0,
		suspended         BOOLEAN NOT NULL DEFAULT FALSE,
		alert_sent        BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (account_id, stream)
	)`,

	`CREATE TABLE IF NOT EXISTS backfill_states (
		account_id   BIGINT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
		phase        TEXT NOT NULL DEFAULT 'new',
		before_id    BIGINT,
		completed_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS undercut_flags (
		order_id               BIGINT NOT NULL,
		account_id             BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		undercut               BOOLEAN NOT NULL,
		competitor_price       NUMERIC(20,2),
		competitor_location_id BIGINT,
		PRIMARY KEY (order_id, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS contracts (
		contract_id BIGINT NOT NULL,
		account_id  BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		type        TEXT NOT NULL,
		status      TEXT NOT NULL,
		price       NUMERIC(20,2) NOT NULL DEFAULT 0,
		reward      NUMERIC(20,2) NOT NULL DEFAULT 0,
		issuer_id   BIGINT NOT NULL,
		date_issued TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (contract_id, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS locations (
		location_id BIGINT PRIMARY KEY,
		system_id   BIGINT NOT NULL,
		region_id   BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS jump_distances (
		origin_system_id      BIGINT NOT NULL,
		destination_system_id BIGINT NOT NULL,
		jumps                 INT NOT NULL,
		PRIMARY KEY (origin_system_id, destination_system_id)
	)`,

	`CREATE TABLE IF NOT EXISTS names (
		id       BIGINT PRIMARY KEY,
		name     TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT ''
	)`,
}

// InitSchema creates all tables on startup, mirroring a fresh deployment.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range _schema {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("can't apply schema statement: %w", err)
		}
	}
	return nil
}
