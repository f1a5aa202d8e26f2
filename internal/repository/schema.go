package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS invoice (
		id                   BIGSERIAL PRIMARY KEY,
		numero_invoice       TEXT NOT NULL,
		armador              TEXT NOT NULL,
		customer_code        TEXT,
		customer_name        TEXT,
		numero_bl            TEXT,
		data_emissao_invoice TIMESTAMPTZ,
		valor                NUMERIC(14, 2),
		moeda                TEXT,
		status               TEXT,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		synced_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (numero_invoice, armador)
	)`,
	`CREATE INDEX IF NOT EXISTS invoice_armador_customer_idx ON invoice (armador, customer_code)`,
	`CREATE TABLE IF NOT EXISTS disputa (
		id                  BIGSERIAL PRIMARY KEY,
		invoice_id          BIGINT NOT NULL REFERENCES invoice (id),
		dispute_number      TEXT NOT NULL,
		status              TEXT NOT NULL,
		status_code         TEXT,
		disputed_amount     NUMERIC(14, 2),
		currency            TEXT,
		reason_code         TEXT,
		reason_description  TEXT,
		dispute_type        TEXT,
		invoice_due_date    TEXT,
		agent_name          TEXT,
		agent_email         TEXT,
		reference           TEXT,
		allow_second_review BOOLEAN,
		api_created_date    TEXT,
		api_last_modified   TEXT,
		customer_code       TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		synced_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (dispute_number, invoice_id)
	)`,
	`CREATE INDEX IF NOT EXISTS disputa_synced_at_idx ON disputa (synced_at)`,
}

// Migrate creates the invoice and disputa tables if they do not exist yet.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i+1, err)
		}
	}
	log.Ctx(ctx).Info().Int("statements", len(schema)).Msg("database schema is up to date")
	return nil
}
