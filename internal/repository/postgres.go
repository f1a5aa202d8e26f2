// Package repository persists invoices and disputes. Upserts are idempotent: synced_at moves on
// every write while updated_at only moves when stored content actually changed.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var _ core.Repository = (*PostgresRepository)(nil)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects a pool to cfg.DSN and pings it.
func NewPostgresRepository(ctx context.Context, cfg config.DatabaseConfig) (*PostgresRepository, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// Empty incoming fields keep what is stored; one carrier endpoint rarely knows every column.
const upsertInvoiceSQL = `
INSERT INTO invoice AS i (numero_invoice, armador, customer_code, customer_name, numero_bl,
	data_emissao_invoice, valor, moeda, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (numero_invoice, armador) DO UPDATE SET
	customer_code        = COALESCE(EXCLUDED.customer_code, i.customer_code),
	customer_name        = COALESCE(EXCLUDED.customer_name, i.customer_name),
	numero_bl            = COALESCE(EXCLUDED.numero_bl, i.numero_bl),
	data_emissao_invoice = COALESCE(EXCLUDED.data_emissao_invoice, i.data_emissao_invoice),
	valor                = COALESCE(EXCLUDED.valor, i.valor),
	moeda                = COALESCE(EXCLUDED.moeda, i.moeda),
	status               = COALESCE(EXCLUDED.status, i.status),
	synced_at            = now(),
	updated_at           = CASE
		WHEN (i.customer_code, i.customer_name, i.numero_bl, i.data_emissao_invoice, i.valor, i.moeda, i.status)
			IS DISTINCT FROM
			(COALESCE(EXCLUDED.customer_code, i.customer_code),
			 COALESCE(EXCLUDED.customer_name, i.customer_name),
			 COALESCE(EXCLUDED.numero_bl, i.numero_bl),
			 COALESCE(EXCLUDED.data_emissao_invoice, i.data_emissao_invoice),
			 COALESCE(EXCLUDED.valor, i.valor),
			 COALESCE(EXCLUDED.moeda, i.moeda),
			 COALESCE(EXCLUDED.status, i.status))
		THEN now()
		ELSE i.updated_at
	END
RETURNING id, updated_at = synced_at`

func (r *PostgresRepository) UpsertInvoice(ctx context.Context, inv core.Invoice) (int64, bool, error) {
	if inv.Number == "" || inv.Carrier == "" {
		return 0, false, errors.New("invoice number and carrier are required")
	}
	var (
		id      int64
		changed bool
	)
	err := r.pool.QueryRow(ctx, upsertInvoiceSQL,
		inv.Number, inv.Carrier,
		nullString(inv.CustomerCode), nullString(inv.CustomerName), nullString(inv.BookingRef),
		nullTime(inv.IssuedAt), inv.Amount, nullString(inv.Currency), nullString(inv.Status),
	).Scan(&id, &changed)
	if err != nil {
		return 0, false, fmt.Errorf("upserting invoice %s: %w", inv.Number, err)
	}
	return id, changed, nil
}

const selectInvoiceSQL = `
SELECT id, numero_invoice, armador, COALESCE(customer_code, ''), COALESCE(customer_name, ''),
	COALESCE(numero_bl, ''), data_emissao_invoice, valor::float8, COALESCE(moeda, ''), COALESCE(status, '')
FROM invoice
WHERE ($1::text = '' OR armador = $1) AND ($2::text = '' OR customer_code = $2)
ORDER BY id`

func (r *PostgresRepository) ListInvoices(ctx context.Context, filter core.InvoiceFilter) ([]core.Invoice, error) {
	query := selectInvoiceSQL
	args := []any{filter.Carrier, filter.Customer}
	if filter.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	invoices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Invoice, error) {
		var (
			inv    core.Invoice
			issued *time.Time
		)
		err := row.Scan(&inv.ID, &inv.Number, &inv.Carrier, &inv.CustomerCode, &inv.CustomerName,
			&inv.BookingRef, &issued, &inv.Amount, &inv.Currency, &inv.Status)
		if issued != nil {
			inv.IssuedAt = *issued
		}
		return inv, err
	})
	if err != nil {
		return nil, fmt.Errorf("reading invoices: %w", err)
	}
	return invoices, nil
}

func (r *PostgresRepository) InvoiceNumbers(ctx context.Context, carrier string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT numero_invoice FROM invoice WHERE armador = $1`, carrier)
	if err != nil {
		return nil, fmt.Errorf("listing invoice numbers: %w", err)
	}
	numbers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("reading invoice numbers: %w", err)
	}

	set := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		set[n] = struct{}{}
	}
	return set, nil
}

const upsertDisputeSQL = `
INSERT INTO disputa AS d (invoice_id, dispute_number, status, status_code, disputed_amount, currency,
	reason_code, reason_description, dispute_type, invoice_due_date, agent_name, agent_email,
	reference, allow_second_review, api_created_date, api_last_modified, customer_code)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (dispute_number, invoice_id) DO UPDATE SET
	status              = EXCLUDED.status,
	status_code         = EXCLUDED.status_code,
	disputed_amount     = EXCLUDED.disputed_amount,
	currency            = EXCLUDED.currency,
	reason_code         = EXCLUDED.reason_code,
	reason_description  = EXCLUDED.reason_description,
	dispute_type        = EXCLUDED.dispute_type,
	invoice_due_date    = EXCLUDED.invoice_due_date,
	agent_name          = EXCLUDED.agent_name,
	agent_email         = EXCLUDED.agent_email,
	reference           = EXCLUDED.reference,
	allow_second_review = EXCLUDED.allow_second_review,
	api_created_date    = EXCLUDED.api_created_date,
	api_last_modified   = EXCLUDED.api_last_modified,
	customer_code       = EXCLUDED.customer_code,
	synced_at           = now(),
	updated_at          = CASE
		WHEN (d.status, d.status_code, d.disputed_amount, d.currency, d.reason_code, d.reason_description,
			d.dispute_type, d.invoice_due_date, d.agent_name, d.agent_email, d.reference,
			d.allow_second_review, d.api_created_date, d.api_last_modified, d.customer_code)
			IS DISTINCT FROM
			(EXCLUDED.status, EXCLUDED.status_code, EXCLUDED.disputed_amount, EXCLUDED.currency,
			 EXCLUDED.reason_code, EXCLUDED.reason_description, EXCLUDED.dispute_type,
			 EXCLUDED.invoice_due_date, EXCLUDED.agent_name, EXCLUDED.agent_email, EXCLUDED.reference,
			 EXCLUDED.allow_second_review, EXCLUDED.api_created_date, EXCLUDED.api_last_modified,
			 EXCLUDED.customer_code)
		THEN now()
		ELSE d.updated_at
	END
RETURNING id, updated_at = synced_at`

func (r *PostgresRepository) UpsertDispute(ctx context.Context, invoiceID int64, d core.Dispute) (int64, bool, error) {
	if d.Number == "" || d.Status == "" {
		return 0, false, errors.New("dispute number and status are required")
	}
	var (
		id      int64
		changed bool
	)
	err := r.pool.QueryRow(ctx, upsertDisputeSQL,
		invoiceID, d.Number, d.Status, nullString(d.StatusCode), d.Amount, nullString(d.Currency),
		nullString(d.ReasonCode), nullString(d.ReasonDescription), nullString(d.Type),
		nullString(d.InvoiceDueDate), nullString(d.AgentName), nullString(d.AgentEmail),
		nullString(d.Reference), d.AllowSecondReview, nullString(d.CreatedAt),
		nullString(d.LastModifiedAt), nullString(d.CustomerCode),
	).Scan(&id, &changed)
	if err != nil {
		return 0, false, fmt.Errorf("upserting dispute %s: %w", d.Number, err)
	}
	return id, changed, nil
}

const listStaleSQL = `
SELECT d.id, d.invoice_id, d.dispute_number, i.numero_invoice, d.status, COALESCE(d.status_code, ''),
	d.disputed_amount::float8, COALESCE(d.currency, ''), COALESCE(d.reason_code, ''),
	COALESCE(d.reason_description, ''), COALESCE(d.dispute_type, ''), COALESCE(d.invoice_due_date, ''),
	COALESCE(d.agent_name, ''), COALESCE(d.agent_email, ''), COALESCE(d.reference, ''),
	d.allow_second_review, COALESCE(d.api_created_date, ''), COALESCE(d.api_last_modified, ''),
	COALESCE(d.customer_code, i.customer_code, ''), d.updated_at, d.synced_at
FROM disputa d
JOIN invoice i ON i.id = d.invoice_id
WHERE i.armador = $1
	AND ($2::text = '' OR COALESCE(d.customer_code, i.customer_code) = $2)
	AND d.synced_at < $3
ORDER BY d.synced_at, d.id`

func (r *PostgresRepository) ListStale(ctx context.Context, carrier, customer string, syncedBefore time.Time) ([]core.StoredDispute, error) {
	rows, err := r.pool.Query(ctx, listStaleSQL, carrier, customer, syncedBefore)
	if err != nil {
		return nil, fmt.Errorf("listing stale disputes: %w", err)
	}
	disputes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.StoredDispute, error) {
		var sd core.StoredDispute
		err := row.Scan(&sd.ID, &sd.InvoiceID, &sd.Number, &sd.InvoiceNumber, &sd.Status, &sd.StatusCode,
			&sd.Amount, &sd.Currency, &sd.ReasonCode, &sd.ReasonDescription, &sd.Type, &sd.InvoiceDueDate,
			&sd.AgentName, &sd.AgentEmail, &sd.Reference, &sd.AllowSecondReview, &sd.CreatedAt,
			&sd.LastModifiedAt, &sd.CustomerCode, &sd.UpdatedAt, &sd.SyncedAt)
		return sd, err
	})
	if err != nil {
		return nil, fmt.Errorf("reading stale disputes: %w", err)
	}
	return disputes, nil
}

func (r *PostgresRepository) Counts(ctx context.Context, carrier string) (core.Counts, error) {
	var c core.Counts
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM invoice WHERE armador = $1),
			(SELECT count(*) FROM disputa WHERE invoice_id IN (SELECT id FROM invoice WHERE armador = $1))`,
		carrier,
	).Scan(&c.Invoices, &c.Disputes)
	if err != nil {
		return core.Counts{}, fmt.Errorf("counting rows of %s: %w", carrier, err)
	}
	return c, nil
}

// Reset deletes the carrier's disputes and then its invoices in one transaction.
func (r *PostgresRepository) Reset(ctx context.Context, carrier string) (core.Counts, error) {
	var deleted core.Counts
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM disputa WHERE invoice_id IN (SELECT id FROM invoice WHERE armador = $1)`, carrier)
		if err != nil {
			return fmt.Errorf("deleting disputes: %w", err)
		}
		deleted.Disputes = tag.RowsAffected()

		if tag, err = tx.Exec(ctx, `DELETE FROM invoice WHERE armador = $1`, carrier); err != nil {
			return fmt.Errorf("deleting invoices: %w", err)
		}
		deleted.Invoices = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return core.Counts{}, fmt.Errorf("resetting %s: %w", carrier, err)
	}
	return deleted, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
