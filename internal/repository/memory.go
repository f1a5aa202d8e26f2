package repository

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var _ core.Repository = (*MemoryRepository)(nil)

type invoiceKey struct {
	number  string
	carrier string
}

type disputeKey struct {
	number    string
	invoiceID int64
}

type invoiceRow struct {
	core.Invoice
	updatedAt time.Time
	syncedAt  time.Time
}

// MemoryRepository keeps rows in maps and follows the same upsert rules as PostgresRepository.
// It backs tests and --dry-run.
type MemoryRepository struct {
	// Now is the clock used for updated_at and synced_at.
	Now func() time.Time

	mu       sync.Mutex
	nextID   int64
	invoices map[invoiceKey]*invoiceRow
	byID     map[int64]*invoiceRow
	disputes map[disputeKey]*core.StoredDispute
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		Now:      time.Now,
		invoices: make(map[invoiceKey]*invoiceRow),
		byID:     make(map[int64]*invoiceRow),
		disputes: make(map[disputeKey]*core.StoredDispute),
	}
}

func (r *MemoryRepository) Close() {}

func (r *MemoryRepository) UpsertInvoice(_ context.Context, inv core.Invoice) (int64, bool, error) {
	if inv.Number == "" || inv.Carrier == "" {
		return 0, false, errors.New("invoice number and carrier are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.Now()
	key := invoiceKey{inv.Number, inv.Carrier}
	row, ok := r.invoices[key]
	if !ok {
		r.nextID++
		inv.ID = r.nextID
		row = &invoiceRow{Invoice: inv, updatedAt: now, syncedAt: now}
		r.invoices[key] = row
		r.byID[inv.ID] = row
		return inv.ID, true, nil
	}

	merged := mergeInvoice(row.Invoice, inv)
	changed := !reflect.DeepEqual(merged, row.Invoice)
	row.Invoice = merged
	row.syncedAt = now
	if changed {
		row.updatedAt = now
	}
	return row.ID, changed, nil
}

// mergeInvoice overlays the non-empty fields of in onto stored.
func mergeInvoice(stored, in core.Invoice) core.Invoice {
	out := stored
	if in.CustomerCode != "" {
		out.CustomerCode = in.CustomerCode
	}
	if in.CustomerName != "" {
		out.CustomerName = in.CustomerName
	}
	if in.BookingRef != "" {
		out.BookingRef = in.BookingRef
	}
	if !in.IssuedAt.IsZero() {
		out.IssuedAt = in.IssuedAt
	}
	if in.Amount != nil {
		out.Amount = in.Amount
	}
	if in.Currency != "" {
		out.Currency = in.Currency
	}
	if in.Status != "" {
		out.Status = in.Status
	}
	return out
}

func (r *MemoryRepository) ListInvoices(_ context.Context, filter core.InvoiceFilter) ([]core.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.Invoice
	for _, row := range r.invoices {
		if filter.Carrier != "" && row.Carrier != filter.Carrier {
			continue
		}
		if filter.Customer != "" && row.CustomerCode != filter.Customer {
			continue
		}
		out = append(out, row.Invoice)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) InvoiceNumbers(_ context.Context, carrier string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := make(map[string]struct{})
	for key := range r.invoices {
		if key.carrier == carrier {
			set[key.number] = struct{}{}
		}
	}
	return set, nil
}

func (r *MemoryRepository) UpsertDispute(_ context.Context, invoiceID int64, d core.Dispute) (int64, bool, error) {
	if d.Number == "" || d.Status == "" {
		return 0, false, errors.New("dispute number and status are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.byID[invoiceID]
	if !ok {
		return 0, false, errors.New("invoice does not exist")
	}
	// the invoice number is a property of the invoice row, not of the dispute
	d.InvoiceNumber = ""

	now := r.Now()
	key := disputeKey{d.Number, invoiceID}
	row, ok := r.disputes[key]
	if !ok {
		r.nextID++
		row = &core.StoredDispute{
			Dispute:   d,
			ID:        r.nextID,
			InvoiceID: inv.ID,
			UpdatedAt: now,
			SyncedAt:  now,
		}
		r.disputes[key] = row
		return row.ID, true, nil
	}

	changed := !reflect.DeepEqual(row.Dispute, d)
	row.Dispute = d
	row.SyncedAt = now
	if changed {
		row.UpdatedAt = now
	}
	return row.ID, changed, nil
}

func (r *MemoryRepository) ListStale(_ context.Context, carrier, customer string, syncedBefore time.Time) ([]core.StoredDispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.StoredDispute
	for _, row := range r.disputes {
		inv := r.byID[row.InvoiceID]
		if inv.Carrier != carrier || !row.SyncedAt.Before(syncedBefore) {
			continue
		}
		sd := *row
		sd.InvoiceNumber = inv.Number
		if sd.CustomerCode == "" {
			sd.CustomerCode = inv.CustomerCode
		}
		if customer != "" && sd.CustomerCode != customer {
			continue
		}
		out = append(out, sd)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SyncedAt.Equal(out[j].SyncedAt) {
			return out[i].SyncedAt.Before(out[j].SyncedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Dispute returns the stored dispute or false. Used by tests to inspect timestamps.
func (r *MemoryRepository) Dispute(number string, invoiceID int64) (core.StoredDispute, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.disputes[disputeKey{number, invoiceID}]
	if !ok {
		return core.StoredDispute{}, false
	}
	sd := *row
	sd.InvoiceNumber = r.byID[invoiceID].Number
	return sd, true
}

func (r *MemoryRepository) Counts(_ context.Context, carrier string) (core.Counts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts(carrier), nil
}

func (r *MemoryRepository) counts(carrier string) core.Counts {
	var c core.Counts
	for key := range r.invoices {
		if key.carrier == carrier {
			c.Invoices++
		}
	}
	for _, row := range r.disputes {
		if r.byID[row.InvoiceID].Carrier == carrier {
			c.Disputes++
		}
	}
	return c
}

func (r *MemoryRepository) Reset(_ context.Context, carrier string) (core.Counts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := r.counts(carrier)
	for key, row := range r.disputes {
		if r.byID[row.InvoiceID].Carrier == carrier {
			delete(r.disputes, key)
		}
	}
	for key, row := range r.invoices {
		if key.carrier == carrier {
			delete(r.byID, row.ID)
			delete(r.invoices, key)
		}
	}
	return deleted, nil
}
