package core

import (
	"context"
	"time"
)

// CredentialStore persists the current token per (carrier, scope).
type CredentialStore interface {
	// Load returns the stored token or nil if there is none. Absence is not an error.
	Load(ctx context.Context, carrier, scope string) (*Token, error)

	// LoadAll returns every stored token of the carrier keyed by scope.
	LoadAll(ctx context.Context, carrier string) (map[string]*Token, error)

	// Save replaces the stored token of the token's scope.
	Save(ctx context.Context, token *Token) error

	// SaveAll replaces the given scopes in one write.
	SaveAll(ctx context.Context, carrier string, tokens map[string]*Token) error
}

// Oracle decides whether a token is currently accepted upstream.
// Implementations never fail: anything that cannot be decided is invalid.
type Oracle interface {
	IsValid(ctx context.Context, token *Token) bool
}

// Renewer drives an interactive login and captures a fresh token for one scope.
type Renewer interface {
	// Name returns the carrier type handled by this renewer.
	Name() string

	// Renew returns a fresh token or an error wrapping ErrRenewalFailed. It never returns a partial token.
	Renew(ctx context.Context, scope string) (*Token, error)
}

// BulkRenewer is implemented by renewers whose single login session yields tokens for every scope.
type BulkRenewer interface {
	Renewer

	RenewAll(ctx context.Context) (*BulkRenewal, error)
}

// InvoiceRepository stores invoices keyed by (number, carrier).
type InvoiceRepository interface {
	// UpsertInvoice inserts or updates the invoice and reports whether stored content changed.
	UpsertInvoice(ctx context.Context, invoice Invoice) (id int64, changed bool, err error)

	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)

	// InvoiceNumbers returns the set of invoice numbers stored for the carrier.
	InvoiceNumbers(ctx context.Context, carrier string) (map[string]struct{}, error)
}

// DisputeRepository stores disputes keyed by (dispute number, invoice id).
type DisputeRepository interface {
	// UpsertDispute inserts or updates the dispute and reports whether stored content changed.
	UpsertDispute(ctx context.Context, invoiceID int64, dispute Dispute) (id int64, changed bool, err error)

	// ListStale returns disputes of the carrier last synced before the given time.
	ListStale(ctx context.Context, carrier, customer string, syncedBefore time.Time) ([]StoredDispute, error)
}

// Repository combines both stores plus maintenance operations.
type Repository interface {
	InvoiceRepository
	DisputeRepository

	// Counts returns the number of invoices and disputes stored for the carrier.
	Counts(ctx context.Context, carrier string) (Counts, error)

	// Reset removes every dispute and then every invoice of the carrier.
	Reset(ctx context.Context, carrier string) (Counts, error)

	Close()
}
