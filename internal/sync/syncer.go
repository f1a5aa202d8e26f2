package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/carriers/maersk"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

// TokenProvider is the part of the token service used for the pre-flight check.
type TokenProvider interface {
	GetValidToken(ctx context.Context, scope string, force bool) (*core.Token, error)
}

// MaerskAPI is the part of the Maersk client the jobs use.
type MaerskAPI interface {
	ListAllDisputes(ctx context.Context, customer string) ([]maersk.DisputeRef, error)
	GetDisputeDetails(ctx context.Context, customer, disputeID string) (core.Dispute, error)
	FindInvoice(ctx context.Context, customer, number string) (core.Invoice, string, error)
}

// HapagAPI is the part of the Hapag client the jobs use.
type HapagAPI interface {
	ListInvoices(ctx context.Context) ([]core.Invoice, error)
	GetDispute(ctx context.Context, number string) (core.Dispute, error)
	DisputesByInvoice(ctx context.Context, invoiceNumber string) ([]core.Dispute, error)
}

type Syncer struct {
	repo       core.Repository
	workers    int
	staleAfter time.Duration
	final      *vm.Program

	// Now is the clock used for the stale cutoff.
	Now func() time.Time
}

// New creates a Syncer. The final status expression is compiled here if the
// configuration did not compile it already.
func New(repo core.Repository, cfg config.SyncConfig) (*Syncer, error) {
	program := cfg.FinalStatusProgram
	if program == nil {
		source := cfg.FinalStatusExpr
		if source == "" {
			source = config.DefaultFinalStatusExpr
		}
		var err error
		program, err = expr.Compile(source, expr.Env(config.FinalStatusEnv("", "", "", "")), expr.AsBool())
		if err != nil {
			return nil, &core.ConfigurationError{Problems: []string{fmt.Sprintf("sync.final_status_expr: %v", err)}}
		}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = config.DefaultStaleAfter
	}
	return &Syncer{
		repo:       repo,
		workers:    workers,
		staleAfter: staleAfter,
		final:      program,
		Now:        time.Now,
	}, nil
}

// WithWorkers returns a copy using n workers. n <= 0 keeps the current value.
func (s *Syncer) WithWorkers(n int) *Syncer {
	if n <= 0 {
		return s
	}
	cpy := *s
	cpy.workers = n
	return &cpy
}

// isFinal reports whether a dispute is settled and no longer refreshed. Evaluation errors count as not final.
func (s *Syncer) isFinal(ctx context.Context, d core.StoredDispute, carrier string) bool {
	out, err := expr.Run(s.final, config.FinalStatusEnv(d.Status, d.StatusCode, carrier, d.CustomerCode))
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("dispute", d.Number).Msg("evaluating final status expression")
		return false
	}
	final, _ := out.(bool)
	return final
}

// preflight makes sure a token exists before any worker starts, so workers never
// trigger the first browser login themselves.
func preflight(ctx context.Context, tokens TokenProvider, scopes ...string) error {
	for _, scope := range scopes {
		if _, err := tokens.GetValidToken(ctx, scope, false); err != nil {
			return fmt.Errorf("%w for scope %s: %w", core.ErrNoToken, scope, err)
		}
	}
	return nil
}

// MaerskDisputes matches the customer's disputes to stored invoices and stores the dispute details.
// Invoices without a dispute are skipped. limit <= 0 means every invoice of the customer.
func (s *Syncer) MaerskDisputes(ctx context.Context, tokens TokenProvider, api MaerskAPI, customer string, limit int) (*Report, error) {
	report := NewReport(config.JobDisputes, maersk.Type, customer)
	logger := log.Ctx(ctx).With().Str("job", report.Job).Str("customer", customer).Logger()
	ctx = logger.WithContext(ctx)

	if err := preflight(ctx, tokens, customer); err != nil {
		return nil, err
	}

	refs, err := api.ListAllDisputes(ctx, customer)
	if err != nil {
		return nil, err
	}
	// listing is newest first, so the first dispute of an invoice is its current one
	byInvoice := make(map[string]maersk.DisputeRef, len(refs))
	for _, ref := range refs {
		if ref.InvoiceNumber == "" {
			continue
		}
		if _, ok := byInvoice[ref.InvoiceNumber]; !ok {
			byInvoice[ref.InvoiceNumber] = ref
		}
	}

	invoices, err := s.repo.ListInvoices(ctx, core.InvoiceFilter{Carrier: maersk.Type, Customer: customer, Limit: limit})
	if err != nil {
		return nil, err
	}
	logger.Info().
		Int("disputes", len(refs)).
		Int("disputed_invoices", len(byInvoice)).
		Int("invoices", len(invoices)).
		Int("workers", s.workers).
		Msg("syncing maersk disputes")

	RunPool(ctx, s.workers, invoices, report, invoiceNumber, func(ctx context.Context, inv core.Invoice) Outcome {
		ref, ok := byInvoice[inv.Number]
		if !ok {
			return skipped(inv.Number, "no dispute")
		}
		d, err := api.GetDisputeDetails(ctx, customer, ref.ID)
		if err != nil {
			logger.Warn().Err(err).Str("invoice", inv.Number).Str("dispute", ref.ID).Msg("dispute details failed")
			return failed(inv.Number, err)
		}
		_, c, err := s.repo.UpsertDispute(ctx, inv.ID, d)
		if err != nil {
			return failed(inv.Number, err)
		}
		logger.Debug().Str("invoice", inv.Number).Str("dispute", d.Number).Str("status", d.Status).Bool("changed", c).Msg("dispute stored")
		return changed(inv.Number, c)
	})
	return report.Finish(ctx), nil
}

// HapagDisputes looks up the disputes of every stored Hapag invoice.
func (s *Syncer) HapagDisputes(ctx context.Context, tokens TokenProvider, api HapagAPI, carrier string, limit int) (*Report, error) {
	report := NewReport(config.JobDisputes, carrier, "")
	logger := log.Ctx(ctx).With().Str("job", report.Job).Str("carrier", carrier).Logger()
	ctx = logger.WithContext(ctx)

	if err := preflight(ctx, tokens, core.DefaultScope); err != nil {
		return nil, err
	}
	invoices, err := s.repo.ListInvoices(ctx, core.InvoiceFilter{Carrier: carrier, Limit: limit})
	if err != nil {
		return nil, err
	}
	logger.Info().Int("invoices", len(invoices)).Int("workers", s.workers).Msg("syncing hapag disputes")

	RunPool(ctx, s.workers, invoices, report, invoiceNumber, func(ctx context.Context, inv core.Invoice) Outcome {
		disputes, err := api.DisputesByInvoice(ctx, inv.Number)
		if err != nil {
			return failed(inv.Number, err)
		}
		if len(disputes) == 0 {
			return skipped(inv.Number, "no dispute")
		}
		anyChanged := false
		for _, d := range disputes {
			_, c, err := s.repo.UpsertDispute(ctx, inv.ID, d)
			if err != nil {
				return failed(inv.Number, err)
			}
			anyChanged = anyChanged || c
		}
		return changed(inv.Number, anyChanged)
	})
	return report.Finish(ctx), nil
}

// HapagInvoices stores every invoice listed by the Hapag invoice overview.
func (s *Syncer) HapagInvoices(ctx context.Context, tokens TokenProvider, api HapagAPI, carrier string) (*Report, error) {
	report := NewReport(config.JobInvoices, carrier, "")
	ctx = log.Ctx(ctx).With().Str("job", report.Job).Str("carrier", carrier).Logger().WithContext(ctx)

	if err := preflight(ctx, tokens, core.DefaultScope); err != nil {
		return nil, err
	}
	invoices, err := api.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}

	RunPool(ctx, s.workers, invoices, report, invoiceNumber, func(ctx context.Context, inv core.Invoice) Outcome {
		inv.Carrier = carrier
		_, c, err := s.repo.UpsertInvoice(ctx, inv)
		if err != nil {
			return failed(inv.Number, err)
		}
		return changed(inv.Number, c)
	})
	return report.Finish(ctx), nil
}

// Stale re-fetches disputes that were last synced longer than the stale window ago
// and are not final. Exactly one of mapi and hapi is used, depending on which is set.
func (s *Syncer) Stale(ctx context.Context, tokens TokenProvider, mapi MaerskAPI, hapi HapagAPI, carrier, customer string) (*Report, error) {
	report := NewReport(config.JobStale, carrier, customer)
	logger := log.Ctx(ctx).With().Str("job", report.Job).Str("carrier", carrier).Str("customer", customer).Logger()
	ctx = logger.WithContext(ctx)

	if (mapi == nil) == (hapi == nil) {
		return nil, errors.New("stale refresh needs exactly one carrier client")
	}

	cutoff := s.Now().Add(-s.staleAfter)
	stale, err := s.repo.ListStale(ctx, carrier, customer, cutoff)
	if err != nil {
		return nil, err
	}

	var (
		todo   []core.StoredDispute
		scopes []string
		seen   = make(map[string]struct{})
	)
	for _, d := range stale {
		if s.isFinal(ctx, d, carrier) {
			continue
		}
		if mapi != nil && d.CustomerCode == "" {
			report.Record(skipped(d.Number, "no customer code"))
			continue
		}
		todo = append(todo, d)

		scope := core.DefaultScope
		if mapi != nil {
			scope = d.CustomerCode
		}
		if _, ok := seen[scope]; !ok {
			seen[scope] = struct{}{}
			scopes = append(scopes, scope)
		}
	}
	logger.Info().
		Time("cutoff", cutoff).
		Int("stale", len(stale)).
		Int("refresh", len(todo)).
		Msg("refreshing stale disputes")
	if len(todo) == 0 {
		return report.Finish(ctx), nil
	}

	if err := preflight(ctx, tokens, scopes...); err != nil {
		return nil, err
	}

	RunPool(ctx, s.workers, todo, report, disputeNumber, func(ctx context.Context, sd core.StoredDispute) Outcome {
		var (
			d   core.Dispute
			err error
		)
		if mapi != nil {
			d, err = mapi.GetDisputeDetails(ctx, sd.CustomerCode, sd.Number)
		} else {
			d, err = hapi.GetDispute(ctx, sd.Number)
		}
		if err != nil {
			return failed(sd.Number, err)
		}
		_, c, err := s.repo.UpsertDispute(ctx, sd.InvoiceID, d)
		if err != nil {
			return failed(sd.Number, err)
		}
		return changed(sd.Number, c)
	})
	return report.Finish(ctx), nil
}

// ImportMissing fetches the invoices that have a Maersk dispute but are not stored yet.
// An invoice that no invoice listing knows is skipped.
func (s *Syncer) ImportMissing(ctx context.Context, tokens TokenProvider, api MaerskAPI, customer string) (*Report, error) {
	report := NewReport(config.JobImportMissing, maersk.Type, customer)
	logger := log.Ctx(ctx).With().Str("job", report.Job).Str("customer", customer).Logger()
	ctx = logger.WithContext(ctx)

	if err := preflight(ctx, tokens, customer); err != nil {
		return nil, err
	}
	refs, err := api.ListAllDisputes(ctx, customer)
	if err != nil {
		return nil, err
	}
	known, err := s.repo.InvoiceNumbers(ctx, maersk.Type)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, ref := range refs {
		if ref.InvoiceNumber == "" {
			continue
		}
		if _, ok := known[ref.InvoiceNumber]; ok {
			continue
		}
		known[ref.InvoiceNumber] = struct{}{}
		missing = append(missing, ref.InvoiceNumber)
	}
	logger.Info().Int("disputes", len(refs)).Int("missing", len(missing)).Msg("importing missing invoices")

	RunPool(ctx, s.workers, missing, report, func(n string) string { return n }, func(ctx context.Context, number string) Outcome {
		inv, invoiceType, err := api.FindInvoice(ctx, customer, number)
		if errors.Is(err, core.ErrNotFound) {
			return skipped(number, "not found in any invoice listing")
		}
		if err != nil {
			return failed(number, err)
		}
		_, c, err := s.repo.UpsertInvoice(ctx, inv)
		if err != nil {
			return failed(number, err)
		}
		logger.Debug().Str("invoice", number).Str("type", invoiceType).Msg("invoice imported")
		return changed(number, c)
	})
	return report.Finish(ctx), nil
}

func invoiceNumber(inv core.Invoice) string { return inv.Number }

func disputeNumber(d core.StoredDispute) string { return d.Number }
