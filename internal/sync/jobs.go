package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/carriers"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

// Options narrow a job run.
type Options struct {
	// Customer limits Maersk jobs to one customer. Empty means every configured customer.
	Customer string

	// Limit caps the number of stored invoices a dispute sync looks at. Zero means no cap.
	Limit int
}

// ErrUnsupported is returned for jobs a carrier does not offer.
var ErrUnsupported = errors.New("job is not supported by this carrier")

// Run executes one job for one carrier and returns a report per customer (Maersk) or
// a single report (Hapag). For Maersk, a customer whose run cannot start is logged and
// skipped; the error is returned only if no customer could run at all.
func (s *Syncer) Run(ctx context.Context, c *carriers.Carrier, job string, opts Options) ([]*Report, error) {
	ctx = log.Ctx(ctx).With().Str("carrier", c.Name).Logger().WithContext(ctx)

	switch job {
	case config.JobRefreshTokens:
		report, err := s.RefreshTokens(ctx, c)
		if err != nil {
			return nil, err
		}
		return []*Report{report}, nil
	case config.JobFull:
		return s.Full(ctx, c, opts)
	}

	if c.Hapag != nil {
		var (
			report *Report
			err    error
		)
		switch job {
		case config.JobDisputes:
			report, err = s.HapagDisputes(ctx, c.Tokens, c.Hapag, c.Type, opts.Limit)
		case config.JobInvoices:
			report, err = s.HapagInvoices(ctx, c.Tokens, c.Hapag, c.Type)
		case config.JobStale:
			report, err = s.Stale(ctx, c.Tokens, nil, c.Hapag, c.Type, "")
		default:
			return nil, fmt.Errorf("%s on %s: %w", job, c.Name, ErrUnsupported)
		}
		if err != nil {
			return nil, err
		}
		return []*Report{report}, nil
	}

	var run func(customer string) (*Report, error)
	switch job {
	case config.JobDisputes:
		run = func(customer string) (*Report, error) {
			return s.MaerskDisputes(ctx, c.Tokens, c.Maersk, customer, opts.Limit)
		}
	case config.JobStale:
		run = func(customer string) (*Report, error) {
			return s.Stale(ctx, c.Tokens, c.Maersk, nil, c.Type, customer)
		}
	case config.JobImportMissing:
		run = func(customer string) (*Report, error) {
			return s.ImportMissing(ctx, c.Tokens, c.Maersk, customer)
		}
	default:
		return nil, fmt.Errorf("%s on %s: %w", job, c.Name, ErrUnsupported)
	}
	return forEachCustomer(ctx, c, opts, run)
}

func customers(c *carriers.Carrier, opts Options) ([]string, error) {
	if opts.Customer != "" {
		return []string{opts.Customer}, nil
	}
	if len(c.Scopes) == 0 {
		return nil, &core.ConfigurationError{Problems: []string{
			fmt.Sprintf("carrier '%s' has no customers configured", c.Name),
		}}
	}
	return c.Scopes, nil
}

func forEachCustomer(ctx context.Context, c *carriers.Carrier, opts Options, run func(customer string) (*Report, error)) ([]*Report, error) {
	list, err := customers(c, opts)
	if err != nil {
		return nil, err
	}

	var (
		reports []*Report
		errs    []error
	)
	for _, customer := range list {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := run(customer)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("customer", customer).Msg("customer run failed, skipping")
			errs = append(errs, fmt.Errorf("customer %s: %w", customer, err))
			continue
		}
		reports = append(reports, report)
	}
	if len(reports) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return reports, nil
}

// Full runs the whole pipeline. Maersk: import missing invoices, sync disputes and refresh
// stale disputes per customer. Hapag: sync invoices, sync disputes, refresh stale disputes.
func (s *Syncer) Full(ctx context.Context, c *carriers.Carrier, opts Options) ([]*Report, error) {
	if c.Hapag != nil {
		var reports []*Report
		for _, job := range []string{config.JobInvoices, config.JobDisputes, config.JobStale} {
			out, err := s.Run(ctx, c, job, opts)
			if err != nil {
				return reports, fmt.Errorf("%s: %w", job, err)
			}
			reports = append(reports, out...)
		}
		return reports, nil
	}

	return forEachCustomerPipeline(ctx, c, opts, func(customer string) ([]*Report, error) {
		var reports []*Report
		steps := []func() (*Report, error){
			func() (*Report, error) { return s.ImportMissing(ctx, c.Tokens, c.Maersk, customer) },
			func() (*Report, error) { return s.MaerskDisputes(ctx, c.Tokens, c.Maersk, customer, opts.Limit) },
			func() (*Report, error) { return s.Stale(ctx, c.Tokens, c.Maersk, nil, c.Type, customer) },
		}
		for _, step := range steps {
			report, err := step()
			if err != nil {
				return reports, err
			}
			reports = append(reports, report)
		}
		return reports, nil
	})
}

func forEachCustomerPipeline(ctx context.Context, c *carriers.Carrier, opts Options, run func(customer string) ([]*Report, error)) ([]*Report, error) {
	list, err := customers(c, opts)
	if err != nil {
		return nil, err
	}

	var (
		reports  []*Report
		failures []string
	)
	for _, customer := range list {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		out, err := run(customer)
		reports = append(reports, out...)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("customer", customer).Msg("pipeline failed for customer, continuing with the next")
			failures = append(failures, customer)
		}
	}
	if len(failures) == len(list) {
		return reports, fmt.Errorf("pipeline failed for every customer: %s", strings.Join(failures, ", "))
	}
	return reports, nil
}

// RefreshTokens renews every token of the carrier, using one browser session where the carrier allows it.
func (s *Syncer) RefreshTokens(ctx context.Context, c *carriers.Carrier) (*Report, error) {
	report := NewReport(config.JobRefreshTokens, c.Name, "")
	tokens, failures, err := c.Tokens.RefreshAll(ctx, c.Scopes)
	if err != nil {
		return nil, err
	}
	for scope := range tokens {
		report.Record(Outcome{Item: scope, Result: ResultChanged})
	}
	for _, f := range failures {
		report.Record(failed(f.Scope, errors.New(f.Reason)))
	}
	return report.Finish(ctx), nil
}
