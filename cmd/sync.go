package cmd

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/sync"
)

var syncOpts struct {
	customer string
	limit    int
	workers  int
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror invoices and disputes from the carrier portals into the database",
	Long: `Sync jobs fetch invoices and disputes from the carrier APIs and upsert them. A failing
invoice or dispute is reported and never aborts the run; a run without a valid token does.`,
}

// runJob runs job on the given carriers and prints one summary table.
func runJob(cmd *cobra.Command, job string, names []string) error {
	registry, err := f.Carriers()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		names = registry.Names()
	}
	syncer, err := f.Syncer(cmd.Context(), syncOpts.workers)
	if err != nil {
		return err
	}

	ctx := core.WithRunID(cmd.Context(), "")
	opts := sync.Options{Customer: syncOpts.customer, Limit: syncOpts.limit}

	var (
		reports []*sync.Report
		errs    []error
	)
	for _, name := range names {
		c, err := registry.Get(name)
		if err != nil {
			return err
		}
		out, err := syncer.Run(ctx, c, job, opts)
		reports = append(reports, out...)
		if err != nil {
			if errors.Is(err, sync.ErrUnsupported) && len(names) > 1 {
				log.Debug().Err(err).Msg("skipping carrier")
				continue
			}
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(reports) > 0 {
		printReports(reports)
	}
	if len(errs) > 0 {
		return logError(errors.Join(errs...), core.RunID(ctx), job+" sync failed")
	}
	for _, r := range reports {
		if r.Failed > 0 {
			return BeQuietError{}
		}
	}
	return nil
}

func bindSyncFlags(flags *pflag.FlagSet) {
	flags.StringVar(&syncOpts.customer, "customer", "", "Limit Maersk jobs to one customer code")
	flags.IntVar(&syncOpts.limit, "limit", 0, "Look at most at this many stored invoices (0 = all)")
	flags.IntVar(&syncOpts.workers, "workers", 0, "Parallel requests (default sync.workers)")
}

func jobCommand(job, use, short, long string, args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, job, args)
		},
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)

	disputes := jobCommand(config.JobDisputes, "disputes CARRIER",
		"Sync the disputes of the stored invoices",
		`For every stored invoice of the carrier the current dispute is fetched and upserted.
Maersk runs per customer; --customer limits it to one.`,
		cobra.ExactArgs(1))
	invoices := jobCommand(config.JobInvoices, "invoices CARRIER",
		"Sync the invoice overview (Hapag)", "", cobra.ExactArgs(1))
	stale := jobCommand(config.JobStale, "stale CARRIER",
		"Refresh disputes that were not synced recently",
		`Re-fetches every stored dispute that was last synced longer than sync.stale_after ago
and whose status is not final (sync.final_status_expr).`,
		cobra.ExactArgs(1))
	importMissing := jobCommand(config.JobImportMissing, "import-missing CARRIER",
		"Import invoices that have disputes but are not stored yet (Maersk)", "", cobra.ExactArgs(1))
	all := jobCommand(config.JobFull, "all [CARRIER...]",
		"Run the full pipeline for every carrier",
		`Maersk: import missing invoices, sync disputes and refresh stale disputes per customer.
Hapag: sync invoices, sync disputes and refresh stale disputes.`,
		cobra.ArbitraryArgs)

	for _, c := range []*cobra.Command{disputes, invoices, stale, importMissing, all} {
		bindSyncFlags(c.Flags())
		syncCmd.AddCommand(c)
	}
}
