package cmd

import (
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
	"github.com/nitrotech24/disputa-portal-conferencia/pkg/client"
)

var auditOpts client.ListAuditsOpts

var auditLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Retrieve and display audit log entries",
	Long: `Shows token renewals and invalidations. Reads from the daemon given by --daemon,
otherwise from the audit file of the local config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			entries     []core.AuditEntry
			correlation string
			err         error
		)
		if f.DaemonAddr != "" {
			cli, err := f.GetClient()
			if err != nil {
				return err
			}
			log.Debug().Msg("Fetching audit log from daemon...")
			entries, correlation, err = cli.ListAudits(cmd.Context(), auditOpts)
			if err != nil {
				return logError(err, correlation, "could not fetch audit log")
			}
		} else {
			entries, err = localAudits(auditOpts)
			if err != nil {
				return err
			}
		}

		t := newTable("Time", "Run", "Action", "Carrier", "Scope", "OK", "Fingerprint", "Took", "Error")
		for _, e := range entries {
			ok := greenCheck
			if !e.Success {
				ok = redCross
			}
			t.AppendRow(table.Row{
				e.Time.Format(time.RFC3339),
				faint(e.ID),
				e.Action,
				e.Carrier,
				e.Scope,
				ok,
				e.TokenFingerprint,
				e.Duration,
				color.RedString(truncate(e.Error, 50)),
			})
		}
		t.Render()
		return nil
	},
}

func localAudits(opts client.ListAuditsOpts) ([]core.AuditEntry, error) {
	auditor, err := f.Auditor()
	if err != nil {
		return nil, err
	}
	reader, ok := auditor.(core.AuditReader)
	if !ok {
		log.Warn().Msg("auditing is disabled in the config, nothing to show")
		return nil, nil
	}
	return reader.Find(func(e core.AuditEntry) bool {
		return (opts.ID == "" || e.ID == opts.ID) &&
			(opts.Carrier == "" || e.Carrier == opts.Carrier) &&
			(opts.Scope == "" || e.Scope == opts.Scope) &&
			(opts.Action == "" || e.Action == opts.Action) &&
			(opts.Fingerprint == "" || e.TokenFingerprint == opts.Fingerprint)
	}, int(opts.Limit))
}

func init() {
	auditCmd.AddCommand(auditLogCmd)

	auditLogCmd.Flags().UintVarP(&auditOpts.Limit, "limit", "n", 50, "Maximum number of entries")
	auditLogCmd.Flags().StringVar(&auditOpts.ID, "run", "", "Only entries of this run id")
	auditLogCmd.Flags().StringVar(&auditOpts.Carrier, "carrier", "", "Only entries of this carrier")
	auditLogCmd.Flags().StringVar(&auditOpts.Scope, "scope", "", "Only entries of this scope")
	auditLogCmd.Flags().StringVar(&auditOpts.Action, "action", "", "Only entries with this action (e.g. token.renew)")
	auditLogCmd.Flags().StringVar(&auditOpts.Fingerprint, "fingerprint", "", "Only entries of this token fingerprint")
}
