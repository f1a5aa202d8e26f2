package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
	"github.com/nitrotech24/disputa-portal-conferencia/pkg/client"
)

var auditInspectCmd = &cobra.Command{
	Use:     "inspect RUN-ID",
	Short:   "Show every audit entry of one run in full detail",
	Example: `  disputa audit inspect cs1q8e2p9b6s73f0v6ag`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := args[0]
		opts := client.ListAuditsOpts{ID: runID}

		var (
			entries     []core.AuditEntry
			correlation string
			err         error
		)
		if f.DaemonAddr != "" {
			cli, cerr := f.GetClient()
			if cerr != nil {
				return cerr
			}
			entries, correlation, err = cli.ListAudits(cmd.Context(), opts)
		} else {
			entries, err = localAudits(opts)
		}
		if err != nil {
			return logError(err, correlation, "failed to retrieve audit log entries")
		}
		if len(entries) == 0 {
			log.Warn().Str("run_id", runID).Msg("no audit log entries found")
			return nil
		}

		red := color.New(color.FgRed).SprintFunc()
		printKV := func(key string, val any) {
			fmt.Printf("  %-26s %v\n", faint(key)+":", val)
		}

		for _, entry := range entries {
			outcome := color.GreenString("success")
			if !entry.Success {
				outcome = red("failed")
			}

			fmt.Println(bold("\n── " + entry.Action + " ──"))
			printKV("Run ID", entry.ID)
			printKV("Time", entry.Time.Local().Format(time.RFC1123))
			printKV("Carrier", entry.Carrier)
			if entry.Scope != "" {
				printKV("Scope", entry.Scope)
			}
			printKV("Outcome", outcome)
			if entry.Forced {
				printKV("Forced", "yes")
			}
			if entry.Duration != "" {
				printKV("Duration", entry.Duration)
			}
			if entry.TokenFingerprint != "" {
				printKV("Fingerprint", entry.TokenFingerprint)
			}
			if entry.Error != "" {
				printKV("Error Message", red(entry.Error))
			}
			if len(entry.Metadata) > 0 {
				printKV("Metadata", "")
				keys := make([]string, 0, len(entry.Metadata))
				for k := range entry.Metadata {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("       %-16s %v\n", faint(k)+":", entry.Metadata[k])
				}
			}
		}
		fmt.Println()
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditInspectCmd)
}
