package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var tokenRefreshCmd = &cobra.Command{
	Use:   "refresh CARRIER",
	Short: "Renew every token of a carrier",
	Long: `Logs in and renews the tokens of all scopes of the carrier. Maersk captures every customer
in one browser session; customers the login cannot see are reported as failures.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := f.Carrier(args[0])
		if err != nil {
			return err
		}

		ctx := core.WithRunID(cmd.Context(), "")
		log.Info().Msgf("Renewing tokens of %s...", bold(c.Name))
		tokens, failures, err := c.Tokens.RefreshAll(ctx, c.Scopes)
		if err != nil {
			return logError(err, core.RunID(ctx), "renewal failed")
		}

		t := newTable("Scope", "Customer", "Fingerprint", "Expires")
		for scope, tok := range tokens {
			t.AppendRow(table.Row{scope, tok.CustomerName, tok.Fingerprint(), until(tok.Expiry)})
		}
		t.SortBy([]table.SortBy{{Name: "Scope", Mode: table.Asc}})
		t.Render()

		for _, fl := range failures {
			log.Warn().Msgf("%s %s: %s", redCross, fl.Scope, fl.Reason)
		}
		if len(failures) > 0 {
			return BeQuietError{}
		}
		logSuccess("renewed %d token(s)", len(tokens))
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenRefreshCmd)
}
