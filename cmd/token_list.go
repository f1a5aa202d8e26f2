package cmd

import (
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/carriers"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/service"
)

var tokenListCmd = &cobra.Command{
	Use:     "list [CARRIER]",
	Aliases: []string{"ls"},
	Short:   "List cached tokens",
	Long: `Lists the cached tokens of all carriers, or of one. Token values are never printed.
With --check every cached token is checked against the carrier's validity oracle,
which may call the portal (Hapag) but never logs in.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		check, _ := cmd.Flags().GetBool("check")

		registry, err := f.Carriers()
		if err != nil {
			return err
		}
		list := registry.All()
		if len(args) == 1 {
			c, err := registry.Get(args[0])
			if err != nil {
				return err
			}
			list = []*carriers.Carrier{c}
		}

		credentials, err := f.Store()
		if err != nil {
			return err
		}

		t := newTable("Carrier", "Scope", "Customer", "State", "Fingerprint", "Captured", "Expires")
		for _, c := range list {
			for _, st := range c.Tokens.Status(cmd.Context()) {
				if check && st.State == service.StateCachedUnverified {
					tok, err := credentials.Load(cmd.Context(), c.Name, st.Scope)
					if err != nil {
						log.Warn().Err(err).Str("scope", st.Scope).Msg("cannot load token")
					} else if tok != nil && c.Oracle.IsValid(cmd.Context(), tok) {
						st.State = service.StateValid
					} else {
						st.State = service.StateExpired
					}
				}
				t.AppendRow(table.Row{
					bold(c.Name), st.Scope, truncate(st.CustomerName, 30), stateString(st.State),
					st.Fingerprint, since(st.CapturedAt), until(st.Expiry),
				})
			}
		}
		t.Render()
		return nil
	},
}

func stateString(s service.State) string {
	switch s {
	case service.StateValid:
		return greenCheck + " " + string(s)
	case service.StateExpired, service.StateRenewFailed, service.StateNoToken:
		return redCross + " " + color.RedString(string(s))
	case service.StateRenewing:
		return color.BlueString(string(s))
	default:
		return yellowDot + " " + string(s)
	}
}

func init() {
	tokenCmd.AddCommand(tokenListCmd)

	tokenListCmd.Flags().Bool("check", false, "Check each cached token against the validity oracle")
}
