package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/service"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show token states and stored records",
	Long: `Without --daemon: the cached tokens of every carrier and the number of stored invoices
and disputes. With --daemon: the token states and tasks of the running daemon.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if f.DaemonAddr != "" {
			return remoteStatus(cmd)
		}

		registry, err := f.Carriers()
		if err != nil {
			return err
		}
		var states []service.ScopeStatus
		for _, c := range registry.All() {
			states = append(states, c.Tokens.Status(cmd.Context())...)
		}
		printStates(states)

		repo, err := f.Repository(cmd.Context())
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, skipping record counts")
			return nil
		}
		t := newTable("Carrier", "Invoices", "Disputes")
		for _, c := range registry.All() {
			counts, err := repo.Counts(cmd.Context(), c.Type)
			if err != nil {
				return err
			}
			t.AppendRow(table.Row{bold(c.Name), counts.Invoices, counts.Disputes})
		}
		t.Render()
		return nil
	},
}

func remoteStatus(cmd *cobra.Command) error {
	cli, err := f.GetClient()
	if err != nil {
		return err
	}
	if !cli.Healthy(cmd.Context()) {
		return fmt.Errorf("daemon at %s is not healthy", f.DaemonAddr)
	}
	info, _, err := cli.Info(cmd.Context())
	if err != nil {
		return err
	}
	printInfo(info)

	states, err := cli.TokenStates(cmd.Context(), "")
	if err != nil {
		return fmt.Errorf("fetching token states: %w", err)
	}
	printStates(states)

	list, err := cli.ListTasks(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing tasks: %w", err)
	}
	running := 0
	for _, task := range list {
		if task.Running {
			running++
		}
	}
	fmt.Printf("%s %d task(s), %d running (see 'disputa tasks list')\n", faint("›"), len(list), running)
	return nil
}

func printStates(states []service.ScopeStatus) {
	t := newTable("Carrier", "Scope", "Customer", "State", "Fingerprint", "Expires", "Last Error")
	for _, st := range states {
		t.AppendRow(table.Row{
			bold(st.Carrier), st.Scope, truncate(st.CustomerName, 30), stateString(st.State),
			st.Fingerprint, until(st.Expiry), truncate(st.LastError, 40),
		})
	}
	t.Render()
}
