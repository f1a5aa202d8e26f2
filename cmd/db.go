package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the invoice and dispute database",
}

type migrator interface {
	Migrate(ctx context.Context) error
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the invoice and dispute tables",
	Long:  "Creates missing tables and indexes. Running it again is a no-op.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := f.Repository(cmd.Context())
		if err != nil {
			return err
		}
		m, ok := repo.(migrator)
		if !ok {
			log.Info().Msg("in-memory repository needs no migration")
			return nil
		}
		if err := m.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		logSuccess("database schema is up to date")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset CARRIER",
	Short: "Delete every invoice and dispute of a carrier",
	Long: `Deletes the disputes and then the invoices stored for the carrier. The next full sync
rebuilds them from the portal. Asks for confirmation unless --yes is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		c, err := f.Carrier(args[0])
		if err != nil {
			return err
		}
		repo, err := f.Repository(cmd.Context())
		if err != nil {
			return err
		}

		counts, err := repo.Counts(cmd.Context(), c.Type)
		if err != nil {
			return err
		}
		if counts.Invoices == 0 && counts.Disputes == 0 {
			log.Info().Msgf("nothing stored for %s", c.Name)
			return nil
		}
		if !yes && !confirm(fmt.Sprintf("Delete %d dispute(s) and %d invoice(s) of %s?",
			counts.Disputes, counts.Invoices, bold(c.Name))) {
			log.Info().Msg("aborted")
			return nil
		}

		deleted, err := repo.Reset(cmd.Context(), c.Type)
		if err != nil {
			return fmt.Errorf("resetting %s: %w", c.Name, err)
		}
		logSuccess("deleted %d dispute(s) and %d invoice(s) of %s", deleted.Disputes, deleted.Invoices, c.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd, dbResetCmd)

	dbResetCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}
