package cmd

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/api/middleware"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/cliconfig"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Create an admin session for the daemon given by --daemon",
	Long: `Signs an admin session token with server.admin_key of the local config and saves it
for the daemon's host, so 'tasks', 'status' and 'audit' can talk to it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if f.DaemonAddr == "" {
			return fmt.Errorf("daemon address not configured (use --daemon or set DISPUTA_DAEMON)")
		}
		cfg, err := f.Config()
		if err != nil {
			return err
		}
		if cfg.Server.AdminKey == "" {
			return fmt.Errorf("server.admin_key is not set, the daemon does not require a session")
		}

		now := time.Now()
		expiresAt := now.Add(ttl)
		token, err := middleware.NewAdminToken([]byte(cfg.Server.AdminKey), "cli", jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		})
		if err != nil {
			return fmt.Errorf("signing session token: %w", err)
		}

		cliCfg, err := cliconfig.Load()
		if err != nil {
			return err
		}
		if err := cliCfg.SetCredential(f.DaemonAddr, &cliconfig.Credential{Token: token, ExpiresAt: expiresAt}); err != nil {
			return err
		}
		if err := cliconfig.Save(cliCfg); err != nil {
			return logError(err, "", "could not save the session")
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		if _, err := cli.ListTasks(cmd.Context()); err != nil {
			return logError(err, "", "session saved, but the daemon rejected it")
		}
		logSuccess("saved session for %s (valid until %s)", bold(f.DaemonAddr), expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().Duration("ttl", 12*time.Hour, "Validity of the session")
}
