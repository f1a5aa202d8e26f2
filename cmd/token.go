package cmd

import (
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage carrier portal tokens",
	Long: `Read, renew and inspect the bearer tokens captured from the carrier portals.
Tokens are cached in the token directory and renewed through a browser login only when needed.`,
}

var tokenScope string

func init() {
	rootCmd.AddCommand(tokenCmd)
}
