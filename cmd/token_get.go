package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var tokenGetCmd = &cobra.Command{
	Use:   "get CARRIER",
	Short: "Print a valid token, renewing it if necessary",
	Long: `Prints a token the portal accepts to stdout. The cached token is checked first;
a browser login only runs when it is missing or no longer valid, or with --force.`,
	Example: `  disputa token get maersk --scope 305S3073SPA
  disputa token get hapag --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		c, err := f.Carrier(args[0])
		if err != nil {
			return err
		}
		scope := tokenScope
		if scope == "" {
			if len(c.Scopes) != 1 {
				return fmt.Errorf("carrier '%s' has several scopes, choose one with --scope", c.Name)
			}
			scope = c.Scopes[0]
		}

		ctx := core.WithRunID(cmd.Context(), "")
		tok, err := c.Tokens.GetValidToken(ctx, scope, force)
		if err != nil {
			return logError(err, core.RunID(ctx), "could not get a valid token")
		}

		log.Info().
			Str("fingerprint", tok.Fingerprint()).
			Str("issued_via", string(tok.IssuedVia)).
			Msgf("%s token for %s/%s", greenCheck, c.Name, scope)
		fmt.Println(tok.Value)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenGetCmd)

	tokenGetCmd.Flags().StringVar(&tokenScope, "scope", "", "Token scope (Maersk customer code); optional for single scope carriers")
	tokenGetCmd.Flags().Bool("force", false, "Skip the cache and always log in")
}
