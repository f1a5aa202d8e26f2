package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var tokenInvalidateCmd = &cobra.Command{
	Use:   "invalidate CARRIER",
	Short: "Reject the cached token of a scope and log in again",
	Long: `Marks the cached token as rejected and replaces it through a browser login. Use this when
the portal rejects a token the validity oracle still accepts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		c.Tokens.Invalidate(ctx, scope, "")

		tok, err := c.Tokens.GetValidToken(ctx, scope, false)
		if err != nil {
			return logError(err, core.RunID(ctx), "token invalidated, but renewal failed")
		}
		logSuccess("replaced token of %s/%s (fingerprint %s)", bold(c.Name), scope, tok.Fingerprint())
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenInvalidateCmd)

	tokenInvalidateCmd.Flags().StringVar(&tokenScope, "scope", "", "Token scope (Maersk customer code)")
}
