package cmd

import (
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect CARRIER",
	Short: "Print the claims of a cached token",
	Long: `Decodes the cached token of a scope without verifying it and prints its claims.
Only JWT tokens (Maersk) carry claims; other tokens only show their metadata.`,
	Example: `  disputa token inspect maersk --scope 305S3073SPA
  disputa token inspect maersk --scope 305S3073SPA --raw`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")

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

		credentials, err := f.Store()
		if err != nil {
			return err
		}
		tok, err := credentials.Load(cmd.Context(), c.Name, scope)
		if err != nil {
			return err
		}
		if tok == nil {
			return fmt.Errorf("no cached token for %s/%s", c.Name, scope)
		}

		fmt.Println(bold("\n── Token " + c.Name + "/" + scope + " ──"))
		fmt.Printf("  %s: %s\n", faint("Fingerprint"), tok.Fingerprint())
		fmt.Printf("  %s:    %s\n", faint("Customer"), tok.CustomerName)
		fmt.Printf("  %s:      %s\n", faint("Source"), tok.Source)
		fmt.Printf("  %s:    %s (%s)\n", faint("Captured"), tok.CapturedAt.Format(time.RFC3339), since(tok.CapturedAt))

		token, _, err := jwt.NewParser().ParseUnverified(tok.Value, jwt.MapClaims{})
		if err != nil {
			log.Info().Msg("token is not a JWT, no claims to show")
			return nil
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return fmt.Errorf("invalid token claims")
		}

		if raw {
			fmt.Println(spew.Sdump(claims))
		}
		if iss, err := claims.GetIssuer(); err == nil && iss != "" {
			fmt.Printf("  %s:      %s\n", faint("Issuer"), iss)
		}
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			fmt.Printf("  %s:     %s\n", faint("Subject"), sub)
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			remaining := time.Until(exp.Time).Round(time.Second)
			if remaining > 0 {
				fmt.Printf("  %s:     %s (in %s)\n", faint("Expires"), exp.Format(time.RFC3339), remaining)
			} else {
				fmt.Printf("  %s:     %s (%s)\n", faint("Expires"), exp.Format(time.RFC3339), redCross+" expired")
			}
		} else {
			log.Warn().Msg("token does not contain a usable 'exp' claim and is treated as invalid")
		}
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenInspectCmd)

	tokenInspectCmd.Flags().StringVar(&tokenScope, "scope", "", "Token scope (Maersk customer code)")
	tokenInspectCmd.Flags().Bool("raw", false, "Dump every claim")
}
