package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var fingerprintCmd = &cobra.Command{
	Use:     "fingerprint TOKEN",
	Aliases: []string{"fp"},
	Short:   "Calculate the fingerprint of a token value",
	Long: `Calculates the fingerprint disputa logs instead of token values: the first 16 characters
of the base64url encoded SHA-256 of the value. Use it to find a token in the audit log.`,
	Example: `  disputa token fingerprint eyJhbGciOi...
  pbpaste | disputa token fingerprint -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]
		if token == "-" {
			log.Debug().Msg("Reading token from stdin")
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read token from stdin: %w", err)
			}
			token = strings.TrimSpace(string(data))
		}
		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}
		fmt.Println(core.Fingerprint(token))
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(fingerprintCmd)
}
