package cmd

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Loads the config file and builds every carrier from it, so missing credentials and
malformed carrier settings are reported as well. Nothing is contacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := f.Carriers()
		if err != nil {
			var cfgErr *core.ConfigurationError
			if errors.As(err, &cfgErr) {
				for _, p := range cfgErr.Problems {
					log.Error().Msgf("%s %s", redCross, p)
				}
				log.Error().Msg("Configuration is invalid.")
				return BeQuietError{}
			}
			return err
		}
		logSuccess("Configuration is valid.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
