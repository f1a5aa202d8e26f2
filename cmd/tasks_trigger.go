package cmd

import (
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var tasksTriggerCmd = &cobra.Command{
	Use:   "trigger NAME",
	Short: "Manually trigger a background task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msgf("Triggering task '%s'...", name)
		correlation, err := cli.TriggerTask(cmd.Context(), name)
		if err != nil {
			return logError(err, correlation, "triggering task failed")
		}

		logSuccess("triggered task '%s'", bold(name))
		log.Info().Msgf("Run '%s' to see progress.", color.CyanString("disputa tasks logs "+name))
		return nil
	},
}

func init() {
	tasksCmd.AddCommand(tasksTriggerCmd)
}
