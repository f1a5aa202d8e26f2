package cmd

import (
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and trigger the scheduled tasks of a running daemon",
	Long:  `Talks to the daemon given by --daemon. Requires a session ('disputa login') when the daemon has an admin key.`,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
