package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var tasksListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all background tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Retrieving tasks...")
		list, err := cli.ListTasks(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}

		t := newTable("Name", "Schedule", "State", "Last Run", "Took", "Next Run", "Last Result")
		for _, task := range list {
			state := "idle"
			if task.Running {
				state = color.BlueString("running")
			}

			schedule := task.Schedule
			if schedule == "" {
				schedule = faint("manual")
			}

			prefix := ""
			if task.LastResult == "success" {
				prefix = greenCheck
			} else if task.LastResult != "" {
				prefix = redCross
			}

			t.AppendRow(table.Row{
				bold(task.Name),
				schedule,
				state,
				since(task.LastRun),
				task.LastTook.Round(time.Millisecond),
				until(task.NextRun),
				strings.TrimSpace(prefix + " " + truncate(task.LastResult, 60)),
			})
		}
		t.Render()
		return nil
	},
}

func init() {
	tasksCmd.AddCommand(tasksListCmd)
}
