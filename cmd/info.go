package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/buildinfo"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show build information, of this binary or of the daemon given by --daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if f.DaemonAddr == "" {
			info := buildinfo.GetBuildInfo()
			printInfo(&info)
			return nil
		}
		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		log.Debug().Msg("Fetching build info from daemon...")
		info, correlation, err := cli.Info(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to get info from daemon")
		}
		printInfo(info)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printInfo(info *buildinfo.Info) {
	fmt.Println(bold("\n── " + info.Service + " ──"))
	fmt.Printf("  %s:    %s\n", faint("Version"), info.Version)
	fmt.Printf("  %s:     %s\n", faint("Commit"), info.CommitHash)
}
