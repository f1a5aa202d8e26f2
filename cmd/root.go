package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/buildinfo"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/logging"
)

// global flags
var (
	userConfig string
	cfgFile    string
)

const (
	ConfigKey = "config"
	DryRunKey = "dry_run"
	DaemonKey = "daemon"
)

var f = NewFactory()

var rootCmd = &cobra.Command{
	Use:   "disputa",
	Short: fmt.Sprintf("Carrier dispute portal sync (version: %s, commit: %s)", buildinfo.Version, buildinfo.CommitHash),
	Long: `disputa keeps carrier portal sessions (Hapag-Lloyd, Maersk) alive and mirrors their
invoices and disputes into Postgres. Bearer tokens are captured from browser logins,
cached on disk and renewed only when the portal stops accepting them.`,
	Version: buildinfo.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configErr := initConfig()
		logging.Init(nil)
		if configErr != nil { // handle error after logging is initialized
			return configErr
		}
		if configPath != "" {
			log.Debug().Msgf("using user config file: %s", configPath)
		}
		f.ConfigPath = viper.GetString(ConfigKey)
		f.DryRun = viper.GetBool(DryRunKey)
		f.DaemonAddr = viper.GetString(DaemonKey)
		return nil
	},
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context, which tears down
// running browser sessions and in-flight requests.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	f.Close()
	if err != nil {
		var quiet BeQuietError
		if !errors.As(err, &quiet) {
			log.Error().Err(err).Msg("execution failed")
		}
		os.Exit(1)
	}
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()

	rootCmd.PersistentFlags().StringVar(&userConfig, "user-config", "",
		"User configuration file for default flag values (default is $HOME/.disputa.yaml)")

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "disputa.yaml", "Application config file (carriers, database, schedules)")
	_ = viper.BindPFlag(ConfigKey, rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag(logging.LevelKey, rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	_ = viper.BindPFlag(logging.FormatKey, rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable color output")
	_ = viper.BindPFlag(logging.NoColorKey, rootCmd.PersistentFlags().Lookup("no-color"))

	rootCmd.PersistentFlags().Bool("dry-run", false, "Write sync results to an in-memory repository instead of Postgres")
	_ = viper.BindPFlag(DryRunKey, rootCmd.PersistentFlags().Lookup("dry-run"))

	rootCmd.PersistentFlags().String("daemon", "", "Address of a running disputa daemon (e.g. http://127.0.0.1:8080)")
	_ = viper.BindPFlag(DaemonKey, rootCmd.PersistentFlags().Lookup("daemon"))

	viper.SetEnvPrefix("DISPUTA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))

	viper.AutomaticEnv()

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func initConfig() (string, error) {
	if userConfig != "" {
		viper.SetConfigFile(userConfig)
	} else {
		// search order: current dir, $HOME, XDG config
		viper.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		if config, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(config + "/disputa")
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName(".disputa")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			return "", err
		}
		return "", nil
	}
	return viper.ConfigFileUsed(), nil
}
