package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/api"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/carriers"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/logging"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/sync"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/tasks"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduled sync jobs and the ops API",
	Long: `Runs every job of the 'schedule' config section on its cron expression. Jobs without
cron only run when triggered ('disputa tasks trigger'). The ops API serves health, metrics,
task state and logs, token states and the audit log.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := f.Config()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		log.Info().Msg("Initializing carriers...")
		registry, err := f.Carriers()
		if err != nil {
			return err
		}
		syncer, err := f.Syncer(ctx, 0)
		if err != nil {
			return err
		}
		auditor, err := f.Auditor()
		if err != nil {
			return err
		}

		manager := tasks.NewManager(cfg.Server.TaskTimeout)
		for _, s := range cfg.Schedule {
			if err := manager.Register(s.Name, s.Cron, scheduledJob(syncer, registry, s)); err != nil {
				return err
			}
			log.Info().Str("task", s.Name).Str("cron", s.Cron).Str("job", s.Job).Msg("registered task")
		}
		manager.Start()

		reporters := make([]api.TokenReporter, 0)
		for _, c := range registry.All() {
			reporters = append(reporters, c.Tokens)
		}
		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.NewServer(manager, reporters, auditor).Routes([]byte(cfg.Server.AdminKey)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		if cfg.Server.AdminKey == "" {
			log.Warn().Msg("server.admin_key is not set, the /v1/ routes are open")
		}

		serveErr := make(chan error, 1)
		go func() {
			log.Info().Msgf("Starting ops API on %s...", cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case <-ctx.Done():
		case err := <-serveErr:
			if err != nil {
				_ = manager.Stop(context.Background())
				return fmt.Errorf("ops API: %w", err)
			}
		}
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("ops API forced to shut down")
		}
		if err := manager.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("tasks did not stop in time: %w", err)
		}
		log.Info().Msg("Daemon exited")
		return nil
	},
}

// scheduledJob runs the job of s on its carrier, or on every carrier offering it when s names none.
// Item failures are written to the task log and fail the task.
func scheduledJob(syncer *sync.Syncer, registry *carriers.Registry, s config.ScheduleConfig) tasks.TaskFunc {
	return func(ctx context.Context, logger logging.InternalLogger) error {
		names := registry.Names()
		if s.Carrier != "" {
			names = []string{s.Carrier}
		}

		var (
			errs   []error
			failed int
		)
		for _, name := range names {
			c, err := registry.Get(name)
			if err != nil {
				return err
			}
			reports, err := syncer.Run(ctx, c, s.Job, sync.Options{Customer: s.Customer})
			for _, r := range reports {
				failed += r.Failed
				for _, fl := range r.Failures {
					logger.Warn("%s/%s %s: %s", r.Carrier, r.Job, fl.Item, fl.Error)
				}
			}
			if err != nil {
				if errors.Is(err, sync.ErrUnsupported) && s.Carrier == "" {
					continue
				}
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
		if failed > 0 {
			errs = append(errs, fmt.Errorf("%d item(s) failed", failed))
		}
		return errors.Join(errs...)
	}
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().String("addr", "", "Address to listen on (default server.addr)")
}
