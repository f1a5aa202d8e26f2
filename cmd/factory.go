package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/audit"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/browser"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/carriers"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/cliconfig"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/repository"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/store"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/sync"
	"github.com/nitrotech24/disputa-portal-conferencia/pkg/client"
)

// Factory builds the components a command needs, lazily and at most once per process.
type Factory struct {
	ConfigPath string
	DryRun     bool

	// DaemonAddr is the address of a running daemon for the remote commands.
	DaemonAddr string

	cfg      *config.Config
	auditor  core.Auditor
	registry *carriers.Registry
	store    *store.FileCredentialStore
	repo     core.Repository
}

func NewFactory() *Factory {
	return &Factory{}
}

// Config loads and validates the application config.
func (f *Factory) Config() (*config.Config, error) {
	if f.cfg != nil {
		return f.cfg, nil
	}
	if f.ConfigPath == "" {
		return nil, fmt.Errorf("config file not specified (use --config)")
	}
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	f.cfg = cfg
	return cfg, nil
}

func (f *Factory) Auditor() (core.Auditor, error) {
	if f.auditor != nil {
		return f.auditor, nil
	}
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	auditor, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("creating auditor: %w", err)
	}
	f.auditor = auditor
	return auditor, nil
}

// Store opens the token directory.
func (f *Factory) Store() (*store.FileCredentialStore, error) {
	if f.store != nil {
		return f.store, nil
	}
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	credentials, err := store.NewFileCredentialStore(cfg.Tokens.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}
	f.store = credentials
	return credentials, nil
}

// Carriers builds every configured carrier on the file credential store and a local Chrome.
func (f *Factory) Carriers() (*carriers.Registry, error) {
	if f.registry != nil {
		return f.registry, nil
	}
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	auditor, err := f.Auditor()
	if err != nil {
		return nil, err
	}
	credentials, err := f.Store()
	if err != nil {
		return nil, err
	}

	registry, err := carriers.Build(cfg.Carriers, carriers.Deps{
		Store: credentials,
		Browser: &browser.ChromeBrowser{
			Headless: cfg.Browser.Headless,
			ExecPath: cfg.Browser.ExecPath,
		},
		Auditor:        auditor,
		HTTP:           cfg.HTTP,
		BrowserTimeout: cfg.Browser.Timeout,
	})
	if err != nil {
		return nil, err
	}
	f.registry = registry
	return registry, nil
}

func (f *Factory) Carrier(name string) (*carriers.Carrier, error) {
	registry, err := f.Carriers()
	if err != nil {
		return nil, err
	}
	return registry.Get(name)
}

// Repository connects to Postgres, or returns an in-memory repository with --dry-run.
func (f *Factory) Repository(ctx context.Context) (core.Repository, error) {
	if f.repo != nil {
		return f.repo, nil
	}
	if f.DryRun {
		log.Warn().Msg("dry run: results are kept in memory and discarded on exit")
		f.repo = repository.NewMemoryRepository()
		return f.repo, nil
	}
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	repo, err := repository.NewPostgresRepository(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	f.repo = repo
	return repo, nil
}

// Syncer creates a syncer on the configured repository. workers overrides sync.workers when > 0.
func (f *Factory) Syncer(ctx context.Context, workers int) (*sync.Syncer, error) {
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	repo, err := f.Repository(ctx)
	if err != nil {
		return nil, err
	}
	s, err := sync.New(repo, cfg.Sync)
	if err != nil {
		return nil, err
	}
	if workers > 0 {
		s = s.WithWorkers(workers)
	}
	return s, nil
}

// GetClient returns a client for the daemon given by --daemon (or DISPUTA_DAEMON),
// authenticated with the session saved by 'disputa login' or DISPUTA_TOKEN.
func (f *Factory) GetClient() (*client.Client, error) {
	server := f.DaemonAddr
	if server == "" {
		return nil, fmt.Errorf("daemon address not configured (use --daemon or set DISPUTA_DAEMON)")
	}

	var token string
	if cfg, err := cliconfig.Load(); err == nil {
		if cred, err := cfg.GetCredential(server); err == nil {
			token = cred.Token
		} else if !errors.Is(err, cliconfig.ErrCredentialNotFound) {
			return nil, err
		}
	}
	if envToken := os.Getenv("DISPUTA_TOKEN"); envToken != "" {
		token = envToken
	}

	return client.New(server, client.WithAuthToken(token))
}

// Close releases the database pool and the audit sink.
func (f *Factory) Close() {
	if f.repo != nil {
		f.repo.Close()
		f.repo = nil
	}
	if f.auditor != nil {
		if err := f.auditor.Close(); err != nil {
			log.Warn().Err(err).Msg("closing audit log")
		}
		f.auditor = nil
	}
}
