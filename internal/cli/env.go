package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/initiative/internal/config"
	"github.com/roach88/initiative/internal/entity"
	"github.com/roach88/initiative/internal/medium"
	"github.com/roach88/initiative/internal/medium/sqlite"
	"github.com/roach88/initiative/internal/queue"
	"github.com/roach88/initiative/internal/schema"
	"github.com/roach88/initiative/internal/transport"
)

// env is the composition root shared by the commands: one medium with the
// store and queue built over it.
type env struct {
	cfg    config.Config
	medium medium.Medium
	store  *entity.Store
	queue  *queue.Queue
	close  func() error
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.Storage.Driver = config.DriverSQLite
		cfg.Storage.Path = opts.Database
	}
	return cfg, nil
}

// openEnv loads configuration and opens the medium, store and queue.
// Failures are reported through f and come back as ExitErrors.
func openEnv(ctx context.Context, opts *RootOptions, f *OutputFormatter) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	e, err := newEnv(ctx, cfg, slog.Default())
	if err != nil {
		return nil, f.Fail("failed to open storage", err)
	}
	return e, nil
}

func newEnv(ctx context.Context, cfg config.Config, logger *slog.Logger) (*env, error) {
	m, closeFn, err := openMedium(cfg.Storage)
	if err != nil {
		return nil, err
	}

	storeOpts := []entity.Option{
		entity.WithNamespace(cfg.Storage.Namespace),
		entity.WithLogger(logger),
	}
	if !cfg.Schema.Disabled {
		v, err := loadSchema(cfg.Schema.Path)
		if err != nil {
			_ = closeFn()
			return nil, err
		}
		storeOpts = append(storeOpts, entity.WithValidator(v))
	}

	q, err := queue.Open(ctx, m,
		queue.WithNamespace(cfg.Storage.Namespace),
		queue.WithLogger(logger),
		queue.WithBackoff(cfg.Sync.BackoffBase.Milliseconds(), cfg.Sync.BackoffMax.Milliseconds()),
	)
	if err != nil {
		_ = closeFn()
		return nil, err
	}

	return &env{
		cfg:    cfg,
		medium: m,
		store:  entity.New(m, storeOpts...),
		queue:  q,
		close:  closeFn,
	}, nil
}

// openMedium selects the durable medium for the configured driver.
func openMedium(cfg config.StorageConfig) (medium.Medium, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		noop := func() error { return nil }
		if cfg.CapacityBytes > 0 {
			return medium.NewMemoryWithCapacity(cfg.CapacityBytes), noop, nil
		}
		return medium.NewMemory(), noop, nil

	case config.DriverSQLite:
		if cfg.Path != ":memory:" && !strings.HasPrefix(cfg.Path, "file:") {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		var opts []sqlite.Option
		if cfg.CapacityBytes > 0 {
			opts = append(opts, sqlite.WithCapacity(cfg.CapacityBytes))
		}
		m, err := sqlite.Open(cfg.Path, opts...)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func loadSchema(path string) (*schema.Validator, error) {
	if path == "" {
		return schema.New()
	}
	return schema.Load(path)
}

// newTransport builds the HTTP transport for the configured remote.
func newTransport(cfg config.RemoteConfig) (*transport.HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote.base_url is not set (use --remote or %s)", config.EnvRemoteURL)
	}
	return transport.NewHTTP(cfg.BaseURL,
		transport.WithToken(cfg.Token),
		transport.WithTimeout(cfg.Timeout),
		transport.WithLogger(slog.Default()),
	)
}
