package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/initiative/internal/config"
	"github.com/roach88/initiative/internal/coordinator"
	"github.com/roach88/initiative/internal/metrics"
	"github.com/roach88/initiative/internal/signals"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Remote      string
	MetricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync coordinator until interrupted",
		Long: `Run the sync coordinator in the foreground.

The coordinator drains the operation queue on a fixed interval, whenever the
remote health endpoint becomes reachable again, and on SIGCONT or SIGUSR1.
Prometheus metrics are served on metrics.addr when it is set.

Example:
  initiative run --remote https://api.example.com
  initiative run --db /tmp/initiative.db --remote http://localhost:8080 --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoordinator(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Remote, "remote", "", "remote base URL (overrides remote.base_url)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "listen address for /metrics (overrides metrics.addr)")

	return cmd
}

func runCoordinator(opts *RunOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Remote != "" {
		cfg.Remote.BaseURL = opts.Remote
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Addr = opts.MetricsAddr
	}

	logger := slog.Default()
	if cfg.Log.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
		}
		defer rotator.Close()
		logger = newLogger(io.MultiWriter(cmd.ErrOrStderr(), rotator), opts.RootOptions)
		prev := slog.Default()
		slog.SetDefault(logger)
		defer slog.SetDefault(prev)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("opening storage", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)
	e, err := newEnv(ctx, cfg, logger)
	if err != nil {
		return f.Fail("failed to open storage", err)
	}
	defer func() {
		if closeErr := e.close(); closeErr != nil {
			logger.Error("error closing storage", "error", closeErr)
		}
	}()

	t, err := newTransport(cfg.Remote)
	if err != nil {
		_ = f.Error(ErrCodeRemote, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid remote", err)
	}

	probe := signals.NewProbe(healthURL(cfg.Remote),
		signals.WithProbeInterval(cfg.Remote.ProbeInterval),
		signals.WithProbeLogger(logger),
	)
	probe.Check(ctx)
	go probe.Run(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	coord := coordinator.New(e.queue, t,
		coordinator.WithInterval(cfg.Sync.Interval),
		coordinator.WithConnectivity(probe),
		coordinator.WithVisibility(signals.Foreground(ctx, syscall.SIGCONT, syscall.SIGUSR1)),
		coordinator.WithLogger(logger),
		coordinator.WithObserver(metrics.NewSync(reg)),
	)

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
	}

	coord.Start()
	// Catch up on whatever was queued while the process was not running.
	coord.Foreground()
	logger.Info("coordinator running", "remote", cfg.Remote.BaseURL, "pending", e.queue.Len())
	fmt.Fprintln(cmd.OutOrStdout(), "Coordinator started. Syncing in the background...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	<-ctx.Done()
	coord.Stop()

	if srv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}

	st := coord.Status()
	logger.Info("coordinator stopped gracefully", "pending", st.Pending, "last_error", st.LastError)
	return nil
}

// healthURL joins the remote base URL and its health path.
func healthURL(cfg config.RemoteConfig) string {
	return strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.HealthPath, "/")
}
