package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/narrator/internal/metrics"
	"github.com/roach88/narrator/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Provider string
	NoAudio  bool
	MaxRuns  int

	// Ready is called with the listening address once the server accepts
	// connections (for testing).
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP control surface",
		Long: `Start a local HTTP server that starts runs from JSON and streams their
reveal events over SSE.

Routes:
  POST   /runs              start a run: {"items": [...], "audio": true}
  GET    /runs              list runs
  GET    /runs/{id}         run snapshot
  DELETE /runs/{id}         stop a run
  GET    /runs/{id}/events  SSE stream of the run's events
  GET    /runs/{id}/trace   canonical trace so far
  GET    /health            provider status
  GET    /metrics           Prometheus metrics`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "narration provider (device|cloud|none), overrides the config")
	cmd.Flags().BoolVar(&opts.NoAudio, "no-audio", false, "start runs without narration unless the request asks for it")
	cmd.Flags().IntVar(&opts.MaxRuns, "max-runs", server.DefaultMaxRuns, "runs kept before the oldest is evicted")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := loadConfig(opts.RootOptions, opts.Provider)
	if err != nil {
		return err
	}
	addr := cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	providers, err := cfg.Build(logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up narration", err)
	}
	defer func() {
		if err := providers.Close(); err != nil {
			logger.Error("error closing narration provider", "error", err)
		}
	}()

	m := metrics.New(true)
	srv := server.New(
		server.WithCapability(providers.Capability),
		server.WithAudio(cfg.Narration.Enabled && !opts.NoAudio),
		server.WithDelays(cfg.Timing.Settle, cfg.Timing.Narration, cfg.Timing.Fallback),
		server.WithMaxRuns(opts.MaxRuns),
		server.WithMetrics(m),
		server.WithLogger(logger),
	)
	defer srv.Close()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to listen on %s", addr), err)
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", ln.Addr().String(), "provider", providers.Capability.Name())
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)

		// Stop runs first so open SSE streams end and Shutdown can drain.
		srv.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "error", err)
			return httpSrv.Close()
		}
		return nil
	})

	if opts.Ready != nil {
		opts.Ready(ln.Addr().String())
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped")
	return nil
}
