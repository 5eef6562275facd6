package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/contest/internal/admin"
	"github.com/roach88/contest/internal/answer"
	"github.com/roach88/contest/internal/gate"
	"github.com/roach88/contest/internal/httpapi"
	"github.com/roach88/contest/internal/metrics"
	"github.com/roach88/contest/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Addr     string
	APIKey   string

	// Listener overrides Addr (for testing).
	Listener net.Listener
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the contest HTTP service",
		Long: `Run the contest HTTP service backed by a SQLite contest store.

The service validates answers, stores solve records, serves stage
availability and winners, and accepts administrator stage control writes.
The database is created if it does not exist.

Example:
  contest serve --db ./contest.db --addr :8080
  contest serve --db ./contest.db --api-key secret --config ./contest.cue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite contest store (required)")
	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.APIKey, "api-key", "", "bearer token required on function and solve endpoints")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr(), slog.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := loadContest(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load contest", err)
	}
	logger.Info("contest loaded", "stages", cfg.Total, "two_step_from", int(cfg.TwoStepFrom), "two_step_to", int(cfg.TwoStepTo))

	logger.Info("opening contest store", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	m := metrics.New(prometheus.NewRegistry())
	availability := gate.New(st, gate.WithLogger(logger), gate.WithMetrics(m))
	console := admin.New(cfg, st, availability, admin.WithLogger(logger), admin.WithMetrics(m))

	router := httpapi.NewRouter(httpapi.Deps{
		Config:    cfg,
		Validator: answer.NewTable(cfg),
		Store:     st,
		Admin:     console,
		Metrics:   m,
		Logger:    logger,
		APIKey:    opts.APIKey,
	})

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	if err := availability.Load(ctx); err != nil {
		logger.Warn("initial availability load failed", "error", err)
	}

	srv := httpapi.NewServer(opts.Addr, router, logger)
	group.Go(func() error {
		defer cancel()
		if opts.Listener != nil {
			return srv.Serve(ctx, opts.Listener)
		}
		return srv.ListenAndServe(ctx)
	})

	addr := opts.Addr
	if opts.Listener != nil {
		addr = opts.Listener.Addr().String()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Contest service listening on %s\n", addr)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := group.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("contest service stopped gracefully")
	return nil
}
