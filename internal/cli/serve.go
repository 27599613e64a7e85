package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/aether/internal/config"
	"github.com/roach88/aether/internal/ingest"
	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/metrics"
	"github.com/roach88/aether/internal/query"
	"github.com/roach88/aether/internal/schema"
	"github.com/roach88/aether/internal/server"
	"github.com/roach88/aether/internal/snapshot"
	"github.com/roach88/aether/internal/store"
)

// ServeOptions holds flags for the serve command. Each flag overrides
// the matching environment variable only when set.
type ServeOptions struct {
	*RootOptions
	Host      string
	Port      int
	Snapshot  string
	LogLevel  string
	LogFormat string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion service",
		Long: `Serve the event ingestion and read API.

Configuration comes from the environment (PORT, AETHER_HOST,
AETHER_MAX_BODY_BYTES, AETHER_LOG_LEVEL, AETHER_LOG_FORMAT,
AETHER_SNAPSHOT_PATH, AETHER_SHUTDOWN_TIMEOUT); flags override it.

State lives in memory and starts empty. On SIGINT or SIGTERM the server
drains in-flight requests and, when a snapshot path is configured,
exports the final state to it.

Exit codes:
  0 - Clean shutdown
  1 - Server failure
  2 - Invalid configuration

Examples:
  aether serve
  aether serve --port 9090 --snapshot /var/lib/aether/state.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "listen host (AETHER_HOST)")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "listen port (PORT)")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "export state here on shutdown (AETHER_SNAPSHOT_PATH)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "debug|info|warn|error (AETHER_LOG_LEVEL)")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", "", "text|json (AETHER_LOG_FORMAT)")

	return cmd
}

// serveConfig loads the environment and applies explicitly set flags.
func serveConfig(opts *ServeOptions, cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = opts.Host
	}
	if flags.Changed("port") {
		cfg.Port = opts.Port
	}
	if flags.Changed("snapshot") {
		cfg.SnapshotPath = opts.Snapshot
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.LogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.LogFormat
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := serveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := cfg.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	gate, err := schema.New()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load contracts", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st := store.New()
	metrics.RegisterStoreGauges(reg, st.Stats)

	ing := ingest.New(st, gate, ingest.WithObserver(m))
	handler := server.NewHandler(server.Deps{
		Ingest:       ing,
		Query:        query.NewService(st),
		Gatherer:     reg,
		Observer:     m,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	srv := server.New(cfg.Addr(), handler, cfg.ShutdownTimeout)

	slog.Info("aether starting",
		"addr", cfg.Addr(),
		"contract_version", ir.ContractVersion,
		"snapshot_path", cfg.SnapshotPath,
	)

	ctx := commandContext(cmd)
	g, gctx := errgroup.WithContext(ctx)

	// The ingestor outlives the HTTP server so draining requests still
	// get responses; Stop ends it once the server has returned.
	g.Go(func() error {
		return ing.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		defer ing.Stop()
		return srv.ListenAndServe(gctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server failed", "error", err)
		return WrapExitError(ExitFailure, "server failed", err)
	}

	if cfg.SnapshotPath != "" {
		if err := exportOnShutdown(cfg, st); err != nil {
			slog.Error("snapshot export failed", "path", cfg.SnapshotPath, "error", err)
			return WrapExitError(ExitFailure, "snapshot export failed", err)
		}
	}

	slog.Info("aether stopped", "stats", st.Stats())
	return nil
}

// exportOnShutdown writes the final state within the shutdown timeout.
func exportOnShutdown(cfg config.Config, st *store.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	meta, err := snapshot.WriteFile(ctx, cfg.SnapshotPath, st.Snapshot(), time.Now().UTC())
	if err != nil {
		return err
	}
	slog.Info("snapshot exported",
		"path", cfg.SnapshotPath,
		"digest", meta.Digest,
	)
	return nil
}
