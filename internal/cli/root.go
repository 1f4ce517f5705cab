// Package cli implements the modelsql command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/modelsql/modelsql/internal/catalog"
	"github.com/modelsql/modelsql/internal/config"
	"github.com/modelsql/modelsql/internal/connections"
	"github.com/modelsql/modelsql/internal/observability"
	"github.com/modelsql/modelsql/internal/storage"
	"github.com/modelsql/modelsql/internal/storage/s3"
)

// Version is overridden at build time with -ldflags.
var Version = "development"

type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Lookup reads environment variables. Defaults to os.LookupEnv.
	Lookup config.LookupFunc
	// Fs backs the connection catalog and local documents. Defaults to the OS filesystem.
	Fs       afero.Fs
	Registry *connections.Registry
	// Buckets opens object storage for s3:// locations. Defaults to the configured endpoint.
	Buckets storage.BucketOpener
	Color   bool
}

type globalFlags struct {
	quiet     bool
	debug     bool
	logLevel  string
	configDir string
}

type app struct {
	opts       Options
	flags      globalFlags
	cfg        config.Config
	logger     *slog.Logger
	configured bool
}

// Run executes the command line in args and returns the process exit status.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	if !opts.Color {
		pterm.DisableColor()
	}

	a := &app{opts: opts, logger: slog.New(slog.DiscardHandler)}
	root := newRootCommand(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)

	if a.configured {
		if writeErr := observability.WriteTextfile(a.cfg.Observability.MetricsTextfile); writeErr != nil {
			a.logger.Warn("metrics textfile not written", "error", writeErr)
		}
	}
	return exitCode(err, opts.Stderr, opts.Color)
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "modelsql",
		Short:         "Compile and run .model and .modelsql files",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	cmd.SetOut(a.opts.Stdout)
	cmd.SetErr(a.opts.Stderr)

	flags := cmd.PersistentFlags()
	flags.BoolVar(&a.flags.quiet, "quiet", false, "silence output")
	flags.BoolVarP(&a.flags.debug, "debug", "d", false, "print debug-level logs to stderr")
	flags.StringVarP(&a.flags.logLevel, "log-level", "l", "", "log level (error, warn, info, debug)")
	flags.StringVarP(&a.flags.configDir, "config", "c", "", "directory holding "+config.ConfigFileName)

	cmd.AddCommand(
		newRunCommand(a, false),
		newRunCommand(a, true),
		newConnectionsCommand(a),
		newVersionCommand(a),
	)
	return cmd
}

func (a *app) setup() error {
	cfg, err := config.Load("modelsql", a.opts.Lookup)
	if err != nil {
		return failure(err)
	}
	if dir := strings.TrimSpace(a.flags.configDir); dir != "" {
		cfg.Paths.ConfigDir = dir
	}
	if a.flags.logLevel != "" {
		level, err := config.ParseLogLevel(a.flags.logLevel)
		if err != nil {
			return usageError("invalid --log-level: %v", err)
		}
		cfg.Observability.LogLevel = level
	}
	if a.flags.debug {
		cfg.Observability.LogLevel = slog.LevelDebug
	}

	a.cfg = cfg
	a.logger = observability.NewLogger(cfg, a.opts.Stderr)
	a.configured = true
	a.logger.Debug("configuration loaded", "config_dir", cfg.Paths.ConfigDir, "default_connection", cfg.Connections.Default)
	return nil
}

func (a *app) store() *catalog.Store {
	return catalog.NewStore(a.opts.Fs, a.cfg.Paths.ConfigDir, a.logger)
}

func (a *app) resolver(entries catalog.Config) *connections.Resolver {
	pool := connections.PoolConfig{
		MaxOpenConns:    a.cfg.Connections.MaxOpenConns,
		MaxIdleConns:    a.cfg.Connections.MaxIdleConns,
		ConnMaxIdleTime: a.cfg.Connections.ConnMaxIdleTime,
		ConnMaxLifetime: a.cfg.Connections.ConnMaxLifetime,
		PingTimeout:     a.cfg.Connections.PingTimeout,
		RowLimit:        a.cfg.Connections.RowLimit,
	}
	return connections.NewResolver(a.opts.Registry, entries, connections.ResolverOptions{
		DefaultName: a.cfg.Connections.Default,
		Pool:        pool,
		Logger:      a.logger,
	})
}

func (a *app) files() *storage.Files {
	buckets := a.opts.Buckets
	if buckets == nil {
		buckets = s3.Opener(a.cfg.ObjectStore)
	}
	return storage.NewFiles(a.opts.Fs, buckets)
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the modelsql version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.opts.Stdout, "modelsql %s\n", Version)
			return err
		},
	}
}
