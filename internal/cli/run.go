package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelsql/modelsql/internal/engine"
	"github.com/modelsql/modelsql/internal/observability"
	"github.com/modelsql/modelsql/internal/output"
	"github.com/modelsql/modelsql/internal/storage"
)

const modelExt = ".model"

type runFlags struct {
	index    int
	name     string
	json     bool
	channels []string
	out      string
}

func newRunCommand(a *app, compileOnly bool) *cobra.Command {
	var flags runFlags
	use, short := "run <file> [query]", "Run a .model or .modelsql file"
	if compileOnly {
		use, short = "compile <file> [query]", "Compile a .model or .modelsql file without running it"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.RunOptions{CompileOnly: compileOnly, QueryName: flags.name}
			if cmd.Flags().Changed("index") {
				index := flags.index
				opts.StatementIndex = &index
			}
			if len(args) == 2 {
				opts.Query = args[1]
			}
			return a.execute(cmd.Context(), args[0], opts, flags)
		},
	}
	cmd.Flags().IntVarP(&flags.index, "index", "i", 0, "1-based index of the statement or query to run")
	cmd.Flags().StringVarP(&flags.name, "name", "n", "", "name of the query to run from a .model file")
	cmd.Flags().BoolVarP(&flags.json, "json", "j", false, "print the aggregated result as JSON")
	cmd.Flags().StringSliceVarP(&flags.channels, "output", "o", nil, "human output channels: model, compiled-sql, results, tasks or all")
	cmd.Flags().StringVar(&flags.out, "out", "", "also write the JSON result to a local path or s3://bucket/key")
	return cmd
}

func (a *app) sink(flags runFlags, compileOnly bool) (*output.Sink, error) {
	var sink *output.Sink
	if flags.json {
		sink = output.NewJSONSink(a.opts.Stdout)
	} else {
		names := flags.channels
		if len(names) == 0 {
			names = []string{string(output.ChannelResults)}
			if compileOnly {
				names = []string{string(output.ChannelCompiledSQL)}
			}
		}
		channels, err := output.ParseChannels(names)
		if err != nil {
			return nil, usageError("%v", err)
		}
		sink = output.NewChannelSink(a.opts.Stdout, channels, output.Options{Color: a.opts.Color, ErrWriter: a.opts.Stderr})
	}
	if a.flags.quiet {
		sink.Silence()
	}
	return sink, nil
}

func (a *app) execute(ctx context.Context, file string, opts engine.RunOptions, flags runFlags) error {
	sink, err := a.sink(flags, opts.CompileOnly)
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return report(sink, err)
	}

	loc, err := storage.ParseLocation(file)
	if err != nil {
		return report(sink, err)
	}
	files := a.files()
	text, err := files.Read(ctx, loc)
	if err != nil {
		return report(sink, err)
	}

	entries, err := a.store().Load()
	if err != nil {
		return report(sink, err)
	}
	resolver := a.resolver(entries)
	defer func() {
		if err := resolver.Reset(); err != nil {
			a.logger.Warn("closing connections failed", "error", err)
		}
	}()

	dir := loc.Dir()
	if dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	runID := observability.NewRunID()
	ctx = observability.ContextWithRunID(ctx, runID)
	a.logger.Info("run started", "run_id", runID, "file", loc.String(), "compile_only", opts.CompileOnly)

	eng := engine.New(engine.RunContext{
		Connections: resolver.ForDir(dir),
		Sink:        sink,
		Logger:      a.logger,
	})

	var (
		payload      []byte
		runErr       error
		statementErr bool
	)
	if strings.EqualFold(loc.Ext(), modelExt) {
		result, err := eng.RunModel(ctx, string(text), opts)
		runErr = err
		if result != nil {
			if payload, err = result.JSON(); err != nil {
				return report(sink, err)
			}
		}
	} else {
		result, err := eng.RunDocument(ctx, string(text), opts)
		runErr = err
		if result != nil {
			for _, statement := range result.Statements() {
				if statement.Error != "" {
					statementErr = true
				}
			}
			if payload, err = result.JSON(); err != nil {
				return report(sink, err)
			}
		}
	}

	if payload != nil {
		sink.RawJSON(payload)
		if flags.out != "" {
			if err := a.writeResult(ctx, files, flags.out, payload); err != nil {
				return report(sink, err)
			}
		}
	}
	a.logger.Info("run finished", "run_id", runID, "failed", runErr != nil || statementErr)

	switch {
	case runErr != nil && payload != nil && sink.JSONMode():
		// the partial result already carries the failing statement
		return &ExitError{Code: ExitFailure, Err: runErr, reported: true}
	case runErr != nil:
		return report(sink, runErr)
	case statementErr:
		return &ExitError{Code: ExitFailure, Err: errors.New("one or more statements failed"), reported: true}
	}
	return nil
}

func (a *app) writeResult(ctx context.Context, files *storage.Files, raw string, payload []byte) error {
	loc, err := storage.ParseLocation(raw)
	if err != nil {
		return fmt.Errorf("invalid --out: %w", err)
	}
	if err := files.Write(ctx, loc, payload, "application/json"); err != nil {
		return fmt.Errorf("write %s: %w", loc, err)
	}
	a.logger.Debug("result written", "location", loc.String(), "bytes", len(payload))
	return nil
}

// report shows err through the sink, which knows whether the run wants JSON.
func report(sink *output.Sink, err error) error {
	sink.Error(err)
	return &ExitError{Code: ExitFailure, Err: err, reported: true}
}
