// Package engine runs .modelsql documents statement by statement and .model files
// one query at a time.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelsql/modelsql/internal/document"
	"github.com/modelsql/modelsql/internal/model"
	"github.com/modelsql/modelsql/internal/observability"
	"github.com/modelsql/modelsql/internal/output"
	"github.com/modelsql/modelsql/internal/query"
)

// Models is the growing model of one run.
type Models interface {
	HasModel() bool
	Extend(index int, text string) error
	CompileQuery(text string) (model.Outcome, error)
	QueryByIndex(index int) (model.Query, error)
	QueryByName(name string) (model.Query, error)
	FinalQuery() (model.Query, error)
}

// RunContext carries everything a run needs. Connections is only consulted when
// statements are executed, never in compile-only runs.
type RunContext struct {
	NewModels   func(lookup model.ConnectionLookup) Models
	Connections model.ConnectionLookup
	Sink        *output.Sink
	Logger      *slog.Logger
}

// Engine runs documents and model files. Each run starts from a fresh model, so one
// Engine can serve many runs.
type Engine struct {
	newModels   func(lookup model.ConnectionLookup) Models
	connections model.ConnectionLookup
	sink        *output.Sink
	logger      *slog.Logger
}

// New returns an Engine for rc. A nil NewModels uses model.NewAccumulator, a nil Sink
// suppresses human output and a nil Logger discards.
func New(rc RunContext) *Engine {
	newModels := rc.NewModels
	if newModels == nil {
		newModels = func(lookup model.ConnectionLookup) Models { return model.NewAccumulator(lookup) }
	}
	sink := rc.Sink
	if sink == nil {
		sink = output.NewJSONSink(nil)
	}
	logger := rc.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{newModels: newModels, connections: rc.Connections, sink: sink, logger: logger}
}

const (
	kindModel  = "model"
	kindNative = "native"
)

// RunDocument runs every statement of a .modelsql document in order. Per-statement
// failures are recorded in the result. A non-nil error with a non-nil result means the
// run stopped early on a model error and the result holds what ran before it.
func (e *Engine) RunDocument(ctx context.Context, text string, opts RunOptions) (*RunResult, error) {
	result, err := e.runDocument(ctx, text, opts)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.ObserveRun("document_"+opts.mode(), outcome)
	return result, err
}

func (e *Engine) runDocument(ctx context.Context, text string, opts RunOptions) (*RunResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.QueryName != "" || opts.Query != "" {
		return nil, configError("Query names and query strings can only be used with .model files")
	}

	doc, err := document.Parse(text)
	if err != nil {
		return nil, &DocumentParseError{Err: err}
	}
	target := -1
	if opts.StatementIndex != nil {
		if *opts.StatementIndex > len(doc.Statements) {
			return nil, configError("Statement index %d is greater than number of possible statements %d", *opts.StatementIndex, len(doc.Statements))
		}
		target = *opts.StatementIndex - 1
	}

	logger := e.logger.With("run_id", observability.RunIDFromContext(ctx))
	logger.Debug("running document", "statements", len(doc.Statements), "compile_only", opts.CompileOnly, "target", target)

	var lookup model.ConnectionLookup
	if !opts.CompileOnly {
		lookup = e.connections
	}
	r := &documentRun{
		engine:      e,
		logger:      logger,
		models:      e.newModels(lookup),
		compileOnly: opts.CompileOnly,
		result:      &RunResult{},
	}

	for i, statement := range doc.Statements {
		if err := ctx.Err(); err != nil {
			return r.result, err
		}
		if _, isNative := statement.(*document.NativeStatement); isNative && target >= 0 && i != target {
			e.sink.Task("Skipping statement %d", i)
			observability.ObserveStatement(kindNative, "skipped", 0)
			continue
		}

		switch s := statement.(type) {
		case *document.ModelStatement:
			if err := r.model(ctx, s); err != nil {
				return r.result, err
			}
		case *document.NativeStatement:
			r.native(ctx, s)
		default:
			return r.result, fmt.Errorf("unsupported statement type %T", s)
		}

		if i == target {
			break
		}
	}
	return r.result, nil
}

type documentRun struct {
	engine      *Engine
	logger      *slog.Logger
	models      Models
	compileOnly bool
	result      *RunResult
}

func (r *documentRun) model(ctx context.Context, s *document.ModelStatement) error {
	start := time.Now()
	sink := r.engine.sink
	sink.Task("Compiling model statement %d", s.Index)
	sink.Model(s.Text)

	if err := r.models.Extend(s.Index, s.Text); err != nil {
		err = &ModelCompileError{Index: s.Index, Err: inDocument(s, err)}
		r.result.add(StatementResult{Index: s.Index, Error: err.Error()})
		observability.ObserveStatement(kindModel, "error", time.Since(start))
		return err
	}

	outcome, err := r.models.CompileQuery(s.Text)
	if err != nil {
		r.fail(StatementResult{Index: s.Index}, &QueryCompileError{Index: s.Index, Err: inDocument(s, err)}, kindModel, start)
		return nil
	}
	q, ok := outcome.Query()
	if !ok {
		r.result.add(StatementResult{Index: s.Index})
		observability.ObserveStatement(kindModel, "no_query", time.Since(start))
		return nil
	}

	entry := StatementResult{Index: s.Index, SQL: q.SQL(), HasSQL: true}
	sink.CompiledSQL(entry.SQL)
	if r.compileOnly {
		r.result.add(entry)
		observability.ObserveStatement(kindModel, "compiled", time.Since(start))
		return nil
	}

	r.logger.Debug("running model query", "statement", s.Index, "connection", q.Connection())
	res, err := q.Run(ctx)
	if err != nil {
		r.fail(entry, runFailure(s.Index, err), kindModel, start)
		return nil
	}
	r.succeed(entry, res, kindModel, start)
	return nil
}

func (r *documentRun) native(ctx context.Context, s *document.NativeStatement) {
	start := time.Now()
	sink := r.engine.sink
	sink.Task("Compiling statement %d", s.Index)

	sqlText, err := r.substitute(s)
	if err != nil {
		r.fail(StatementResult{Index: s.Index}, err, kindNative, start)
		return
	}
	entry := StatementResult{Index: s.Index, SQL: sqlText, HasSQL: true}
	sink.CompiledSQL(sqlText)
	if r.compileOnly {
		r.result.add(entry)
		observability.ObserveStatement(kindNative, "compiled", time.Since(start))
		return
	}

	if r.engine.connections == nil {
		r.fail(entry, &ConnectionResolutionError{Index: s.Index, Connection: s.Connection, Err: fmt.Errorf("no connections are configured")}, kindNative, start)
		return
	}
	conn, err := r.engine.connections.LookupConnection(ctx, s.Connection)
	if err != nil {
		r.fail(entry, &ConnectionResolutionError{Index: s.Index, Connection: s.Connection, Err: err}, kindNative, start)
		return
	}
	sink.Task("Executing statement %d", s.Index)
	r.logger.Debug("executing sql", "statement", s.Index, "connection", s.Connection, "sql", sqlText)
	res, err := conn.RunSQL(ctx, sqlText)
	if err != nil {
		r.fail(entry, &QueryExecutionError{Index: s.Index, Err: err}, kindNative, start)
		return
	}
	r.succeed(entry, res, kindNative, start)
}

// substitute replaces every embedded query with its compiled SQL in parentheses. The
// first fragment that fails to compile fails the whole statement.
func (r *documentRun) substitute(s *document.NativeStatement) (string, error) {
	var b strings.Builder
	last := 0
	for _, fragment := range s.Embedded {
		b.WriteString(s.Text[last:fragment.Start])
		compiled, err := r.compileFragment(fragment)
		if err != nil {
			return "", &QueryCompileError{Index: s.Index, Err: fmt.Errorf("embedded query at %s: %w", fragment.Pos, err)}
		}
		b.WriteString("(" + compiled + ")")
		last = fragment.End
	}
	b.WriteString(s.Text[last:])
	return strings.TrimSpace(b.String()), nil
}

func (r *documentRun) compileFragment(fragment document.EmbeddedQuery) (string, error) {
	if !r.models.HasModel() {
		return "", fmt.Errorf("no model has been defined before this statement")
	}
	outcome, err := r.models.CompileQuery(model.WrapFragment(fragment.Query))
	if err != nil {
		return "", err
	}
	q, ok := outcome.Query()
	if !ok {
		return "", fmt.Errorf("%q does not contain a query", fragment.Query)
	}
	return q.SQL(), nil
}

func (r *documentRun) succeed(entry StatementResult, res query.Result, kind string, start time.Time) {
	entry.Results = res.Records()
	r.result.add(entry)
	if r.engine.sink.Enabled(output.ChannelResults) {
		r.engine.sink.Result(formatRecords(entry.Results))
	}
	observability.ObserveStatement(kind, "ok", time.Since(start))
}

func (r *documentRun) fail(entry StatementResult, err error, kind string, start time.Time) {
	entry.Error = err.Error()
	r.result.add(entry)
	r.engine.sink.StatementError(entry.Index, entry.Error)
	r.logger.Debug("statement failed", "statement", entry.Index, "error", err)
	observability.ObserveStatement(kind, "error", time.Since(start))
}

// RunModel runs one query of a .model file: the one named by opts, or the last run:
// statement.
func (e *Engine) RunModel(ctx context.Context, text string, opts RunOptions) (*ModelResult, error) {
	result, err := e.runModel(ctx, text, opts)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.ObserveRun("model_"+opts.mode(), outcome)
	return result, err
}

func (e *Engine) runModel(ctx context.Context, text string, opts RunOptions) (*ModelResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var lookup model.ConnectionLookup
	if !opts.CompileOnly {
		lookup = e.connections
	}
	models := e.newModels(lookup)
	e.sink.Model(text)
	if err := models.Extend(0, text); err != nil {
		return nil, &ModelCompileError{Index: 0, Err: err}
	}

	q, err := selectQuery(models, opts)
	if err != nil {
		return nil, &QueryCompileError{Index: 0, Err: err}
	}
	sqlText := strings.TrimSpace(q.SQL())
	e.sink.CompiledSQL(sqlText)
	result := &ModelResult{SQL: sqlText}
	if opts.CompileOnly {
		return result, nil
	}

	e.sink.Task("Executing query on %s", q.Connection())
	res, err := q.Run(ctx)
	if err != nil {
		return nil, runFailure(0, err)
	}
	result.Results = res.Records()
	if e.sink.Enabled(output.ChannelResults) {
		e.sink.Result(formatRecords(result.Results))
	}
	return result, nil
}

func selectQuery(models Models, opts RunOptions) (model.Query, error) {
	switch {
	case opts.StatementIndex != nil:
		return models.QueryByIndex(*opts.StatementIndex)
	case strings.TrimSpace(opts.QueryName) != "":
		return models.QueryByName(strings.TrimSpace(opts.QueryName))
	case strings.TrimSpace(opts.Query) != "":
		outcome, err := models.CompileQuery(model.WrapFragment(opts.Query))
		if err != nil {
			return nil, err
		}
		q, ok := outcome.Query()
		if !ok {
			return nil, fmt.Errorf("%q does not contain a query", opts.Query)
		}
		return q, nil
	default:
		return models.FinalQuery()
	}
}

func formatRecords(records []query.Record) string {
	encoded, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Sprintf("unable to format results: %v", err)
	}
	return string(encoded)
}
