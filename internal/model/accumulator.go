package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"

	"github.com/modelsql/modelsql/internal/query"
)

// ConnectionLookup resolves the connection a compiled query runs on.
type ConnectionLookup interface {
	LookupConnection(ctx context.Context, name string) (query.Runner, error)
}

// Query is a compiled, runnable model query.
type Query interface {
	SQL() string
	Connection() string
	Run(ctx context.Context) (query.Result, error)
}

// Outcome is the result of compiling text that may or may not contain a query.
type Outcome struct {
	query Query
}

func Compiled(q Query) Outcome { return Outcome{query: q} }

func NoQueryPresent() Outcome { return Outcome{} }

func (o Outcome) Query() (Query, bool) { return o.query, o.query != nil }

func (o Outcome) IsNoQuery() bool { return o.query == nil }

type CompiledQuery struct {
	sql        string
	connection string
	lookup     ConnectionLookup
}

func (q *CompiledQuery) SQL() string        { return q.sql }
func (q *CompiledQuery) Connection() string { return q.connection }

func (q *CompiledQuery) Run(ctx context.Context) (query.Result, error) {
	if q.lookup == nil {
		return query.Result{}, &ConnectionError{Name: q.connection, Err: fmt.Errorf("no connection lookup configured")}
	}
	runner, err := q.lookup.LookupConnection(ctx, q.connection)
	if err != nil {
		return query.Result{}, &ConnectionError{Name: q.connection, Err: err}
	}
	return runner.RunSQL(ctx, q.sql)
}

// ConnectionError reports that the connection a query targets could not be resolved.
type ConnectionError struct {
	Name string
	Err  error
}

func (e *ConnectionError) Error() string { return e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// CompileError is returned by Extend and names the statement that was rejected.
type CompileError struct {
	Index int
	Err   error
}

func (e *CompileError) Error() string { return e.Err.Error() }
func (e *CompileError) Unwrap() error { return e.Err }

// WrapFragment turns an embedded query fragment into model text.
func WrapFragment(fragment string) string {
	return "run: " + fragment
}

// Accumulator owns the model of a single run.
type Accumulator struct {
	model  *Model
	lookup ConnectionLookup
}

func NewAccumulator(lookup ConnectionLookup) *Accumulator {
	return &Accumulator{lookup: lookup}
}

func (a *Accumulator) HasModel() bool { return a.model != nil }

func (a *Accumulator) Model() *Model { return a.model }

// Extend folds text into the model. The first call creates the model. A rejected
// statement leaves the previous model untouched.
func (a *Accumulator) Extend(index int, text string) error {
	parsed, err := parse(text)
	if err != nil {
		return &CompileError{Index: index, Err: convertParseError(err)}
	}
	next := newModel()
	if a.model != nil {
		next = a.model.clone()
	}
	if _, err := next.apply(parsed, false); err != nil {
		return &CompileError{Index: index, Err: err}
	}
	a.model = next
	return nil
}

// CompileQuery compiles the last run: statement in text against the current model.
// Definitions in text that the model already holds are skipped, so text that was just
// passed to Extend compiles without duplicate-name errors.
func (a *Accumulator) CompileQuery(text string) (Outcome, error) {
	parsed, err := parse(text)
	if err != nil {
		return Outcome{}, convertParseError(err)
	}
	scratch := newModel()
	if a.model != nil {
		scratch = a.model.clone()
	}
	last, err := scratch.apply(parsed, true)
	if err != nil {
		return Outcome{}, err
	}
	if last == nil {
		return NoQueryPresent(), nil
	}
	q, err := a.build(scratch, last)
	if err != nil {
		return Outcome{}, err
	}
	return Compiled(q), nil
}

// QueryByIndex compiles the index-th run: statement, counting from 1.
func (a *Accumulator) QueryByIndex(index int) (Query, error) {
	if a.model == nil {
		return nil, fmt.Errorf("no model has been loaded")
	}
	if index < 1 || index > len(a.model.runs) {
		return nil, fmt.Errorf("query index %d is out of range, the model has %d queries", index, len(a.model.runs))
	}
	return a.build(a.model, a.model.runs[index-1])
}

func (a *Accumulator) QueryByName(name string) (Query, error) {
	if a.model == nil {
		return nil, fmt.Errorf("no model has been loaded")
	}
	expr, ok := a.model.queries[name]
	if !ok {
		if names := a.model.QueryNames(); len(names) > 0 {
			return nil, fmt.Errorf("no query named %q, available queries: %s", name, strings.Join(names, ", "))
		}
		return nil, fmt.Errorf("no query named %q", name)
	}
	return a.build(a.model, expr)
}

// FinalQuery compiles the last run: statement of the model.
func (a *Accumulator) FinalQuery() (Query, error) {
	if a.model == nil || len(a.model.runs) == 0 {
		return nil, fmt.Errorf("no runnable query found")
	}
	return a.build(a.model, a.model.runs[len(a.model.runs)-1])
}

func (a *Accumulator) build(m *Model, expr *queryExpr) (Query, error) {
	out, err := m.compile(expr)
	if err != nil {
		return nil, err
	}
	return &CompiledQuery{sql: out.sql, connection: out.connection, lookup: a.lookup}, nil
}

func convertParseError(err error) error {
	var perr participle.Error
	if errors.As(err, &perr) {
		return &Error{Pos: perr.Position(), Message: perr.Message()}
	}
	return err
}
