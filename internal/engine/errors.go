package engine

import (
	"errors"
	"fmt"

	"github.com/modelsql/modelsql/internal/document"
	"github.com/modelsql/modelsql/internal/model"
)

// ConfigurationError rejects run options before the document is parsed or run.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

func configError(format string, args ...any) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// DocumentParseError is returned when the document structure is invalid. Nothing ran.
type DocumentParseError struct {
	Err error
}

func (e *DocumentParseError) Error() string { return e.Err.Error() }
func (e *DocumentParseError) Unwrap() error { return e.Err }

// ModelCompileError ends a run. Results recorded before the failing statement are kept.
type ModelCompileError struct {
	Index int
	Err   error
}

func (e *ModelCompileError) Error() string { return e.Err.Error() }
func (e *ModelCompileError) Unwrap() error { return e.Err }

// QueryCompileError, QueryExecutionError and ConnectionResolutionError are recorded on
// the statement they belong to and do not stop a document run.
type QueryCompileError struct {
	Index int
	Err   error
}

func (e *QueryCompileError) Error() string { return e.Err.Error() }
func (e *QueryCompileError) Unwrap() error { return e.Err }

type QueryExecutionError struct {
	Index int
	Err   error
}

func (e *QueryExecutionError) Error() string { return e.Err.Error() }
func (e *QueryExecutionError) Unwrap() error { return e.Err }

type ConnectionResolutionError struct {
	Index      int
	Connection string
	Err        error
}

func (e *ConnectionResolutionError) Error() string { return e.Err.Error() }
func (e *ConnectionResolutionError) Unwrap() error { return e.Err }

// runFailure classifies an error returned while running a compiled query.
func runFailure(index int, err error) error {
	var connErr *model.ConnectionError
	if errors.As(err, &connErr) {
		return &ConnectionResolutionError{Index: index, Connection: connErr.Name, Err: connErr.Err}
	}
	return &QueryExecutionError{Index: index, Err: err}
}

// inDocument rewrites a model error position, which is relative to the statement
// body, into a document position.
func inDocument(statement document.Statement, err error) error {
	var modelErr *model.Error
	if !errors.As(err, &modelErr) || modelErr.Pos.Line == 0 {
		return err
	}
	line := statement.Position().Line + modelErr.Pos.Line
	return fmt.Errorf("line %d, column %d: %s", line, modelErr.Pos.Column, modelErr.Message)
}
