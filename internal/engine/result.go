package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/modelsql/modelsql/internal/query"
)

// StatementResult is what one executed statement produced. Results is nil when the
// statement was only compiled or failed before running, and an empty slice when it
// ran and returned no rows.
type StatementResult struct {
	Index   int
	SQL     string
	HasSQL  bool
	Results []query.Record
	Error   string
}

type statementJSON struct {
	SQL     *string         `json:"sql,omitempty"`
	Results *[]query.Record `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (r StatementResult) MarshalJSON() ([]byte, error) {
	out := statementJSON{Error: r.Error}
	if r.HasSQL {
		sqlText := r.SQL
		out.SQL = &sqlText
	}
	if r.Results != nil {
		results := r.Results
		out.Results = &results
	}
	return encode(out)
}

// RunResult holds statement results in execution order. Skipped statements are absent.
type RunResult struct {
	statements []StatementResult
}

func (r *RunResult) Statements() []StatementResult {
	out := make([]StatementResult, len(r.statements))
	copy(out, r.statements)
	return out
}

func (r *RunResult) Get(index int) (StatementResult, bool) {
	for _, statement := range r.statements {
		if statement.Index == index {
			return statement, true
		}
	}
	return StatementResult{}, false
}

func (r *RunResult) Len() int {
	return len(r.statements)
}

func (r *RunResult) add(statement StatementResult) {
	r.statements = append(r.statements, statement)
}

// MarshalJSON writes {"statement_<i>": {...}} with keys in execution order.
func (r *RunResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, statement := range r.statements {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:", fmt.Sprintf("statement_%d", statement.Index))
		encoded, err := statement.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// JSON renders the result the way it is printed and stored. Unlike json.Marshal it
// leaves <, > and & in SQL text unescaped.
func (r *RunResult) JSON() ([]byte, error) {
	return encode(r)
}

// ModelResult is the outcome of running one query from a model file.
type ModelResult struct {
	SQL     string
	Results []query.Record
}

func (r *ModelResult) MarshalJSON() ([]byte, error) {
	sqlText := r.SQL
	out := statementJSON{SQL: &sqlText}
	if r.Results != nil {
		results := r.Results
		out.Results = &results
	}
	return encode(out)
}

func (r *ModelResult) JSON() ([]byte, error) {
	return encode(r)
}

// encode marshals without HTML escaping so compiled SQL stays readable.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
