package query

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// Runner executes native SQL text and returns a tabular result.
type Runner interface {
	RunSQL(ctx context.Context, sqlText string) (Result, error)
}

// Record is one result row whose JSON object keeps the column order of the result.
type Record struct {
	Columns []string
	Values  []any
}

// Records converts the result to row objects. A result with no rows yields an empty,
// non-nil slice so that it serializes as [].
func (r Result) Records() []Record {
	records := make([]Record, 0, len(r.Rows))
	for _, row := range r.Rows {
		records = append(records, Record{Columns: r.Columns, Values: row})
	}
	return records
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, column := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(column)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var value any
		if i < len(r.Values) {
			value = r.Values[i]
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
