package model

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/modelsql/modelsql/internal/query"
)

type sourceKind int

const (
	sourceTable sourceKind = iota
	sourceSQL
)

type source struct {
	name       string
	connection string
	kind       sourceKind
	arg        string
}

// Model is the set of definitions accumulated from model text. Values are never
// mutated once shared; extension works on a clone.
type Model struct {
	sources map[string]*source
	queries map[string]*queryExpr
	runs    []*queryExpr
}

func newModel() *Model {
	return &Model{
		sources: map[string]*source{},
		queries: map[string]*queryExpr{},
	}
}

func (m *Model) clone() *Model {
	out := newModel()
	for name, src := range m.sources {
		out.sources[name] = src
	}
	for name, q := range m.queries {
		out.queries[name] = q
	}
	out.runs = append(out.runs, m.runs...)
	return out
}

func (m *Model) has(name string) bool {
	_, isSource := m.sources[name]
	_, isQuery := m.queries[name]
	return isSource || isQuery
}

func (m *Model) QueryNames() []string {
	names := make([]string, 0, len(m.queries))
	for name := range m.queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunCount reports how many run: statements the model holds.
func (m *Model) RunCount() int {
	return len(m.runs)
}

// apply folds parsed statements into m. With skipKnown set, definitions whose name
// is already present are ignored instead of rejected.
func (m *Model) apply(parsed *file, skipKnown bool) (*queryExpr, error) {
	var last *queryExpr
	for _, stmt := range parsed.Statements {
		switch {
		case stmt.Source != nil:
			def := stmt.Source
			if m.has(def.Name) {
				if skipKnown {
					continue
				}
				return nil, errorAt(def.Pos, "%q is already defined", def.Name)
			}
			src := &source{name: def.Name, connection: def.Connection, arg: def.Arg}
			if def.Method == "sql" {
				src.kind = sourceSQL
			}
			if strings.TrimSpace(src.arg) == "" {
				return nil, errorAt(def.Pos, "source %q needs a non-empty %s() argument", def.Name, def.Method)
			}
			m.sources[def.Name] = src
		case stmt.Query != nil:
			def := stmt.Query
			if m.has(def.Name) {
				if skipKnown {
					continue
				}
				return nil, errorAt(def.Pos, "%q is already defined", def.Name)
			}
			if _, err := m.compile(def.Query); err != nil {
				return nil, err
			}
			m.queries[def.Name] = def.Query
		case stmt.Run != nil:
			if _, err := m.compile(stmt.Run); err != nil {
				return nil, err
			}
			last = stmt.Run
			if !skipKnown {
				m.runs = append(m.runs, stmt.Run)
			}
		}
	}
	return last, nil
}

func (s *source) fromClause() string {
	if s.kind == sourceSQL {
		return "(" + query.StripTrailingSemicolons(s.arg) + ")"
	}
	return tableRef(s.arg)
}

var fileExtensions = map[string]bool{
	".parquet": true,
	".csv":     true,
	".tsv":     true,
	".json":    true,
	".jsonl":   true,
	".ndjson":  true,
	".gz":      true,
}

// tableRef renders a table argument. Paths become string literals so the backend
// scans the file; anything else is a possibly dotted identifier.
func tableRef(table string) string {
	table = strings.TrimSpace(table)
	if strings.ContainsAny(table, `/\*`) || fileExtensions[strings.ToLower(path.Ext(table))] || strings.Contains(table, "://") {
		return query.QuoteString(table)
	}
	parts := strings.Split(table, ".")
	for i, part := range parts {
		parts[i] = query.QuoteIdent(part)
	}
	return strings.Join(parts, ".")
}

// Error is a model-language error with a position relative to the compiled text.
type Error struct {
	Pos     lexer.Position
	Message string
}

func (e *Error) Error() string {
	if e.Pos.Line == 0 {
		return e.Message
	}
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

func errorAt(pos lexer.Position, format string, args ...any) error {
	return &Error{Pos: pos, Message: fmt.Sprintf(format, args...)}
}
