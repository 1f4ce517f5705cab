package engine

import "strings"

// RunOptions selects what a run compiles or executes.
type RunOptions struct {
	CompileOnly bool
	// StatementIndex is 1-based. Nil runs every statement.
	StatementIndex *int
	// QueryName and Query select the query of a model file.
	QueryName string
	Query     string
}

// Validate checks the options on their own, before any input is read.
func (o RunOptions) Validate() error {
	if o.StatementIndex != nil && *o.StatementIndex < 1 {
		return configError("Statement indexes are 1-based - did you mean to use 1 instead of %d?", *o.StatementIndex)
	}
	selectors := 0
	if o.StatementIndex != nil {
		selectors++
	}
	if strings.TrimSpace(o.QueryName) != "" {
		selectors++
	}
	if strings.TrimSpace(o.Query) != "" {
		selectors++
	}
	if selectors > 1 {
		return configError("Only one of a statement index, a query name or a query string can be given")
	}
	return nil
}

func (o RunOptions) mode() string {
	if o.CompileOnly {
		return "compile"
	}
	return "run"
}
