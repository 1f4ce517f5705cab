package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/modelsql/modelsql/internal/query"
)

const baseAlias = "base"

type compiled struct {
	sql        string
	connection string
}

type plan struct {
	selects    []string
	groupBy    []string
	aggregates []*aggregate
	where      []*condition
	orderBy    []*orderItem
	limit      *int
}

func (m *Model) compile(expr *queryExpr) (compiled, error) {
	from, connection, err := m.resolveBase(expr)
	if err != nil {
		return compiled{}, err
	}
	p, err := collect(expr)
	if err != nil {
		return compiled{}, err
	}
	return compiled{sql: render(from, p), connection: connection}, nil
}

func (m *Model) resolveBase(expr *queryExpr) (string, string, error) {
	if src, ok := m.sources[expr.Base]; ok {
		return src.fromClause(), src.connection, nil
	}
	if named, ok := m.queries[expr.Base]; ok {
		inner, err := m.compile(named)
		if err != nil {
			return "", "", err
		}
		return "(" + inner.sql + ")", inner.connection, nil
	}
	return "", "", errorAt(expr.Pos, "unknown source or query %q", expr.Base)
}

func collect(expr *queryExpr) (plan, error) {
	var p plan
	for _, c := range expr.Clauses {
		switch {
		case len(c.Select) > 0:
			p.selects = append(p.selects, c.Select...)
		case len(c.GroupBy) > 0:
			p.groupBy = append(p.groupBy, c.GroupBy...)
		case len(c.Aggregate) > 0:
			for _, agg := range c.Aggregate {
				if agg.Func != "count" && agg.Field == "" {
					return plan{}, errorAt(agg.Pos, "%s() needs a field", agg.Func)
				}
			}
			p.aggregates = append(p.aggregates, c.Aggregate...)
		case len(c.Where) > 0:
			for _, cond := range c.Where {
				if cond.Value.Null && cond.Op != "=" && cond.Op != "!=" {
					return plan{}, errorAt(cond.Pos, "null can only be compared with = or !=")
				}
			}
			p.where = append(p.where, c.Where...)
		case len(c.OrderBy) > 0:
			p.orderBy = append(p.orderBy, c.OrderBy...)
		case c.Limit != nil:
			if p.limit != nil {
				return plan{}, errorAt(c.Pos, "limit given more than once")
			}
			if *c.Limit < 0 {
				return plan{}, errorAt(c.Pos, "limit must be >= 0")
			}
			p.limit = c.Limit
		}
	}
	if len(p.selects) > 0 && (len(p.groupBy) > 0 || len(p.aggregates) > 0) {
		return plan{}, errorAt(expr.Pos, "select cannot be combined with group_by or aggregate")
	}
	for _, field := range p.selects {
		if field == "*" && len(p.selects) > 1 {
			return plan{}, errorAt(expr.Pos, "select * cannot be combined with other fields")
		}
	}
	return p, nil
}

func render(from string, p plan) string {
	columns := make([]string, 0, len(p.selects)+len(p.groupBy)+len(p.aggregates))
	for _, field := range p.selects {
		if field == "*" {
			columns = append(columns, baseAlias+".*")
			continue
		}
		columns = append(columns, fieldRef(field)+" AS "+query.QuoteIdent(field))
	}
	for _, field := range p.groupBy {
		columns = append(columns, fieldRef(field)+" AS "+query.QuoteIdent(field))
	}
	for _, agg := range p.aggregates {
		columns = append(columns, aggregateExpr(agg)+" AS "+query.QuoteIdent(agg.Name))
	}
	if len(columns) == 0 {
		columns = append(columns, baseAlias+".*")
	}

	var b strings.Builder
	b.WriteString("SELECT\n  ")
	b.WriteString(strings.Join(columns, ",\n  "))
	b.WriteString("\nFROM ")
	b.WriteString(from)
	b.WriteString(" AS ")
	b.WriteString(baseAlias)

	if len(p.where) > 0 {
		conditions := make([]string, 0, len(p.where))
		for _, cond := range p.where {
			conditions = append(conditions, conditionExpr(cond))
		}
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	if len(p.groupBy) > 0 {
		positions := make([]string, 0, len(p.groupBy))
		for i := range p.groupBy {
			positions = append(positions, strconv.Itoa(i+1))
		}
		b.WriteString("\nGROUP BY ")
		b.WriteString(strings.Join(positions, ", "))
	}
	if len(p.orderBy) > 0 {
		items := make([]string, 0, len(p.orderBy))
		for _, item := range p.orderBy {
			direction := "ASC"
			if item.Direction == "desc" {
				direction = "DESC"
			}
			items = append(items, query.QuoteIdent(item.Field)+" "+direction)
		}
		b.WriteString("\nORDER BY ")
		b.WriteString(strings.Join(items, ", "))
	}
	if p.limit != nil {
		fmt.Fprintf(&b, "\nLIMIT %d", *p.limit)
	}
	return b.String()
}

func fieldRef(field string) string {
	return baseAlias + "." + query.QuoteIdent(field)
}

func aggregateExpr(agg *aggregate) string {
	if agg.Func == "count" {
		if agg.Field == "" {
			return "COUNT(1)"
		}
		return "COUNT(" + fieldRef(agg.Field) + ")"
	}
	return strings.ToUpper(agg.Func) + "(" + fieldRef(agg.Field) + ")"
}

func conditionExpr(cond *condition) string {
	left := fieldRef(cond.Field)
	if cond.Value.Null {
		if cond.Op == "!=" {
			return left + " IS NOT NULL"
		}
		return left + " IS NULL"
	}
	op := cond.Op
	if op == "!=" {
		op = "<>"
	}
	return left + " " + op + " " + literalSQL(cond.Value)
}

func literalSQL(lit *literal) string {
	switch {
	case lit.String != nil:
		return query.QuoteString(*lit.String)
	case lit.Number != nil:
		return *lit.Number
	case lit.Bool != nil:
		return strings.ToUpper(*lit.Bool)
	default:
		return "NULL"
	}
}
