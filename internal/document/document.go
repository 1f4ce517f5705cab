// Package document splits a .modelsql document into an ordered list of model and native
// SQL statements.
//
// A statement starts at a delimiter line beginning in column one:
//
//	>>>model
//	>>>sql connection:warehouse
//
// Text before the first delimiter forms a native statement on the default connection.
// Native statements may embed model queries as %{ query }% fragments.
package document

import (
	"fmt"
	"strings"
)

const (
	delimiterPrefix = ">>>"
	fragmentOpen    = "%{"
	fragmentClose   = "}%"
)

type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Statement is either a *ModelStatement or a *NativeStatement.
type Statement interface {
	StatementIndex() int
	Source() string
	Position() Position
	isStatement()
}

type ModelStatement struct {
	Index int
	Text  string
	Pos   Position
}

func (s *ModelStatement) StatementIndex() int { return s.Index }
func (s *ModelStatement) Source() string      { return s.Text }
func (s *ModelStatement) Position() Position  { return s.Pos }
func (*ModelStatement) isStatement()          {}

type NativeStatement struct {
	Index int
	Text  string
	Pos   Position
	// Connection is empty when the statement targets the default connection.
	Connection string
	Embedded   []EmbeddedQuery
}

func (s *NativeStatement) StatementIndex() int { return s.Index }
func (s *NativeStatement) Source() string      { return s.Text }
func (s *NativeStatement) Position() Position  { return s.Pos }
func (*NativeStatement) isStatement()          {}

// EmbeddedQuery is a %{ ... }% fragment. Start and End are byte offsets of the whole
// fragment, delimiters included, within the owning statement's Text.
type EmbeddedQuery struct {
	Query string
	Text  string
	Start int
	End   int
	Pos   Position
}

type Document struct {
	Statements []Statement
}

// NativeCount reports how many statements are native SQL.
func (d *Document) NativeCount() int {
	count := 0
	for _, statement := range d.Statements {
		if _, ok := statement.(*NativeStatement); ok {
			count++
		}
	}
	return count
}

type ParseError struct {
	Pos     Position
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

type ParseErrors []ParseError

func (e ParseErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, item := range e {
		messages = append(messages, item.Error())
	}
	return "parse errors encountered: " + strings.Join(messages, "\n")
}

type pendingStatement struct {
	header     header
	pos        Position
	bodyLine   int
	body       strings.Builder
	hasHeader  bool
	hasContent bool
}

// Parse never returns a partial document: either every statement parsed or a
// non-empty ParseErrors is returned.
func Parse(text string) (*Document, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		errs       ParseErrors
		statements []Statement
		current    = &pendingStatement{pos: Position{Line: 1, Column: 1}, bodyLine: 1}
	)

	// statements with a blank body are dropped and take no index
	flush := func() {
		if !current.hasContent {
			return
		}
		statement, fragmentErrs := current.build(len(statements))
		errs = append(errs, fragmentErrs...)
		statements = append(statements, statement)
	}

	lines := strings.SplitAfter(text, "\n")
	for i, line := range lines {
		lineNo := i + 1
		if strings.HasPrefix(line, delimiterPrefix) {
			flush()
			parsed, err := parseHeader(strings.TrimRight(line, "\n"), lineNo)
			if err != nil {
				errs = append(errs, *err)
			}
			current = &pendingStatement{
				header:    parsed,
				pos:       Position{Line: lineNo, Column: 1},
				bodyLine:  lineNo + 1,
				hasHeader: true,
			}
			continue
		}
		current.body.WriteString(line)
		if strings.TrimSpace(line) != "" {
			current.hasContent = true
		}
	}
	flush()

	if len(errs) > 0 {
		return nil, errs
	}
	return &Document{Statements: statements}, nil
}

func (p *pendingStatement) build(index int) (Statement, ParseErrors) {
	body := p.body.String()
	if p.hasHeader && p.header.Kind == kindModel {
		return &ModelStatement{Index: index, Text: body, Pos: p.pos}, nil
	}
	embedded, errs := scanFragments(body, p.bodyLine)
	return &NativeStatement{
		Index:      index,
		Text:       body,
		Pos:        p.pos,
		Connection: p.header.Connection,
		Embedded:   embedded,
	}, errs
}

func scanFragments(body string, firstLine int) ([]EmbeddedQuery, ParseErrors) {
	var (
		fragments []EmbeddedQuery
		errs      ParseErrors
	)
	offset := 0
	for {
		open := strings.Index(body[offset:], fragmentOpen)
		if open < 0 {
			break
		}
		start := offset + open
		pos := positionAt(body, start, firstLine)
		closeAt := strings.Index(body[start+len(fragmentOpen):], fragmentClose)
		if closeAt < 0 {
			errs = append(errs, ParseError{Pos: pos, Message: "embedded query is missing its closing }%"})
			break
		}
		end := start + len(fragmentOpen) + closeAt + len(fragmentClose)
		inner := strings.TrimSpace(body[start+len(fragmentOpen) : end-len(fragmentClose)])
		if inner == "" {
			errs = append(errs, ParseError{Pos: pos, Message: "embedded query is empty"})
		} else {
			fragments = append(fragments, EmbeddedQuery{
				Query: inner,
				Text:  body[start:end],
				Start: start,
				End:   end,
				Pos:   pos,
			})
		}
		offset = end
	}
	return fragments, errs
}

func positionAt(body string, offset, firstLine int) Position {
	before := body[:offset]
	line := firstLine + strings.Count(before, "\n")
	column := offset + 1
	if lastNewline := strings.LastIndex(before, "\n"); lastNewline >= 0 {
		column = offset - lastNewline
	}
	return Position{Line: line, Column: column}
}
