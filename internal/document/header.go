package document

import (
	"errors"
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

const (
	kindModel = "model"
	kindSQL   = "sql"

	optionConnection = "connection"
)

var headerLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Marker", Pattern: `>>>`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_\-]*`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

type rawHeader struct {
	Kind    string       `">>>" @Ident`
	Options []*rawOption `@@*`
}

type rawOption struct {
	Pos   lexer.Position
	Key   string `@Ident ":"`
	Value string `@(Ident | String)`
}

var headerParser = participle.MustBuild[rawHeader](
	participle.Lexer(headerLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
)

type header struct {
	Kind       string
	Connection string
}

func parseHeader(line string, lineNo int) (header, *ParseError) {
	raw, err := headerParser.ParseString("", line)
	if err != nil {
		pos := Position{Line: lineNo, Column: 1}
		message := err.Error()
		var perr participle.Error
		if errors.As(err, &perr) {
			pos.Column = perr.Position().Column
			message = perr.Message()
		}
		return header{}, &ParseError{Pos: pos, Message: message}
	}

	parsed := header{Kind: raw.Kind}
	switch raw.Kind {
	case kindModel:
		if len(raw.Options) > 0 {
			return parsed, &ParseError{
				Pos:     Position{Line: lineNo, Column: raw.Options[0].Pos.Column},
				Message: "model statements take no options",
			}
		}
	case kindSQL:
		seen := map[string]bool{}
		for _, option := range raw.Options {
			pos := Position{Line: lineNo, Column: option.Pos.Column}
			if option.Key != optionConnection {
				return parsed, &ParseError{Pos: pos, Message: fmt.Sprintf("unknown sql option %q", option.Key)}
			}
			if seen[option.Key] {
				return parsed, &ParseError{Pos: pos, Message: fmt.Sprintf("duplicate sql option %q", option.Key)}
			}
			seen[option.Key] = true
			parsed.Connection = option.Value
		}
	default:
		return parsed, &ParseError{
			Pos:     Position{Line: lineNo, Column: len(delimiterPrefix) + 1},
			Message: fmt.Sprintf("unknown statement kind %q, expected %q or %q", raw.Kind, kindModel, kindSQL),
		}
	}
	return parsed, nil
}
