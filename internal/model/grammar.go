package model

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var modelLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `(?:--|//)[^\n]*`},
	{Name: "String", Pattern: `'(?:\\.|[^'\\])*'|"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},
	{Name: "Arrow", Pattern: `->`},
	{Name: "Op", Pattern: `!=|<=|>=|=|<|>`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[{}():,.*]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type file struct {
	Statements []*statement `@@*`
}

type statement struct {
	Pos    lexer.Position
	Source *sourceDef `  "source" ":" @@`
	Query  *queryDef  `| "query" ":" @@`
	Run    *queryExpr `| "run" ":" @@`
}

type sourceDef struct {
	Pos        lexer.Position
	Name       string `@Ident "is"`
	Connection string `@Ident "."`
	Method     string `@("table" | "sql")`
	Arg        string `"(" @String ")"`
}

type queryDef struct {
	Pos   lexer.Position
	Name  string     `@Ident "is"`
	Query *queryExpr `@@`
}

type queryExpr struct {
	Pos     lexer.Position
	Base    string    `@Ident`
	Clauses []*clause `( "->" "{" @@* "}" )?`
}

type clause struct {
	Pos       lexer.Position
	Select    []string     `  "select" ":" ( @"*" | @Ident ( "," @Ident )* )`
	GroupBy   []string     `| "group_by" ":" @Ident ( "," @Ident )*`
	Aggregate []*aggregate `| "aggregate" ":" @@ ( "," @@ )*`
	Where     []*condition `| "where" ":" @@ ( "and" @@ )*`
	OrderBy   []*orderItem `| "order_by" ":" @@ ( "," @@ )*`
	Limit     *int         `| "limit" ":" @Number`
}

type aggregate struct {
	Pos   lexer.Position
	Name  string `@Ident "is"`
	Func  string `@("count" | "sum" | "avg" | "min" | "max")`
	Field string `"(" @Ident? ")"`
}

type condition struct {
	Pos   lexer.Position
	Field string   `@Ident`
	Op    string   `@Op`
	Value *literal `@@`
}

type literal struct {
	String *string `  @String`
	Number *string `| @Number`
	Bool   *string `| @("true" | "false")`
	Null   bool    `| @"null"`
}

type orderItem struct {
	Field     string `@Ident`
	Direction string `@("asc" | "desc")?`
}

var parser = participle.MustBuild[file](
	participle.Lexer(modelLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

func parse(text string) (*file, error) {
	return parser.ParseString("", text)
}
