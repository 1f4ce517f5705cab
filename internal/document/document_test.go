package document

import (
	"errors"
	"strings"
	"testing"
)

const mixedDocument = `>>>model
source: sales is duckdb.table('sales.parquet')
>>>sql connection:warehouse
SELECT * FROM %{ sales -> { aggregate: c is count() } }% AS x
`

func TestParseMixedDocument(t *testing.T) {
	doc, err := Parse(mixedDocument)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.Statements) != 2 {
		t.Fatalf("statements = %d", len(doc.Statements))
	}

	model, ok := doc.Statements[0].(*ModelStatement)
	if !ok {
		t.Fatalf("statement 0 = %T", doc.Statements[0])
	}
	if model.Index != 0 || !strings.Contains(model.Text, "source: sales") {
		t.Fatalf("model statement = %#v", model)
	}

	native, ok := doc.Statements[1].(*NativeStatement)
	if !ok {
		t.Fatalf("statement 1 = %T", doc.Statements[1])
	}
	if native.Index != 1 || native.Connection != "warehouse" {
		t.Fatalf("native statement = %#v", native)
	}
	if native.Pos != (Position{Line: 3, Column: 1}) {
		t.Fatalf("native Pos = %v", native.Pos)
	}
	if len(native.Embedded) != 1 {
		t.Fatalf("embedded = %d", len(native.Embedded))
	}
	fragment := native.Embedded[0]
	if fragment.Query != "sales -> { aggregate: c is count() }" {
		t.Fatalf("fragment query = %q", fragment.Query)
	}
	if native.Text[fragment.Start:fragment.End] != fragment.Text {
		t.Fatalf("fragment span = %q, text = %q", native.Text[fragment.Start:fragment.End], fragment.Text)
	}
	if !strings.HasPrefix(fragment.Text, "%{") || !strings.HasSuffix(fragment.Text, "}%") {
		t.Fatalf("fragment text = %q", fragment.Text)
	}
	if fragment.Pos != (Position{Line: 4, Column: 15}) {
		t.Fatalf("fragment Pos = %v", fragment.Pos)
	}
	if doc.NativeCount() != 1 {
		t.Fatalf("NativeCount() = %d", doc.NativeCount())
	}
}

func TestParseLeadingTextIsNativeStatement(t *testing.T) {
	doc, err := Parse("SELECT 1;")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.Statements) != 1 {
		t.Fatalf("statements = %d", len(doc.Statements))
	}
	native, ok := doc.Statements[0].(*NativeStatement)
	if !ok {
		t.Fatalf("statement 0 = %T", doc.Statements[0])
	}
	if native.Text != "SELECT 1;" || native.Connection != "" {
		t.Fatalf("native statement = %#v", native)
	}
}

func TestParseIgnoresBlankPreamble(t *testing.T) {
	doc, err := Parse("\n  \n>>>sql\nSELECT 2\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.Statements) != 1 {
		t.Fatalf("statements = %d", len(doc.Statements))
	}
	if got := doc.Statements[0].StatementIndex(); got != 0 {
		t.Fatalf("index = %d", got)
	}
}

func TestParseDropsStatementsWithBlankBody(t *testing.T) {
	doc, err := Parse(">>>sql\n>>>sql\nSELECT 1;\n>>>model\n  \n>>>sql connection:warehouse\n\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.Statements) != 1 {
		t.Fatalf("statements = %d", len(doc.Statements))
	}
	native, ok := doc.Statements[0].(*NativeStatement)
	if !ok {
		t.Fatalf("statement 0 = %T", doc.Statements[0])
	}
	if native.StatementIndex() != 0 || strings.TrimSpace(native.Text) != "SELECT 1;" {
		t.Fatalf("native statement = %#v", native)
	}
	if native.Pos.Line != 2 {
		t.Fatalf("Pos = %v", native.Pos)
	}
}

func TestParseQuotedConnectionName(t *testing.T) {
	doc, err := Parse(">>>sql connection:\"my conn\"\nSELECT 1\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	native := doc.Statements[0].(*NativeStatement)
	if native.Connection != "my conn" {
		t.Fatalf("Connection = %q", native.Connection)
	}
}

func TestParseKeepsStatementOrder(t *testing.T) {
	doc, err := Parse(">>>sql\nSELECT 1\n>>>model\nsource: a is duckdb.table('a')\n>>>sql\nSELECT 2\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.Statements) != 3 {
		t.Fatalf("statements = %d", len(doc.Statements))
	}
	for i, statement := range doc.Statements {
		if statement.StatementIndex() != i {
			t.Fatalf("statement %d has index %d", i, statement.StatementIndex())
		}
	}
	if _, ok := doc.Statements[1].(*ModelStatement); !ok {
		t.Fatalf("statement 1 = %T", doc.Statements[1])
	}
}

func TestParseReportsStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  Position
	}{
		{name: "unknown kind", text: ">>>python\nprint(1)\n", pos: Position{Line: 1, Column: 4}},
		{name: "unknown option", text: "SELECT 1\n>>>sql dialect:ansi\nSELECT 2\n", pos: Position{Line: 2, Column: 8}},
		{name: "model options", text: ">>>model connection:x\n", pos: Position{Line: 1, Column: 10}},
		{name: "unclosed fragment", text: ">>>sql\nSELECT %{ sales\n", pos: Position{Line: 2, Column: 8}},
		{name: "empty fragment", text: ">>>sql\nSELECT %{  }%\n", pos: Position{Line: 2, Column: 8}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := Parse(tc.text)
			if err == nil {
				t.Fatalf("Parse() = %#v, want error", doc)
			}
			var errs ParseErrors
			if !errors.As(err, &errs) {
				t.Fatalf("Parse() error type = %T", err)
			}
			if errs[0].Pos != tc.pos {
				t.Fatalf("error position = %v, want %v (%v)", errs[0].Pos, tc.pos, errs[0])
			}
		})
	}
}

func TestParseRejectsMalformedHeader(t *testing.T) {
	if _, err := Parse(">>>sql connection\nSELECT 1\n"); err == nil {
		t.Fatal("expected error for option without value")
	}
}
