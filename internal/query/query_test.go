package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestExecuteScansRowsInColumnOrder(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(`SELECT name, total FROM sales`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "total"}).
			AddRow([]byte("north"), int64(12)).
			AddRow([]byte("south"), int64(7)))

	result, err := Execute(context.Background(), db, Request{SQL: "SELECT name, total FROM sales;"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Columns) != 2 || result.Columns[0] != "name" {
		t.Fatalf("Columns = %#v", result.Columns)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != "north" {
		t.Fatalf("first value = %#v", result.Rows[0][0])
	}
	assertSQLMock(t, mock)
}

func TestExecuteWrapsSelectWithRowLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(`SELECT \* FROM \(SELECT 1\) AS q LIMIT 10`).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	if _, err := Execute(context.Background(), db, Request{SQL: "SELECT 1;;", RowLimit: 10}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestExecuteDoesNotWrapStatementsWithoutRows(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(`^CREATE TABLE t AS SELECT 1 AS x$`).
		WillReturnRows(sqlmock.NewRows([]string{"Count"}).AddRow(int64(1)))

	if _, err := Execute(context.Background(), db, Request{SQL: "CREATE TABLE t AS SELECT 1 AS x", RowLimit: 10}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestExecuteReturnsEmptyRowsForZeroRowResult(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(`SELECT 1 WHERE false`).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	result, err := Execute(context.Background(), db, Request{SQL: "SELECT 1 WHERE false"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	encoded, err := json.Marshal(result.Records())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(encoded) != "[]" {
		t.Fatalf("records = %s", encoded)
	}
}

func TestExecuteWrapsDriverError(t *testing.T) {
	db, mock := newSQLMock(t)
	driverErr := errors.New("Catalog Error: Table with name nope does not exist")
	mock.ExpectQuery(`SELECT \* FROM nope`).WillReturnError(driverErr)

	_, err := Execute(context.Background(), db, Request{SQL: "SELECT * FROM nope"})
	if !errors.Is(err, driverErr) {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestExecuteRequiresSQL(t *testing.T) {
	db, _ := newSQLMock(t)
	if _, err := Execute(context.Background(), db, Request{SQL: " ; "}); err == nil {
		t.Fatal("expected error for empty sql")
	}
}

func TestRecordMarshalKeepsColumnOrder(t *testing.T) {
	result := Result{
		Columns: []string{"z", "a", "m"},
		Rows:    [][]any{{int64(1), "two", nil}},
	}
	encoded, err := json.Marshal(result.Records())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `[{"z":1,"a":"two","m":null}]`
	if string(encoded) != want {
		t.Fatalf("records = %s, want %s", encoded, want)
	}
}

func TestQuoteHelpers(t *testing.T) {
	if got := QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("QuoteIdent() = %s", got)
	}
	if got := QuoteString(`it's`); got != `'it''s'` {
		t.Fatalf("QuoteString() = %s", got)
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}
