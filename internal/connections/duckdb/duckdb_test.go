package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/modelsql/modelsql/internal/connections"
)

type row struct {
	ID    int64  `parquet:"id"`
	Value string `parquet:"value"`
}

func TestRunSQLReadsParquetFromWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := writeParquet(filepath.Join(dir, "events.parquet"), []row{{ID: 1, Value: "a"}, {ID: 2, Value: "b"}}); err != nil {
		t.Fatalf("writeParquet() error = %v", err)
	}

	conn, err := Open(context.Background(), "duckdb", connections.Properties{connections.WorkingDirectoryProperty: dir}, connections.PoolConfig{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = conn.Close() }()

	result, err := conn.RunSQL(context.Background(), "SELECT COUNT(*) AS c FROM 'events.parquet';")
	if err != nil {
		t.Fatalf("RunSQL() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != int64(2) {
		t.Fatalf("count = %#v", result.Rows[0][0])
	}
}

func TestRunSQLAppliesRowLimit(t *testing.T) {
	dir := t.TempDir()
	if err := writeParquet(filepath.Join(dir, "events.parquet"), []row{{ID: 1, Value: "a"}, {ID: 2, Value: "b"}, {ID: 3, Value: "c"}}); err != nil {
		t.Fatalf("writeParquet() error = %v", err)
	}

	conn, err := Open(context.Background(), "duckdb", connections.Properties{connections.WorkingDirectoryProperty: dir}, connections.PoolConfig{RowLimit: 2})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = conn.Close() }()

	result, err := conn.RunSQL(context.Background(), "SELECT id, value FROM 'events.parquet' ORDER BY id")
	if err != nil {
		t.Fatalf("RunSQL() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Columns[0] != "id" || result.Columns[1] != "value" {
		t.Fatalf("columns = %#v", result.Columns)
	}
	if result.Rows[1][1] != "b" {
		t.Fatalf("value = %#v", result.Rows[1][1])
	}
}

func TestInMemoryDatabaseKeepsStateAcrossStatements(t *testing.T) {
	conn, err := Open(context.Background(), "duckdb", connections.Properties{}, connections.PoolConfig{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.RunSQL(context.Background(), "CREATE TABLE t AS SELECT 42 AS x"); err != nil {
		t.Fatalf("RunSQL(create) error = %v", err)
	}
	result, err := conn.RunSQL(context.Background(), "SELECT x FROM t")
	if err != nil {
		t.Fatalf("RunSQL(select) error = %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0][0] != int32(42) {
		t.Fatalf("rows = %#v", result.Rows)
	}
	if err := conn.Test(context.Background()); err != nil {
		t.Fatalf("Test() error = %v", err)
	}
}

func TestDatabasePath(t *testing.T) {
	if got := databasePath(":memory:", "/docs"); got != "" {
		t.Fatalf("databasePath(:memory:) = %q", got)
	}
	if got := databasePath("local.db", "/docs"); got != filepath.Join("/docs", "local.db") {
		t.Fatalf("databasePath(relative) = %q", got)
	}
	if got := databasePath("/abs/local.db", "/docs"); got != "/abs/local.db" {
		t.Fatalf("databasePath(absolute) = %q", got)
	}
}

func TestTypeDeclaresWorkingDirectory(t *testing.T) {
	if !Type().SupportsWorkingDirectory() {
		t.Fatal("duckdb should accept a working directory")
	}
}

func writeParquet(path string, rows []row) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[row](file)
	if _, err := writer.Write(rows); err != nil {
		return err
	}
	return writer.Close()
}
