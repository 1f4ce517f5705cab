package connections

import (
	"context"
	"errors"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/modelsql/modelsql/internal/catalog"
	"github.com/modelsql/modelsql/internal/query"
)

func TestResolverCachesHandlesPerDirectoryAndName(t *testing.T) {
	opener := &fakeOpener{}
	resolver := NewResolver(NewRegistry(opener.duckType()), catalog.NewConfig(), ResolverOptions{})

	first, err := resolver.Lookup(context.Background(), "/docs", "")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	second, err := resolver.Lookup(context.Background(), "/docs", "duckdb")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if first != second {
		t.Fatal("expected the cached handle to be reused")
	}
	if _, err := resolver.Lookup(context.Background(), "/other", "duckdb"); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if opener.opened != 2 {
		t.Fatalf("opened = %d, want 2", opener.opened)
	}
	if got := opener.lastProps.String(WorkingDirectoryProperty); got != "/other" {
		t.Fatalf("workingDirectory = %q", got)
	}
}

func TestResolverKeepsConfiguredWorkingDirectory(t *testing.T) {
	opener := &fakeOpener{}
	cfg := catalog.NewConfig()
	_ = cfg.Create("local", "duckdb", map[string]any{WorkingDirectoryProperty: "/data"})
	resolver := NewResolver(NewRegistry(opener.duckType()), cfg, ResolverOptions{})

	if _, err := resolver.Lookup(context.Background(), "/docs", "local"); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got := opener.lastProps.String(WorkingDirectoryProperty); got != "/data" {
		t.Fatalf("workingDirectory = %q", got)
	}
}

func TestResolverUsesConfiguredDefault(t *testing.T) {
	opener := &fakeOpener{}
	cfg := catalog.NewConfig()
	_ = cfg.Create("warehouse", "duckdb", nil)
	resolver := NewResolver(NewRegistry(opener.duckType()), cfg, ResolverOptions{DefaultName: "warehouse"})

	conn, err := resolver.Lookup(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if conn.Name() != "warehouse" {
		t.Fatalf("Name() = %q", conn.Name())
	}
}

func TestResolverRejectsUnknownConnection(t *testing.T) {
	resolver := NewResolver(NewRegistry((&fakeOpener{}).duckType()), catalog.NewConfig(), ResolverOptions{})
	_, err := resolver.Lookup(context.Background(), "", "nope")
	if err == nil || err.Error() != "A connection named nope could not be found" {
		t.Fatalf("Lookup() error = %v", err)
	}
}

func TestResolverRejectsUnknownType(t *testing.T) {
	cfg := catalog.NewConfig()
	_ = cfg.Create("bq", "bigquery", nil)
	resolver := NewResolver(NewRegistry((&fakeOpener{}).duckType()), cfg, ResolverOptions{})
	_, err := resolver.Lookup(context.Background(), "", "bq")
	if err == nil || !strings.Contains(err.Error(), "Unknown connection type: bigquery") {
		t.Fatalf("Lookup() error = %v", err)
	}
}

func TestResolverResetClosesHandles(t *testing.T) {
	opener := &fakeOpener{}
	resolver := NewResolver(NewRegistry(opener.duckType()), catalog.NewConfig(), ResolverOptions{})
	conn, err := resolver.Lookup(context.Background(), "/docs", "")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if err := resolver.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if !conn.(*fakeConnection).closed {
		t.Fatal("expected handle to be closed")
	}
	if _, err := resolver.Lookup(context.Background(), "/docs", ""); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if opener.opened != 2 {
		t.Fatalf("opened = %d, want 2", opener.opened)
	}
}

func TestResolverTestClosesHandle(t *testing.T) {
	opener := &fakeOpener{testErr: errors.New("unreachable")}
	resolver := NewResolver(NewRegistry(opener.duckType()), catalog.NewConfig(), ResolverOptions{})
	if err := resolver.Test(context.Background(), "duckdb"); err == nil {
		t.Fatal("expected test error")
	}
	if !opener.last.closed {
		t.Fatal("expected test handle to be closed")
	}
}

func TestDirLookupReturnsRunner(t *testing.T) {
	opener := &fakeOpener{}
	resolver := NewResolver(NewRegistry(opener.duckType()), catalog.NewConfig(), ResolverOptions{})
	runner, err := resolver.ForDir("/docs").LookupConnection(context.Background(), "")
	if err != nil {
		t.Fatalf("LookupConnection() error = %v", err)
	}
	if _, err := runner.RunSQL(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("RunSQL() error = %v", err)
	}
}

func TestParseProperties(t *testing.T) {
	registry := NewRegistry(Type{
		Name: "postgres",
		Properties: []Property{
			{Name: "host", Type: PropertyString},
			{Name: "port", Type: PropertyNumber},
			{Name: "ssl", Type: PropertyBoolean},
			{Name: "password", Type: PropertyPassword},
		},
	})
	props, err := registry.ParseProperties("postgres", []string{"host=db", "port=5432", "ssl=true", "password=a=b"})
	if err != nil {
		t.Fatalf("ParseProperties() error = %v", err)
	}
	if props["host"] != "db" || props["port"] != float64(5432) || props["ssl"] != true || props["password"] != "a=b" {
		t.Fatalf("props = %#v", props)
	}

	for _, bad := range [][]string{{"host"}, {"port=x"}, {"ssl=yes"}, {"nope=1"}} {
		if _, err := registry.ParseProperties("postgres", bad); err == nil {
			t.Fatalf("ParseProperties(%v) expected error", bad)
		}
	}
	if _, err := registry.ParseProperties("oracle", nil); err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestFormatPropertiesTable(t *testing.T) {
	table := FormatPropertiesTable(Type{Properties: []Property{
		{Name: "databasePath", Type: PropertyFile, Description: "Database file", Default: ":memory:", Optional: true},
		{Name: "host", Type: PropertyString, DisplayName: "Host"},
	}})
	lines := strings.Split(table, "\n")
	if len(lines) != 2 {
		t.Fatalf("table = %q", table)
	}
	if lines[0] != "  databasePath  file    Database file (default: :memory:)" {
		t.Fatalf("line 0 = %q", lines[0])
	}
	if lines[1] != "  host          string  Host (required)" {
		t.Fatalf("line 1 = %q", lines[1])
	}
}

func TestPropertiesConversions(t *testing.T) {
	props := Properties{"port": float64(5432), "flag": "true", "name": " x "}
	if port, err := props.Int("port"); err != nil || port != 5432 {
		t.Fatalf("Int() = %d, %v", port, err)
	}
	if flag, err := props.Bool("flag"); err != nil || !flag {
		t.Fatalf("Bool() = %v, %v", flag, err)
	}
	if props.String("name") != "x" {
		t.Fatalf("String() = %q", props.String("name"))
	}
	if missing, err := props.Int("missing"); err != nil || missing != 0 {
		t.Fatalf("Int(missing) = %d, %v", missing, err)
	}
}

func TestSQLConnectionRunsWithRowLimit(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	conn := NewSQLConnection("pg", "postgres", db, 100)

	mock.ExpectQuery(`SELECT \* FROM \(SELECT 1 AS x\) AS q LIMIT 100`).
		WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(int64(1)))
	result, err := conn.RunSQL(context.Background(), "SELECT 1 AS x;")
	if err != nil {
		t.Fatalf("RunSQL() error = %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0][0] != int64(1) {
		t.Fatalf("rows = %#v", result.Rows)
	}

	mock.ExpectPing()
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	if err := conn.Test(context.Background()); err != nil {
		t.Fatalf("Test() error = %v", err)
	}

	mock.ExpectClose()
	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestConfigureDBReportsPingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	if err := ConfigureDB(context.Background(), db, PoolConfig{MaxOpenConns: 2}); err == nil {
		t.Fatal("expected ping error")
	}
}

func TestOpenDBRequiresDSN(t *testing.T) {
	if _, err := OpenDB(context.Background(), "pgx", "", PoolConfig{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

type fakeOpener struct {
	opened    int
	lastProps Properties
	last      *fakeConnection
	testErr   error
}

func (f *fakeOpener) duckType() Type {
	return Type{
		Name:       "duckdb",
		Properties: []Property{{Name: WorkingDirectoryProperty, Type: PropertyString, Optional: true}},
		Open: func(_ context.Context, name string, props Properties, _ PoolConfig) (Connection, error) {
			f.opened++
			f.lastProps = props
			f.last = &fakeConnection{name: name, testErr: f.testErr}
			return f.last, nil
		},
	}
}

type fakeConnection struct {
	name    string
	closed  bool
	testErr error
}

func (f *fakeConnection) Name() string { return f.name }
func (f *fakeConnection) Type() string { return "duckdb" }

func (f *fakeConnection) RunSQL(context.Context, string) (query.Result, error) {
	return query.Result{Columns: []string{"1"}, Rows: [][]any{{int32(1)}}}, nil
}

func (f *fakeConnection) Test(context.Context) error { return f.testErr }

func (f *fakeConnection) Close() error {
	f.closed = true
	return nil
}
