package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"path/filepath"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/modelsql/modelsql/internal/connections"
	"github.com/modelsql/modelsql/internal/query"
)

const TypeName = "duckdb"

const propDatabasePath = "databasePath"

func Type() connections.Type {
	return connections.Type{
		Name:        TypeName,
		DisplayName: "DuckDB",
		Properties: []connections.Property{
			{
				Name:        propDatabasePath,
				DisplayName: "Database Path",
				Type:        connections.PropertyFile,
				Description: "Path to the database file, relative to the working directory",
				Default:     ":memory:",
				Optional:    true,
			},
			{
				Name:        connections.WorkingDirectoryProperty,
				DisplayName: "Working Directory",
				Type:        connections.PropertyString,
				Description: "Directory relative file paths in queries resolve against",
				Optional:    true,
			},
		},
		Open: Open,
	}
}

func Open(ctx context.Context, name string, props connections.Properties, pool connections.PoolConfig) (connections.Connection, error) {
	workDir := props.String(connections.WorkingDirectoryProperty)
	dbPath := databasePath(props.String(propDatabasePath), workDir)

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		if workDir == "" {
			return nil
		}
		_, err := execer.ExecContext(context.Background(), "SET file_search_path = "+query.QuoteString(workDir), nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	db := sql.OpenDB(connector)
	if err := connections.ConfigureDB(ctx, db, pool); err != nil {
		_ = db.Close()
		return nil, err
	}
	return connections.NewSQLConnection(name, TypeName, db, pool.RowLimit), nil
}

func databasePath(path, workDir string) string {
	if path == "" || path == ":memory:" {
		return ""
	}
	if workDir != "" && !filepath.IsAbs(path) {
		return filepath.Join(workDir, path)
	}
	return path
}
