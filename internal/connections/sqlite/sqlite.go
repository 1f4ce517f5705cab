package sqlite

import (
	"context"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/modelsql/modelsql/internal/connections"
)

const TypeName = "sqlite"

const memoryPath = ":memory:"

func Type() connections.Type {
	return connections.Type{
		Name:        TypeName,
		DisplayName: "SQLite",
		Properties: []connections.Property{
			{
				Name:        "databasePath",
				DisplayName: "Database Path",
				Type:        connections.PropertyFile,
				Description: "Path to the database file, relative to the working directory",
				Default:     memoryPath,
				Optional:    true,
			},
			{
				Name:        connections.WorkingDirectoryProperty,
				DisplayName: "Working Directory",
				Type:        connections.PropertyString,
				Optional:    true,
			},
		},
		Open: Open,
	}
}

func Open(ctx context.Context, name string, props connections.Properties, pool connections.PoolConfig) (connections.Connection, error) {
	path := props.String("databasePath")
	if path == "" {
		path = memoryPath
	}
	if path != memoryPath && !filepath.IsAbs(path) {
		if workDir := props.String(connections.WorkingDirectoryProperty); workDir != "" {
			path = filepath.Join(workDir, path)
		}
	}
	// every pooled connection to :memory: would see its own empty database
	if path == memoryPath {
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
		pool.ConnMaxIdleTime = 0
		pool.ConnMaxLifetime = 0
	}
	db, err := connections.OpenDB(ctx, "sqlite3", path, pool)
	if err != nil {
		return nil, err
	}
	return connections.NewSQLConnection(name, TypeName, db, pool.RowLimit), nil
}
