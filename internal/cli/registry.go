package cli

import (
	"github.com/modelsql/modelsql/internal/connections"
	"github.com/modelsql/modelsql/internal/connections/duckdb"
	"github.com/modelsql/modelsql/internal/connections/mysql"
	"github.com/modelsql/modelsql/internal/connections/postgres"
	"github.com/modelsql/modelsql/internal/connections/sqlite"
)

// DefaultRegistry lists every connection type the binary ships with.
func DefaultRegistry() *connections.Registry {
	return connections.NewRegistry(
		duckdb.Type(),
		postgres.Type(),
		mysql.Type(),
		sqlite.Type(),
	)
}
