package connections

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/modelsql/modelsql/internal/query"
)

// SQLConnection runs statements on a database/sql handle.
type SQLConnection struct {
	name     string
	typeName string
	db       *sql.DB
	rowLimit int
}

func NewSQLConnection(name, typeName string, db *sql.DB, rowLimit int) *SQLConnection {
	return &SQLConnection{name: name, typeName: typeName, db: db, rowLimit: rowLimit}
}

func (c *SQLConnection) Name() string { return c.name }
func (c *SQLConnection) Type() string { return c.typeName }

func (c *SQLConnection) RunSQL(ctx context.Context, sqlText string) (query.Result, error) {
	return query.Execute(ctx, c.db, query.Request{SQL: sqlText, RowLimit: c.rowLimit})
}

func (c *SQLConnection) Test(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", c.name, err)
	}
	if _, err := query.Execute(ctx, c.db, query.Request{SQL: "SELECT 1"}); err != nil {
		return err
	}
	return nil
}

func (c *SQLConnection) Close() error {
	return c.db.Close()
}

// OpenDB opens a pooled handle for driverName and pings it.
func OpenDB(ctx context.Context, driverName, dsn string, pool PoolConfig) (*sql.DB, error) {
	if dsn == "" && driverName != "duckdb" {
		return nil, fmt.Errorf("%s dsn is required", driverName)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if err := ConfigureDB(ctx, db, pool); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ConfigureDB applies pool limits and verifies the handle with a bounded ping.
func ConfigureDB(ctx context.Context, db *sql.DB, pool PoolConfig) error {
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	timeout := pool.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
