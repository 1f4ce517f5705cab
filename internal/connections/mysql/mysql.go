package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/modelsql/modelsql/internal/connections"
)

const TypeName = "mysql"

func Type() connections.Type {
	return connections.Type{
		Name:        TypeName,
		DisplayName: "MySQL",
		Properties: []connections.Property{
			{Name: "host", DisplayName: "Host", Type: connections.PropertyString, Default: "localhost", Optional: true},
			{Name: "port", DisplayName: "Port", Type: connections.PropertyNumber, Default: "3306", Optional: true},
			{Name: "user", DisplayName: "User", Type: connections.PropertyString, Optional: true},
			{Name: "password", DisplayName: "Password", Type: connections.PropertyPassword, Optional: true},
			{Name: "database", DisplayName: "Database", Type: connections.PropertyString, Optional: true},
		},
		Open: Open,
	}
}

func Open(ctx context.Context, name string, props connections.Properties, pool connections.PoolConfig) (connections.Connection, error) {
	cfg, err := BuildConfig(props)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := connections.ConfigureDB(ctx, db, pool); err != nil {
		_ = db.Close()
		return nil, err
	}
	return connections.NewSQLConnection(name, TypeName, db, pool.RowLimit), nil
}

// BuildConfig maps connection properties onto a driver config.
func BuildConfig(props connections.Properties) (*mysql.Config, error) {
	host := props.String("host")
	if host == "" {
		host = "localhost"
	}
	port, err := props.Int("port")
	if err != nil {
		return nil, err
	}
	if port == 0 {
		port = 3306
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.User = props.String("user")
	cfg.Passwd = props.String("password")
	cfg.DBName = props.String("database")
	cfg.ParseTime = true
	return cfg, nil
}
