package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/modelsql/modelsql/internal/connections"
)

const TypeName = "postgres"

func Type() connections.Type {
	return connections.Type{
		Name:        TypeName,
		DisplayName: "Postgres",
		Properties: []connections.Property{
			{Name: "host", DisplayName: "Host", Type: connections.PropertyString, Default: "localhost", Optional: true},
			{Name: "port", DisplayName: "Port", Type: connections.PropertyNumber, Default: "5432", Optional: true},
			{Name: "username", DisplayName: "Username", Type: connections.PropertyString, Optional: true},
			{Name: "password", DisplayName: "Password", Type: connections.PropertyPassword, Optional: true},
			{Name: "databaseName", DisplayName: "Database Name", Type: connections.PropertyString, Optional: true},
			{Name: "sslmode", DisplayName: "SSL Mode", Type: connections.PropertyString, Description: "libpq sslmode (disable, require, verify-full)", Optional: true},
			{Name: "connectionString", DisplayName: "Connection String", Type: connections.PropertyPassword, Description: "Full postgres:// URL, overrides the other properties", Optional: true},
		},
		Open: Open,
	}
}

func Open(ctx context.Context, name string, props connections.Properties, pool connections.PoolConfig) (connections.Connection, error) {
	dsn, err := BuildDSN(props)
	if err != nil {
		return nil, err
	}
	db, err := connections.OpenDB(ctx, "pgx", dsn, pool)
	if err != nil {
		return nil, err
	}
	return connections.NewSQLConnection(name, TypeName, db, pool.RowLimit), nil
}

// BuildDSN assembles a postgres:// URL from connection properties.
func BuildDSN(props connections.Properties) (string, error) {
	if dsn := props.String("connectionString"); dsn != "" {
		return dsn, nil
	}
	host := props.String("host")
	if host == "" {
		host = "localhost"
	}
	port, err := props.Int("port")
	if err != nil {
		return "", err
	}
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + props.String("databaseName"),
	}
	if username := props.String("username"); username != "" {
		if password := props.String("password"); password != "" {
			u.User = url.UserPassword(username, password)
		} else {
			u.User = url.User(username)
		}
	}
	if sslmode := props.String("sslmode"); sslmode != "" {
		u.RawQuery = url.Values{"sslmode": []string{sslmode}}.Encode()
	}
	if u.Host == "" {
		return "", fmt.Errorf("postgres host is required")
	}
	return u.String(), nil
}
