package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

// ConfigFileName is the connection catalog file inside Paths.ConfigDir.
const ConfigFileName = "modelsql-config.json"

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	Paths         PathsConfig
	Connections   ConnectionsConfig
	ObjectStore   ObjectStoreConfig
	Publisher     PublisherConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type PathsConfig struct {
	ConfigDir string
}

func (p PathsConfig) ConfigFile() string {
	return filepath.Join(p.ConfigDir, ConfigFileName)
}

type ConnectionsConfig struct {
	Default         string
	RowLimit        int
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

// PublisherConfig points modelsql-pub at a Publisher server.
type PublisherConfig struct {
	URL     string
	Timeout time.Duration
}

type ObservabilityConfig struct {
	LogLevel        slog.Level
	LogJSON         bool
	MetricsTextfile string
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("MODELSQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid MODELSQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "MODELSQL_CONFIG_DIR", &cfg.Paths.ConfigDir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "MODELSQL_DEFAULT_CONNECTION", &cfg.Connections.Default); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "MODELSQL_ROW_LIMIT", &cfg.Connections.RowLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "MODELSQL_SQL_MAX_OPEN_CONNS", &cfg.Connections.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "MODELSQL_SQL_MAX_IDLE_CONNS", &cfg.Connections.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "MODELSQL_SQL_CONN_MAX_IDLE_TIME", &cfg.Connections.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "MODELSQL_SQL_CONN_MAX_LIFETIME", &cfg.Connections.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "MODELSQL_SQL_PING_TIMEOUT", &cfg.Connections.PingTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "MODELSQL_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "MODELSQL_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "MODELSQL_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "MODELSQL_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "MODELSQL_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "MODELSQL_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "MODELSQL_PUBLISHER_URL", &cfg.Publisher.URL); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "MODELSQL_PUBLISHER_TIMEOUT", &cfg.Publisher.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "MODELSQL_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "MODELSQL_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "MODELSQL_METRICS_TEXTFILE", &cfg.Observability.MetricsTextfile); err != nil {
		return Config{}, err
	}

	if cfg.Paths.ConfigDir == "" {
		dir, err := DefaultConfigDir(lookup)
		if err != nil {
			return Config{}, err
		}
		cfg.Paths.ConfigDir = dir
	}
	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.Publisher.Timeout <= 0 {
		return Config{}, fmt.Errorf("invalid MODELSQL_PUBLISHER_TIMEOUT: must be > 0")
	}
	if cfg.Connections.RowLimit < 0 {
		return Config{}, fmt.Errorf("invalid MODELSQL_ROW_LIMIT: must be >= 0")
	}
	return cfg, nil
}

// DefaultConfigDir returns the per-user directory holding the connection catalog:
// $XDG_CONFIG_HOME/modelsql, %APPDATA%\modelsql on Windows, else ~/.config/modelsql.
func DefaultConfigDir(lookup LookupFunc) (string, error) {
	if value, ok := lookup("XDG_CONFIG_HOME"); ok && strings.TrimSpace(value) != "" {
		return filepath.Join(strings.TrimSpace(value), "modelsql"), nil
	}
	if runtime.GOOS == "windows" {
		if value, ok := lookup("APPDATA"); ok && strings.TrimSpace(value) != "" {
			return filepath.Join(strings.TrimSpace(value), "modelsql"), nil
		}
	}
	home := ""
	if value, ok := lookup("HOME"); ok {
		home = strings.TrimSpace(value)
	}
	if home == "" {
		dir, err := homedir.Dir()
		if err != nil {
			return "", fmt.Errorf("could not find a default place for configuration to be stored: %w", err)
		}
		home = dir
	}
	return filepath.Join(home, ".config", "modelsql"), nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "modelsql"},
		Connections: ConnectionsConfig{
			Default:         "duckdb",
			RowLimit:        0,
			MaxOpenConns:    4,
			MaxIdleConns:    4,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint: "localhost:9000",
			Region:   "us-east-1",
			UseSSL:   false,
		},
		Publisher: PublisherConfig{
			URL:     "http://localhost:4000",
			Timeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelWarn,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.Observability.LogLevel = slog.LevelError
	case ProfileProd:
		cfg.Observability.LogJSON = true
		cfg.ObjectStore.UseSSL = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level, err := ParseLogLevel(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = level
	return nil
}

// ParseLogLevel accepts debug, info, warn (or warning) and error.
func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", raw)
	}
}
