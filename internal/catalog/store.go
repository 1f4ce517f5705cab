package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	FileName       = "modelsql-config.json"
	LegacyFileName = "config.json"
)

// Store reads and writes the catalog file inside dir.
type Store struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
}

func NewStore(fs afero.Fs, dir string, logger *slog.Logger) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{fs: fs, dir: dir, logger: logger}
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

func (s *Store) legacyPath() string {
	return filepath.Join(s.dir, LegacyFileName)
}

// Load returns the stored catalog. A missing file yields an empty catalog. A legacy
// config.json is migrated first when the current file does not exist yet.
func (s *Store) Load() (Config, error) {
	exists, err := afero.Exists(s.fs, s.Path())
	if err != nil {
		return Config{}, fmt.Errorf("stat %s: %w", s.Path(), err)
	}
	if !exists {
		legacy, err := afero.Exists(s.fs, s.legacyPath())
		if err != nil {
			return Config{}, fmt.Errorf("stat %s: %w", s.legacyPath(), err)
		}
		if legacy {
			if err := s.migrate(); err != nil {
				return Config{}, err
			}
			exists = true
		}
	}
	if !exists {
		s.logger.Debug("no connection catalog found, using empty catalog", "path", s.Path())
		return NewConfig(), nil
	}

	raw, err := afero.ReadFile(s.fs, s.Path())
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", s.Path(), err)
	}
	cfg := NewConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("Error parsing config file at %s: %w", s.Path(), err)
	}
	if cfg.Connections == nil {
		cfg.Connections = map[string]Entry{}
	}
	s.logger.Debug("connection catalog loaded", "path", s.Path(), "connections", len(cfg.Connections))
	return cfg, nil
}

func (s *Store) Save(cfg Config) error {
	if cfg.Connections == nil {
		cfg.Connections = map[string]Entry{}
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %s: %w", s.dir, err)
	}
	encoded, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.Path(), append(encoded, '\n'), 0o600); err != nil {
		return fmt.Errorf("Could not write configuration information to %s: %w", s.Path(), err)
	}
	return nil
}

type legacyConfig struct {
	Connections []map[string]any `json:"connections"`
}

func (s *Store) migrate() error {
	s.logger.Debug("migrating legacy catalog", "from", s.legacyPath(), "to", s.Path())
	raw, err := afero.ReadFile(s.fs, s.legacyPath())
	if err != nil {
		return fmt.Errorf("Error migrating old config from %s: %w", s.legacyPath(), err)
	}
	var legacy legacyConfig
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return fmt.Errorf("Error migrating old config from %s: %w", s.legacyPath(), err)
	}

	cfg := NewConfig()
	for _, conn := range legacy.Connections {
		name, _ := conn["name"].(string)
		if name == "" {
			continue
		}
		entry := Entry{}
		for key, value := range conn {
			switch key {
			case "name", "isDefault":
			case "backend":
				entry[TypeKey] = value
			default:
				entry[key] = value
			}
		}
		cfg.Connections[name] = entry
	}

	if err := s.Save(cfg); err != nil {
		return err
	}
	if err := s.fs.Remove(s.legacyPath()); err != nil {
		return fmt.Errorf("remove %s: %w", s.legacyPath(), err)
	}
	return nil
}
