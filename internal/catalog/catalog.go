// Package catalog persists named connection entries in the user's config directory.
package catalog

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound = errors.New("catalog: not found")
	ErrExists   = errors.New("catalog: already exists")
)

// TypeKey names the connection type inside an entry.
const TypeKey = "is"

type Entry map[string]any

func (e Entry) Type() string {
	value, _ := e[TypeKey].(string)
	return value
}

// Properties returns the entry without its type key.
func (e Entry) Properties() map[string]any {
	out := make(map[string]any, len(e))
	for key, value := range e {
		if key == TypeKey {
			continue
		}
		out[key] = value
	}
	return out
}

func (e Entry) clone() Entry {
	out := make(Entry, len(e))
	for key, value := range e {
		out[key] = value
	}
	return out
}

type Config struct {
	Connections map[string]Entry `json:"connections"`
}

func NewConfig() Config {
	return Config{Connections: map[string]Entry{}}
}

func (c Config) Names() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c Config) Get(name string) (Entry, error) {
	entry, ok := c.Connections[name]
	if !ok {
		return nil, fmt.Errorf("connection %q: %w", name, ErrNotFound)
	}
	return entry.clone(), nil
}

func (c *Config) Create(name, typeName string, props map[string]any) error {
	if c.Connections == nil {
		c.Connections = map[string]Entry{}
	}
	if _, ok := c.Connections[name]; ok {
		return fmt.Errorf("connection %q: %w", name, ErrExists)
	}
	entry := Entry{TypeKey: typeName}
	for key, value := range props {
		entry[key] = value
	}
	c.Connections[name] = entry
	return nil
}

func (c *Config) Update(name string, props map[string]any) error {
	entry, ok := c.Connections[name]
	if !ok {
		return fmt.Errorf("connection %q: %w", name, ErrNotFound)
	}
	for key, value := range props {
		if key == TypeKey {
			continue
		}
		entry[key] = value
	}
	return nil
}

func (c *Config) Delete(name string) error {
	if _, ok := c.Connections[name]; !ok {
		return fmt.Errorf("connection %q: %w", name, ErrNotFound)
	}
	delete(c.Connections, name)
	return nil
}
