package connections

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/modelsql/modelsql/internal/query"
)

// WorkingDirectoryProperty is injected with the document's directory for types that declare it.
const WorkingDirectoryProperty = "workingDirectory"

// BuiltinDefault is available even when no connection with that name is configured.
const BuiltinDefault = "duckdb"

type Connection interface {
	query.Runner
	Name() string
	Type() string
	Test(ctx context.Context) error
	Close() error
}

type PropertyType string

const (
	PropertyString   PropertyType = "string"
	PropertyNumber   PropertyType = "number"
	PropertyBoolean  PropertyType = "boolean"
	PropertyPassword PropertyType = "password"
	PropertyFile     PropertyType = "file"
)

type Property struct {
	Name        string
	DisplayName string
	Type        PropertyType
	Description string
	Default     string
	Optional    bool
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
	RowLimit        int
}

type OpenFunc func(ctx context.Context, name string, props Properties, pool PoolConfig) (Connection, error)

type Type struct {
	Name        string
	DisplayName string
	Properties  []Property
	Open        OpenFunc
}

func (t Type) Property(name string) (Property, bool) {
	for _, prop := range t.Properties {
		if prop.Name == name {
			return prop, true
		}
	}
	return Property{}, false
}

func (t Type) SupportsWorkingDirectory() bool {
	_, ok := t.Property(WorkingDirectoryProperty)
	return ok
}

// Properties holds a connection's configured values, as decoded from JSON.
type Properties map[string]any

func (p Properties) String(key string) string {
	switch value := p[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case nil:
		return ""
	default:
		return fmt.Sprint(value)
	}
}

func (p Properties) Int(key string) (int, error) {
	switch value := p[key].(type) {
	case nil:
		return 0, nil
	case int:
		return value, nil
	case int64:
		return int(value), nil
	case float64:
		return int(value), nil
	case string:
		if strings.TrimSpace(value) == "" {
			return 0, nil
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("property %q must be a number, got %q", key, value)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("property %q must be a number", key)
	}
}

func (p Properties) Bool(key string) (bool, error) {
	switch value := p[key].(type) {
	case nil:
		return false, nil
	case bool:
		return value, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return false, fmt.Errorf("property %q must be true or false, got %q", key, value)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("property %q must be true or false", key)
	}
}

type Registry struct {
	types map[string]Type
}

func NewRegistry(types ...Type) *Registry {
	r := &Registry{types: map[string]Type{}}
	for _, t := range types {
		r.types[t.Name] = t
	}
	return r
}

func (r *Registry) Lookup(name string) (Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named type or an error listing the available ones.
func (r *Registry) Get(name string) (Type, error) {
	t, ok := r.types[name]
	if !ok {
		return Type{}, fmt.Errorf("Unknown connection type: %s. Available types: %s", name, strings.Join(r.Names(), ", "))
	}
	return t, nil
}

// ParseProperties converts key=value pairs into typed properties of the given type.
func (r *Registry) ParseProperties(typeName string, pairs []string) (Properties, error) {
	t, err := r.Get(typeName)
	if err != nil {
		return nil, err
	}
	out := Properties{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("Invalid property format: %s (expected key=value)", pair)
		}
		prop, known := t.Property(key)
		if !known {
			return nil, fmt.Errorf("Unknown property %q for connection type %q\n\nProperties for %s:\n%s", key, typeName, typeName, FormatPropertiesTable(t))
		}
		switch prop.Type {
		case PropertyNumber:
			num, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("Property %q must be a number, got %q", key, value)
			}
			out[key] = num
		case PropertyBoolean:
			if value != "true" && value != "false" {
				return nil, fmt.Errorf("Property %q must be true or false, got %q", key, value)
			}
			out[key] = value == "true"
		default:
			out[key] = value
		}
	}
	return out, nil
}

// FormatPropertiesTable renders one line per property: name, type and description.
func FormatPropertiesTable(t Type) string {
	nameWidth, typeWidth := 0, 0
	for _, prop := range t.Properties {
		nameWidth = max(nameWidth, len(prop.Name))
		typeWidth = max(typeWidth, len(prop.Type))
	}
	lines := make([]string, 0, len(t.Properties))
	for _, prop := range t.Properties {
		description := prop.Description
		if description == "" {
			description = prop.DisplayName
		}
		parts := []string{description}
		if prop.Default != "" {
			parts = append(parts, fmt.Sprintf("(default: %s)", prop.Default))
		}
		if !prop.Optional {
			parts = append(parts, "(required)")
		}
		lines = append(lines, fmt.Sprintf("  %-*s  %-*s  %s", nameWidth, prop.Name, typeWidth, prop.Type, strings.Join(parts, " ")))
	}
	return strings.Join(lines, "\n")
}
