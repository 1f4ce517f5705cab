package connections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modelsql/modelsql/internal/catalog"
	"github.com/modelsql/modelsql/internal/observability"
	"github.com/modelsql/modelsql/internal/query"
)

type ResolverOptions struct {
	DefaultName string
	Pool        PoolConfig
	Logger      *slog.Logger
}

type handleKey struct {
	dir  string
	name string
}

// Resolver hands out live connections by name. Handles are cached per
// (working directory, name) and shared by every run in the process until Reset.
type Resolver struct {
	registry    *Registry
	entries     map[string]catalog.Entry
	defaultName string
	pool        PoolConfig
	logger      *slog.Logger

	mu      sync.Mutex
	handles map[handleKey]Connection
}

func NewResolver(registry *Registry, cfg catalog.Config, opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	defaultName := opts.DefaultName
	if defaultName == "" {
		defaultName = BuiltinDefault
	}
	entries := make(map[string]catalog.Entry, len(cfg.Connections))
	for name, entry := range cfg.Connections {
		entries[name] = entry
	}
	return &Resolver{
		registry:    registry,
		entries:     entries,
		defaultName: defaultName,
		pool:        opts.Pool,
		logger:      logger,
		handles:     map[handleKey]Connection{},
	}
}

func (r *Resolver) DefaultName() string {
	return r.defaultName
}

// Lookup returns the connection called name, or the default connection when name is
// empty. dir is injected as the working directory of types that support one and do
// not configure it.
func (r *Resolver) Lookup(ctx context.Context, dir, name string) (Connection, error) {
	if name == "" {
		name = r.defaultName
	}
	key := handleKey{dir: dir, name: name}

	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.handles[key]; ok {
		return conn, nil
	}

	conn, err := r.open(ctx, dir, name)
	if err != nil {
		return nil, err
	}
	r.handles[key] = conn
	return conn, nil
}

// Test opens a fresh handle for name, tests it and closes it again.
func (r *Resolver) Test(ctx context.Context, name string) error {
	conn, err := r.open(ctx, "", name)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return conn.Test(ctx)
}

// Reset closes every cached handle.
func (r *Resolver) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for key, conn := range r.handles {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key.name, err))
		}
		delete(r.handles, key)
	}
	return errors.Join(errs...)
}

// ForDir binds the resolver to a document directory.
func (r *Resolver) ForDir(dir string) *DirLookup {
	return &DirLookup{resolver: r, dir: dir}
}

func (r *Resolver) open(ctx context.Context, dir, name string) (Connection, error) {
	entry, ok := r.entries[name]
	if !ok {
		if name != BuiltinDefault {
			return nil, fmt.Errorf("A connection named %s could not be found", name)
		}
		entry = catalog.Entry{catalog.TypeKey: BuiltinDefault}
	}
	typ, err := r.registry.Get(entry.Type())
	if err != nil {
		return nil, err
	}

	props := Properties(entry.Properties())
	if dir != "" && typ.SupportsWorkingDirectory() && props.String(WorkingDirectoryProperty) == "" {
		props[WorkingDirectoryProperty] = dir
	}

	r.logger.Debug("opening connection", "name", name, "type", typ.Name, "working_dir", props.String(WorkingDirectoryProperty))
	conn, err := typ.Open(ctx, name, props, r.pool)
	observability.ObserveConnectionOpen(typ.Name, err)
	if err != nil {
		return nil, fmt.Errorf("open connection %s: %w", name, err)
	}
	return conn, nil
}

// DirLookup resolves connections for documents in one directory.
type DirLookup struct {
	resolver *Resolver
	dir      string
}

func (l *DirLookup) LookupConnection(ctx context.Context, name string) (query.Runner, error) {
	return l.resolver.Lookup(ctx, l.dir, name)
}

func (l *DirLookup) Dir() string {
	return l.dir
}
