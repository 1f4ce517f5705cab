package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/modelsql/modelsql/internal/catalog"
	"github.com/modelsql/modelsql/internal/connections"
)

const maskedValue = "****"

func newConnectionsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Manage database connection configurations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "list all database connections",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return a.listConnections() },
		},
		&cobra.Command{
			Use:   "create <type> <name> [key=value...]",
			Short: "create a new database connection",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.createConnection(args[0], args[1], args[2:])
			},
		},
		&cobra.Command{
			Use:   "update <name> [key=value...]",
			Short: "update properties of a database connection",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.updateConnection(args[0], args[1:])
			},
		},
		&cobra.Command{
			Use:   "describe [type]",
			Short: "list connection types or the properties of one type",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				typeName := ""
				if len(args) == 1 {
					typeName = args[0]
				}
				return a.describeConnectionType(typeName)
			},
		},
		&cobra.Command{
			Use:   "test <name>",
			Short: "test a database connection",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.testConnection(cmd, args[0])
			},
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "show details for a database connection",
			Args:  cobra.ExactArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return a.showConnection(args[0]) },
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "remove a database connection",
			Args:  cobra.ExactArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return a.deleteConnection(args[0]) },
		},
	)
	return cmd
}

func (a *app) printf(format string, args ...any) {
	if a.flags.quiet {
		return
	}
	_, _ = fmt.Fprintf(a.opts.Stdout, format+"\n", args...)
}

func (a *app) loadCatalog() (*catalog.Store, catalog.Config, error) {
	store := a.store()
	cfg, err := store.Load()
	if err != nil {
		return nil, catalog.Config{}, failure(err)
	}
	return store, cfg, nil
}

func (a *app) listConnections() error {
	_, cfg, err := a.loadCatalog()
	if err != nil {
		return err
	}
	names := cfg.Names()
	if len(names) == 0 {
		a.printf("No connections found")
		return nil
	}
	rows := [][]string{{"NAME", "TYPE"}}
	for _, name := range names {
		rows = append(rows, []string{name, cfg.Connections[name].Type()})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return failure(err)
	}
	a.printf("%s", strings.TrimRight(table, "\n"))
	return nil
}

func (a *app) createConnection(typeName, name string, pairs []string) error {
	if _, err := a.opts.Registry.Get(typeName); err != nil {
		return failure(err)
	}
	store, cfg, err := a.loadCatalog()
	if err != nil {
		return err
	}
	if _, err := cfg.Get(name); err == nil {
		return failure(fmt.Errorf("A connection named %s already exists", name))
	}
	props, err := a.opts.Registry.ParseProperties(typeName, pairs)
	if err != nil {
		return failure(err)
	}
	if err := cfg.Create(name, typeName, props); err != nil {
		return failure(err)
	}
	if err := store.Save(cfg); err != nil {
		return failure(err)
	}
	a.logger.Debug("connection created", "name", name, "type", typeName, "path", store.Path())
	a.printf("Connection %s created", name)
	return nil
}

func (a *app) updateConnection(name string, pairs []string) error {
	store, cfg, err := a.loadCatalog()
	if err != nil {
		return err
	}
	entry, err := cfg.Get(name)
	if err != nil {
		return failure(fmt.Errorf("A connection named %s could not be found", name))
	}
	props, err := a.opts.Registry.ParseProperties(entry.Type(), pairs)
	if err != nil {
		return failure(err)
	}
	if err := cfg.Update(name, props); err != nil {
		return failure(err)
	}
	if err := store.Save(cfg); err != nil {
		return failure(err)
	}
	a.printf("Connection %s updated", name)
	return nil
}

func (a *app) describeConnectionType(typeName string) error {
	registry := a.opts.Registry
	if typeName == "" {
		a.printf("Available connection types: %s\n\nUse 'modelsql connections describe <type>' to see properties.", strings.Join(registry.Names(), ", "))
		return nil
	}
	t, err := registry.Get(typeName)
	if err != nil {
		return failure(err)
	}
	a.printf("Connection type: %s\n\n%s", t.Name, connections.FormatPropertiesTable(t))
	return nil
}

func (a *app) testConnection(cmd *cobra.Command, name string) error {
	_, cfg, err := a.loadCatalog()
	if err != nil {
		return err
	}
	if _, err := cfg.Get(name); err != nil {
		return failure(fmt.Errorf("A connection named %s could not be found", name))
	}
	resolver := a.resolver(cfg)
	if err := resolver.Test(cmd.Context(), name); err != nil {
		return failure(fmt.Errorf("Connection test unsuccessful: %w", err))
	}
	a.printf("Connection test successful")
	return nil
}

func (a *app) showConnection(name string) error {
	_, cfg, err := a.loadCatalog()
	if err != nil {
		return err
	}
	entry, err := cfg.Get(name)
	if err != nil {
		return failure(fmt.Errorf("Could not find a connection named %s", name))
	}

	t, _ := a.opts.Registry.Lookup(entry.Type())
	masked := map[string]any{"name": name}
	for key, value := range entry {
		if prop, ok := t.Property(key); ok && prop.Type == connections.PropertyPassword && value != "" {
			masked[key] = maskedValue
			continue
		}
		masked[key] = value
	}
	data, err := json.MarshalIndent(masked, "", "    ")
	if err != nil {
		return failure(err)
	}
	a.printf("%s", data)
	return nil
}

func (a *app) deleteConnection(name string) error {
	store, cfg, err := a.loadCatalog()
	if err != nil {
		return err
	}
	if err := cfg.Delete(name); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return failure(fmt.Errorf("Could not find a connection named %s", name))
		}
		return failure(err)
	}
	if err := store.Save(cfg); err != nil {
		return failure(err)
	}
	a.printf("%s removed from connections", name)
	return nil
}
