package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/modelsql/modelsql/internal/config"
	"github.com/modelsql/modelsql/internal/observability"
	"github.com/modelsql/modelsql/internal/publisher"
)

const (
	nounProject    = "project"
	nounPackage    = "package"
	nounConnection = "connection"
)

type PublisherOptions struct {
	Stdout io.Writer
	Stderr io.Writer
	Lookup config.LookupFunc
	// Fs reads connection definition files. Defaults to the OS filesystem.
	Fs         afero.Fs
	HTTPClient *http.Client
	Color      bool
}

type pubApp struct {
	opts   PublisherOptions
	url    string
	debug  bool
	client *publisher.Client
	logger *slog.Logger
	ok     *color.Color
	warn   *color.Color
	dim    *color.Color
}

type resourceFlags struct {
	project     string
	pkg         string
	location    string
	description string
	readme      string
	file        string
	json        string
	name        string
}

// RunPublisher executes a modelsql-pub command line and returns the exit status.
func RunPublisher(ctx context.Context, args []string, opts PublisherOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if !opts.Color {
		pterm.DisableColor()
	}

	a := &pubApp{
		opts:   opts,
		logger: slog.New(slog.DiscardHandler),
		ok:     color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		dim:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{a.ok, a.warn, a.dim} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	root := newPublisherRootCommand(a)
	root.SetArgs(args)
	return exitCode(root.ExecuteContext(ctx), opts.Stderr, opts.Color)
}

func newPublisherRootCommand(a *pubApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "modelsql-pub",
		Short:         "Manage projects, packages and connections on a Publisher server",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	cmd.SetOut(a.opts.Stdout)
	cmd.SetErr(a.opts.Stderr)
	cmd.PersistentFlags().StringVar(&a.url, "url", "", "Publisher server URL (default $MODELSQL_PUBLISHER_URL or "+publisher.DefaultBaseURL+")")
	cmd.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "print debug-level logs to stderr")

	cmd.AddCommand(
		a.newListCommand(),
		a.newGetCommand(),
		a.newCreateCommand(),
		a.newUpdateCommand(),
		a.newDeleteCommand(),
	)
	return cmd
}

func (a *pubApp) setup() error {
	cfg, err := config.Load("modelsql-pub", a.opts.Lookup)
	if err != nil {
		return failure(err)
	}
	if a.debug {
		cfg.Observability.LogLevel = slog.LevelDebug
	}
	a.logger = observability.NewLogger(cfg, a.opts.Stderr)

	baseURL := strings.TrimSpace(a.url)
	if baseURL == "" {
		baseURL = cfg.Publisher.URL
	}
	a.client = publisher.NewClient(publisher.Options{
		BaseURL:    baseURL,
		Timeout:    cfg.Publisher.Timeout,
		HTTPClient: a.opts.HTTPClient,
		Logger:     a.logger,
	})
	return nil
}

func (a *pubApp) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.opts.Stdout, format+"\n", args...)
}

func (a *pubApp) done(format string, args ...any) {
	_, _ = a.ok.Fprintf(a.opts.Stdout, "✓ "+format+"\n", args...)
}

func unknownResource(noun string) error {
	return failure(fmt.Errorf("Unknown resource: %s. Valid types: %s, %s, %s", noun, nounProject, nounPackage, nounConnection))
}

func requireFlag(value, name string) error {
	if strings.TrimSpace(value) == "" {
		return failure(fmt.Errorf("--%s is required", name))
	}
	return nil
}

func requireName(name, what string) error {
	if strings.TrimSpace(name) == "" {
		return failure(fmt.Errorf("%s name is required", what))
	}
	return nil
}

// packageName prefers --package and falls back to the positional name.
func packageName(flags resourceFlags, name string) string {
	if strings.TrimSpace(flags.pkg) != "" {
		return flags.pkg
	}
	return name
}

func optionalName(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return ""
}

func (a *pubApp) newListCommand() *cobra.Command {
	var flags resourceFlags
	cmd := &cobra.Command{
		Use:   "list <project|package|connection>",
		Short: "List resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.list(cmd.Context(), args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.project, "project", "", "project name (required for package and connection)")
	return cmd
}

func (a *pubApp) list(ctx context.Context, noun string, flags resourceFlags) error {
	switch noun {
	case nounProject:
		_, _ = a.dim.Fprintf(a.opts.Stderr, "Fetching projects from %s...\n", a.client.BaseURL())
		projects, err := a.client.ListProjects(ctx)
		if err != nil {
			return failure(err)
		}
		if len(projects) == 0 {
			a.printf("No projects found.")
			return nil
		}
		rows := [][]string{{"Name", "Packages", "Connections"}}
		for _, p := range projects {
			rows = append(rows, []string{p.Name, strconv.Itoa(len(p.Packages)), strconv.Itoa(len(p.Connections))})
		}
		if err := a.table(rows); err != nil {
			return err
		}
		a.printf("\nTotal: %d project(s)", len(projects))
	case nounPackage:
		if err := requireFlag(flags.project, "project"); err != nil {
			return err
		}
		packages, err := a.client.ListPackages(ctx, flags.project)
		if err != nil {
			return failure(err)
		}
		if len(packages) == 0 {
			a.printf("No packages in project: %s", flags.project)
			return nil
		}
		rows := [][]string{{"Name", "Location"}}
		for _, p := range packages {
			rows = append(rows, []string{p.Name, p.Location})
		}
		return a.table(rows)
	case nounConnection:
		if err := requireFlag(flags.project, "project"); err != nil {
			return err
		}
		connections, err := a.client.ListConnections(ctx, flags.project)
		if err != nil {
			return failure(err)
		}
		if len(connections) == 0 {
			a.printf("No connections in project: %s", flags.project)
			return nil
		}
		rows := [][]string{{"Name", "Type"}}
		for _, c := range connections {
			rows = append(rows, []string{c.Name, c.Type})
		}
		return a.table(rows)
	default:
		return unknownResource(noun)
	}
	return nil
}

func (a *pubApp) table(rows [][]string) error {
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return failure(err)
	}
	a.printf("%s", strings.TrimRight(rendered, "\n"))
	return nil
}

func (a *pubApp) newGetCommand() *cobra.Command {
	var flags resourceFlags
	cmd := &cobra.Command{
		Use:   "get <project|package|connection> [name]",
		Short: "Show resource details",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.get(cmd.Context(), args[0], optionalName(args), flags)
			if err != nil {
				return err
			}
			a.printf("%s", publisher.PrettyJSON(raw))
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.project, "project", "", "project name (required for package and connection)")
	cmd.Flags().StringVar(&flags.pkg, "package", "", "package name")
	return cmd
}

func (a *pubApp) get(ctx context.Context, noun, name string, flags resourceFlags) (json.RawMessage, error) {
	var (
		raw json.RawMessage
		err error
	)
	switch noun {
	case nounProject:
		if err := requireName(name, "Project"); err != nil {
			return nil, err
		}
		raw, err = a.client.GetProject(ctx, name)
	case nounPackage:
		if err := requireFlag(flags.project, "project"); err != nil {
			return nil, err
		}
		pkg := packageName(flags, name)
		if err := requireFlag(pkg, "package"); err != nil {
			return nil, err
		}
		raw, err = a.client.GetPackage(ctx, flags.project, pkg)
	case nounConnection:
		if err := requireFlag(flags.project, "project"); err != nil {
			return nil, err
		}
		if err := requireName(name, "Connection"); err != nil {
			return nil, err
		}
		raw, err = a.client.GetConnection(ctx, flags.project, name)
	default:
		return nil, unknownResource(noun)
	}
	if err != nil {
		return nil, failure(err)
	}
	return raw, nil
}

func (a *pubApp) newCreateCommand() *cobra.Command {
	var flags resourceFlags
	cmd := &cobra.Command{
		Use:   "create <project|package|connection> [name]",
		Short: "Create a resource",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.create(cmd.Context(), args[0], optionalName(args), flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.project, "project", "", "project name")
	f.StringVar(&flags.pkg, "package", "", "package name")
	f.StringVar(&flags.location, "location", "", "package location")
	f.StringVar(&flags.description, "description", "", "package description")
	f.StringVar(&flags.file, "file", "", "JSON file holding one connection or {\"connections\": [...]}")
	f.StringVar(&flags.json, "json", "", "connection definition as a JSON string")
	f.StringVar(&flags.name, "name", "", "connection to pick from --file")
	return cmd
}

func (a *pubApp) create(ctx context.Context, noun, name string, flags resourceFlags) error {
	switch noun {
	case nounProject:
		if err := requireName(name, "Project"); err != nil {
			return err
		}
		if err := a.client.CreateProject(ctx, name); err != nil {
			return failure(err)
		}
		a.done("Created project: %s", name)
	case nounPackage:
		if strings.TrimSpace(flags.project) == "" || strings.TrimSpace(flags.pkg) == "" || strings.TrimSpace(flags.location) == "" {
			return failure(fmt.Errorf("--project, --package, and --location required"))
		}
		pkg := publisher.Package{Name: flags.pkg, Location: flags.location, Description: flags.description}
		if err := a.client.CreatePackage(ctx, flags.project, pkg); err != nil {
			return failure(err)
		}
		a.done("Created package: %s", flags.pkg)
	case nounConnection:
		if err := requireFlag(flags.project, "project"); err != nil {
			return err
		}
		specs, err := a.connectionSpecs(flags, flags.name)
		if err != nil {
			return failure(err)
		}
		for _, spec := range specs {
			if err := a.client.CreateConnection(ctx, flags.project, spec); err != nil {
				return failure(err)
			}
			a.done("Created connection: %s", spec.Name())
		}
	default:
		return unknownResource(noun)
	}
	return nil
}

func (a *pubApp) newUpdateCommand() *cobra.Command {
	var flags resourceFlags
	cmd := &cobra.Command{
		Use:   "update <project|package|connection> [name]",
		Short: "Update a resource",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.update(cmd.Context(), args[0], optionalName(args), flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.project, "project", "", "project name")
	f.StringVar(&flags.pkg, "package", "", "package name")
	f.StringVar(&flags.readme, "readme", "", "project readme")
	f.StringVar(&flags.location, "location", "", "location")
	f.StringVar(&flags.description, "description", "", "package description")
	f.StringVar(&flags.file, "file", "", "JSON file holding the connection")
	f.StringVar(&flags.json, "json", "", "connection definition as a JSON string")
	return cmd
}

func (a *pubApp) update(ctx context.Context, noun, name string, flags resourceFlags) error {
	switch noun {
	case nounProject:
		if err := requireName(name, "Project"); err != nil {
			return err
		}
		if flags.readme == "" && flags.location == "" {
			_, _ = a.warn.Fprintln(a.opts.Stdout, "No updates specified")
			return nil
		}
		update := publisher.ProjectUpdate{Name: name, Readme: flags.readme, Location: flags.location}
		if err := a.client.UpdateProject(ctx, name, update); err != nil {
			return failure(err)
		}
		a.done("Updated project: %s", name)
	case nounPackage:
		if err := requireFlag(flags.project, "project"); err != nil {
			return err
		}
		name = packageName(flags, name)
		if err := requireFlag(name, "package"); err != nil {
			return err
		}
		pkg := publisher.Package{Name: name, Location: flags.location, Description: flags.description}
		if err := a.client.UpdatePackage(ctx, flags.project, name, pkg); err != nil {
			return failure(err)
		}
		a.done("Updated package: %s", name)
	case nounConnection:
		if err := requireFlag(flags.project, "project"); err != nil {
			return err
		}
		if err := requireName(name, "Connection"); err != nil {
			return err
		}
		specs, err := a.connectionSpecs(flags, name)
		if err != nil {
			return failure(err)
		}
		if err := a.client.UpdateConnection(ctx, flags.project, name, specs[0]); err != nil {
			return failure(err)
		}
		a.done("Updated connection: %s", name)
	default:
		return unknownResource(noun)
	}
	return nil
}

func (a *pubApp) newDeleteCommand() *cobra.Command {
	var flags resourceFlags
	cmd := &cobra.Command{
		Use:   "delete <project|package|connection> [name]",
		Short: "Delete a resource",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.delete(cmd.Context(), args[0], optionalName(args), flags)
		},
	}
	cmd.Flags().StringVar(&flags.project, "project", "", "project name (required for package and connection)")
	cmd.Flags().StringVar(&flags.pkg, "package", "", "package name")
	return cmd
}

func (a *pubApp) delete(ctx context.Context, noun, name string, flags resourceFlags) error {
	switch noun {
	case nounProject:
		if err := requireName(name, "Project"); err != nil {
			return err
		}
		if err := a.client.DeleteProject(ctx, name); err != nil {
			return failure(err)
		}
		a.done("Deleted project: %s", name)
	case nounPackage:
		if err := requireFlag(flags.project, "project"); err != nil {
			return err
		}
		name = packageName(flags, name)
		if err := requireFlag(name, "package"); err != nil {
			return err
		}
		if err := a.client.DeletePackage(ctx, flags.project, name); err != nil {
			return failure(err)
		}
		a.done("Deleted package: %s", name)
	case nounConnection:
		if err := requireFlag(flags.project, "project"); err != nil {
			return err
		}
		if err := requireName(name, "Connection"); err != nil {
			return err
		}
		if err := a.client.DeleteConnection(ctx, flags.project, name); err != nil {
			return failure(err)
		}
		a.done("Deleted connection: %s", name)
	default:
		return unknownResource(noun)
	}
	return nil
}

// connectionSpecs reads connection definitions from --file or --json. A file may hold
// one definition or {"connections": [...]}; with pick set only that entry is returned,
// without it every entry is.
func (a *pubApp) connectionSpecs(flags resourceFlags, pick string) ([]publisher.ConnectionSpec, error) {
	var raw []byte
	switch {
	case flags.file != "":
		data, err := afero.ReadFile(a.opts.Fs, flags.file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", flags.file, err)
		}
		raw = data
	case flags.json != "":
		raw = []byte(flags.json)
	default:
		return nil, fmt.Errorf("Either --file or --json is required")
	}

	var bundle struct {
		Connections []publisher.ConnectionSpec `json:"connections"`
	}
	if err := json.Unmarshal(raw, &bundle); err == nil && bundle.Connections != nil {
		if pick == "" {
			return bundle.Connections, nil
		}
		for _, spec := range bundle.Connections {
			if spec.Name() == pick {
				return []publisher.ConnectionSpec{spec}, nil
			}
		}
		if flags.file != "" && flags.name == "" {
			// update falls back to the whole file when the named entry is absent
			var whole publisher.ConnectionSpec
			if err := json.Unmarshal(raw, &whole); err == nil {
				return []publisher.ConnectionSpec{whole}, nil
			}
		}
		return nil, fmt.Errorf("Connection '%s' not found in file", pick)
	}

	var spec publisher.ConnectionSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("invalid connection JSON: %w", err)
	}
	return []publisher.ConnectionSpec{spec}, nil
}
