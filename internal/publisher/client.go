// Package publisher is a client for the Publisher HTTP API, which serves projects,
// packages and connections.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/modelsql/modelsql/internal/observability"
)

const (
	DefaultBaseURL = "http://localhost:4000"
	apiPrefix      = "/api/v0"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient returns a client for opts.BaseURL, or DefaultBaseURL when it is empty.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: strings.TrimRight(firstNonEmpty(opts.BaseURL, DefaultBaseURL), "/"),
		http:    client,
		logger:  logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a response with a status of 400 or above.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Publisher API Error (%d): %s", e.Status, e.Message)
}

// UnreachableError means no response arrived at all.
type UnreachableError struct {
	BaseURL string
	Err     error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("Cannot reach Publisher at %s. Is the server running?", e.BaseURL)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

type Project struct {
	Name        string            `json:"name"`
	Readme      string            `json:"readme,omitempty"`
	Location    string            `json:"location,omitempty"`
	Packages    []json.RawMessage `json:"packages,omitempty"`
	Connections []json.RawMessage `json:"connections,omitempty"`
}

// ProjectUpdate carries the fields of a project PATCH. Empty fields are left alone.
type ProjectUpdate struct {
	Name     string `json:"name"`
	Readme   string `json:"readme,omitempty"`
	Location string `json:"location,omitempty"`
}

type Package struct {
	Name        string `json:"name"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

type ConnectionSummary struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ConnectionSpec is a connection definition as the server stores it.
type ConnectionSpec map[string]any

func (s ConnectionSpec) Name() string {
	name, _ := s["name"].(string)
	return strings.TrimSpace(name)
}

func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (c *Client) GetProject(ctx context.Context, name string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, projectPath(name), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) CreateProject(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/projects", map[string]string{"name": name}, nil)
}

func (c *Client) UpdateProject(ctx context.Context, name string, update ProjectUpdate) error {
	return c.do(ctx, http.MethodPatch, projectPath(name), update, nil)
}

func (c *Client) DeleteProject(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, projectPath(name), nil, nil)
}

func (c *Client) ListPackages(ctx context.Context, project string) ([]Package, error) {
	var packages []Package
	if err := c.do(ctx, http.MethodGet, projectPath(project)+"/packages", nil, &packages); err != nil {
		return nil, err
	}
	return packages, nil
}

func (c *Client) GetPackage(ctx context.Context, project, name string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, packagePath(project, name), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) CreatePackage(ctx context.Context, project string, pkg Package) error {
	return c.do(ctx, http.MethodPost, projectPath(project)+"/packages", pkg, nil)
}

func (c *Client) UpdatePackage(ctx context.Context, project, name string, pkg Package) error {
	return c.do(ctx, http.MethodPatch, packagePath(project, name), pkg, nil)
}

func (c *Client) DeletePackage(ctx context.Context, project, name string) error {
	return c.do(ctx, http.MethodDelete, packagePath(project, name), nil, nil)
}

func (c *Client) ListConnections(ctx context.Context, project string) ([]ConnectionSummary, error) {
	var connections []ConnectionSummary
	if err := c.do(ctx, http.MethodGet, projectPath(project)+"/connections", nil, &connections); err != nil {
		return nil, err
	}
	return connections, nil
}

func (c *Client) GetConnection(ctx context.Context, project, name string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, connectionPath(project, name), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// CreateConnection posts spec under its own name.
func (c *Client) CreateConnection(ctx context.Context, project string, spec ConnectionSpec) error {
	if spec.Name() == "" {
		return fmt.Errorf("connection definition has no name")
	}
	return c.do(ctx, http.MethodPost, connectionPath(project, spec.Name()), spec, nil)
}

func (c *Client) UpdateConnection(ctx context.Context, project, name string, spec ConnectionSpec) error {
	return c.do(ctx, http.MethodPatch, connectionPath(project, name), spec, nil)
}

func (c *Client) DeleteConnection(ctx context.Context, project, name string) error {
	return c.do(ctx, http.MethodDelete, connectionPath(project, name), nil, nil)
}

func projectPath(project string) string {
	return apiPrefix + "/projects/" + url.PathEscape(project)
}

func packagePath(project, name string) string {
	return projectPath(project) + "/packages/" + url.PathEscape(name)
}

func connectionPath(project, name string) string {
	return projectPath(project) + "/connections/" + url.PathEscape(name)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("Request error: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("Request error: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("publisher request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		observability.ObservePublisherRequest(method, "unreachable")
		return &UnreachableError{BaseURL: c.baseURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ObservePublisherRequest(method, "unreachable")
		return &UnreachableError{BaseURL: c.baseURL, Err: err}
	}
	if resp.StatusCode >= 400 {
		observability.ObservePublisherRequest(method, "http_error")
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}
	observability.ObservePublisherRequest(method, "ok")

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// errorMessage prefers the server's {"message": ...} over the status text.
func errorMessage(status int, raw []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && strings.TrimSpace(payload.Message) != "" {
		return payload.Message
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return strings.TrimSpace(string(raw))
}

// PrettyJSON indents raw with two spaces. Raw that is not JSON is returned as is.
func PrettyJSON(raw []byte) string {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return strings.TrimSpace(string(raw))
	}
	formatted, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return strings.TrimSpace(string(raw))
	}
	return string(formatted)
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}
