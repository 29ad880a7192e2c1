package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is used when no API address is configured.
const DefaultBaseURL = "http://localhost:5190"

// Client provides typed access to the MCPForge API for interactive tools.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string

	body []byte
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return APIError{Status: resp.StatusCode, Message: extractError(data), body: data}
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// ObjectMeta is the subset of resource metadata the CLI displays.
type ObjectMeta struct {
	Name              string            `json:"name"`
	Namespace         string            `json:"namespace,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
	CreationTimestamp time.Time         `json:"creationTimestamp"`
}

// ServerSpec mirrors the desired state of an MCP server.
type ServerSpec struct {
	Image     string `json:"image"`
	Transport string `json:"transport,omitempty"`
	Port      int32  `json:"port,omitempty"`
}

// ServerStatus mirrors the observed state of an MCP server.
type ServerStatus struct {
	Phase   string `json:"phase,omitempty"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

// MCPServer is an MCP server resource as returned by the API.
type MCPServer struct {
	Metadata ObjectMeta   `json:"metadata"`
	Spec     ServerSpec   `json:"spec"`
	Status   ServerStatus `json:"status"`
}

// MCPServerList wraps the list endpoint payload.
type MCPServerList struct {
	Items []MCPServer `json:"items"`
}

// CreateServerInput describes a new MCP server.
type CreateServerInput struct {
	Name        string            `json:"name,omitempty"`
	Image       string            `json:"image"`
	Env         map[string]string `json:"envs,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// CreateResult carries the created server and, when waited on, its URL.
type CreateResult struct {
	Server MCPServer
	URL    string
}

// Card is a catalog entry.
type Card struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Author      string          `json:"author,omitempty"`
	GitHubURL   string          `json:"github_url"`
	Description string          `json:"description,omitempty"`
	Overview    string          `json:"overview,omitempty"`
	Tools       json.RawMessage `json:"tools,omitempty"`
	Price       *float64        `json:"price,omitempty"`
	Configs     json.RawMessage `json:"configs,omitempty"`
	DockerImage string          `json:"docker_image,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CreateCardInput is the body of a direct card creation.
type CreateCardInput struct {
	Name        string          `json:"name,omitempty"`
	GitHubURL   string          `json:"github_url"`
	Description string          `json:"description,omitempty"`
	Overview    string          `json:"overview,omitempty"`
	Tools       json.RawMessage `json:"tools,omitempty"`
	Price       *float64        `json:"price,omitempty"`
	Configs     json.RawMessage `json:"configs,omitempty"`
	DockerImage string          `json:"docker_image,omitempty"`
}

// LaunchInput overrides defaults when starting a server from a card.
type LaunchInput struct {
	Name string            `json:"name,omitempty"`
	Env  map[string]string `json:"envs,omitempty"`
}

// ComponentHealth reports a single dependency probe.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health is the /healthz payload.
type Health struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

// ListServers returns the caller's servers narrowed by label filters.
// all requests every server and requires an admin token.
func (c *Client) ListServers(ctx context.Context, filters map[string]string, all bool) ([]MCPServer, error) {
	query := url.Values{}
	for key, value := range filters {
		query.Set(key, value)
	}
	if all {
		query.Set("scope", "all")
	}
	path := "/mcpservers"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp MCPServerList
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// GetServer fetches a single server by name.
func (c *Client) GetServer(ctx context.Context, name string) (MCPServer, error) {
	var server MCPServer
	err := c.do(ctx, http.MethodGet, "/mcpservers/"+url.PathEscape(name), nil, &server)
	return server, err
}

// CreateServer submits a new server. With wait the call blocks until the
// server is ready and the result includes its URL.
func (c *Client) CreateServer(ctx context.Context, input CreateServerInput, wait bool) (CreateResult, error) {
	if !wait {
		var server MCPServer
		if err := c.do(ctx, http.MethodPost, "/mcpservers", input, &server); err != nil {
			return CreateResult{}, err
		}
		return CreateResult{Server: server}, nil
	}
	var resp struct {
		Server MCPServer `json:"server"`
		URL    string    `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/mcpservers?wait=true", input, &resp); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Server: resp.Server, URL: resp.URL}, nil
}

// DeleteServer removes a server by name.
func (c *Client) DeleteServer(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/mcpservers/"+url.PathEscape(name), nil, nil)
}

// WaitServer blocks until the named server reports ready and returns its URL.
func (c *Client) WaitServer(ctx context.Context, name string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/mcpservers/"+url.PathEscape(name)+"/wait", nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// ListCards pages through the catalog.
func (c *Client) ListCards(ctx context.Context, limit, offset int) ([]Card, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	path := "/cards"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var cards []Card
	if err := c.do(ctx, http.MethodGet, path, nil, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// GetCard fetches a catalog entry by id.
func (c *Client) GetCard(ctx context.Context, id int64) (Card, error) {
	var card Card
	err := c.do(ctx, http.MethodGet, "/cards/"+strconv.FormatInt(id, 10), nil, &card)
	return card, err
}

// ImportCard imports a GitHub repository into the catalog.
func (c *Client) ImportCard(ctx context.Context, githubURL string) (Card, error) {
	var card Card
	body := map[string]string{"github": githubURL}
	err := c.do(ctx, http.MethodPost, "/cards/import", body, &card)
	return card, err
}

// CreateCard adds a catalog entry from explicit fields.
func (c *Client) CreateCard(ctx context.Context, input CreateCardInput) (Card, error) {
	var card Card
	err := c.do(ctx, http.MethodPost, "/cards", input, &card)
	return card, err
}

// LaunchCard starts a server from a catalog entry.
func (c *Client) LaunchCard(ctx context.Context, id int64, input LaunchInput, wait bool) (CreateResult, error) {
	path := "/cards/" + strconv.FormatInt(id, 10) + "/launch"
	if !wait {
		var server MCPServer
		if err := c.do(ctx, http.MethodPost, path, input, &server); err != nil {
			return CreateResult{}, err
		}
		return CreateResult{Server: server}, nil
	}
	var resp struct {
		Server MCPServer `json:"server"`
		URL    string    `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, path+"?wait=true", input, &resp); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Server: resp.Server, URL: resp.URL}, nil
}

// Health reports the API's component health. A degraded API answers 503
// with the same payload; it is decoded and returned without an error.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &health)
	var apiErr APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable && apiErr.body != nil {
		if jsonErr := json.Unmarshal(apiErr.body, &health); jsonErr == nil && health.Status != "" {
			return health, nil
		}
	}
	return health, err
}
