package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	importPath           = "/v1/mcp/import"
	defaultImportTimeout = 60 * time.Second
	maxImportBody        = 4 << 20
)

// ServerContent is the metadata an importer extracts from a repository.
type ServerContent struct {
	Name        string          `json:"name"`
	Author      string          `json:"author"`
	Tags        []string        `json:"tags"`
	Description string          `json:"description"`
	Overview    string          `json:"overview"`
	Tools       json.RawMessage `json:"tools"`
	DockerImage string          `json:"dockerImage"`
}

// Importer resolves a GitHub repository into card metadata.
type Importer interface {
	Import(ctx context.Context, githubURL string) (*ServerContent, error)
}

// DeepflowImporter calls the Deepflow import service over HTTP.
type DeepflowImporter struct {
	baseURL string
	client  *http.Client
}

// NewDeepflowImporter returns an importer for baseURL. A nil client gets a
// default with a request timeout.
func NewDeepflowImporter(baseURL string, client *http.Client) *DeepflowImporter {
	if client == nil {
		client = &http.Client{Timeout: defaultImportTimeout}
	}
	return &DeepflowImporter{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type importRequest struct {
	GitHub string `json:"github"`
}

type importResponse struct {
	Success          bool           `json:"success"`
	MCPServerContent *ServerContent `json:"mcpServerContent"`
}

// Import posts githubURL to the Deepflow service.
func (d *DeepflowImporter) Import(ctx context.Context, githubURL string) (*ServerContent, error) {
	payload, err := json.Marshal(importRequest{GitHub: githubURL})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+importPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImportBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrImportFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: deepflow returned %s", ErrImportFailed, resp.Status)
	}
	var decoded importResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrImportFailed, err)
	}
	if !decoded.Success || decoded.MCPServerContent == nil {
		return nil, fmt.Errorf("%w: deepflow returned no server content", ErrImportFailed)
	}
	return decoded.MCPServerContent, nil
}
