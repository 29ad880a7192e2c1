package domain

import (
	"encoding/json"
	"time"
)

// Card is a catalog entry describing an importable MCP server.
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
	UpdatedAt   time.Time       `json:"updated_at"`
}
