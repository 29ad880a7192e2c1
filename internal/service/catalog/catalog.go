package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/domain"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/repository"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/service/mcpserver"
)

// cardLabel records which card a launched server came from.
const cardLabel = "mcpforge.io/card"

var (
	// ErrInvalidInput marks a malformed import or launch request.
	ErrInvalidInput = errors.New("invalid catalog request")
	// ErrNotFound means no card has the requested id.
	ErrNotFound = errors.New("card not found")
	// ErrAlreadyImported means a card for the repository already exists.
	ErrAlreadyImported = errors.New("card already imported")
	// ErrImportFailed wraps importer failures.
	ErrImportFailed = errors.New("import mcp server")
)

// Launcher creates MCP servers.
type Launcher interface {
	Create(ctx context.Context, in mcpserver.CreateInput) (*domain.MCPServer, error)
}

// Service manages catalog cards.
type Service struct {
	repo     repository.CardRepository
	importer Importer
	launcher Launcher
	logger   *slog.Logger
}

// New constructs a catalog service. importer may be nil, in which case cards
// are created from the repository URL alone.
func New(repo repository.CardRepository, importer Importer, launcher Launcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, importer: importer, launcher: launcher, logger: logger}
}

// List returns a page of cards.
func (s *Service) List(ctx context.Context, limit, offset int) ([]domain.Card, error) {
	return s.repo.ListCards(ctx, limit, offset)
}

// Get returns one card.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Card, error) {
	card, err := s.repo.GetCard(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return nil, err
	}
	return card, nil
}

// Import creates a card for a GitHub repository reference.
func (s *Service) Import(ctx context.Context, ref string) (*domain.Card, error) {
	githubURL := NormalizeGitHubURL(ref)
	if githubURL == "" {
		return nil, fmt.Errorf("%w: github reference is required", ErrInvalidInput)
	}

	card := &domain.Card{GitHubURL: githubURL, Name: ExtractRepoName(githubURL)}
	if s.importer != nil {
		content, err := s.importer.Import(ctx, githubURL)
		if err != nil {
			s.logger.Warn("card import failed", "github", githubURL, "error", err)
			return nil, err
		}
		if content.Name != "" {
			card.Name = content.Name
		}
		card.Author = content.Author
		card.Tags = content.Tags
		card.Description = content.Description
		card.Overview = content.Overview
		card.Tools = content.Tools
		card.DockerImage = content.DockerImage
	}

	if err := s.repo.CreateCard(ctx, card); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyImported, githubURL)
		}
		return nil, err
	}
	s.logger.Info("card imported", "id", card.ID, "github", githubURL, "name", card.Name)
	return card, nil
}

// CreateCardInput describes a card entered directly instead of imported.
type CreateCardInput struct {
	Name        string          `json:"name"`
	GitHubURL   string          `json:"github_url"`
	Description string          `json:"description"`
	Overview    string          `json:"overview"`
	Tools       json.RawMessage `json:"tools"`
	Price       *float64        `json:"price"`
	Configs     json.RawMessage `json:"configs"`
	DockerImage string          `json:"docker_image"`
}

// Create stores a card from caller-supplied fields. The repository URL is
// normalised the same way Import does, so both paths share one uniqueness key.
func (s *Service) Create(ctx context.Context, in CreateCardInput) (*domain.Card, error) {
	githubURL := NormalizeGitHubURL(in.GitHubURL)
	if githubURL == "" {
		return nil, fmt.Errorf("%w: github_url is required", ErrInvalidInput)
	}
	if in.Price != nil && *in.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	tools, err := jsonField("tools", in.Tools)
	if err != nil {
		return nil, err
	}
	configs, err := jsonField("configs", in.Configs)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = ExtractRepoName(githubURL)
	}
	card := &domain.Card{
		Name:        name,
		GitHubURL:   githubURL,
		Description: in.Description,
		Overview:    in.Overview,
		Tools:       tools,
		Price:       in.Price,
		Configs:     configs,
		DockerImage: strings.TrimSpace(in.DockerImage),
	}
	if err := s.repo.CreateCard(ctx, card); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: %s", ErrAlreadyImported, githubURL)
		case errors.Is(err, repository.ErrInvalidArgument):
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}
	s.logger.Info("card created", "id", card.ID, "github", githubURL, "name", card.Name)
	return card, nil
}

// jsonField drops a JSON null and rejects anything that is not an object or
// array.
func jsonField(field string, raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if !json.Valid(trimmed) || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, fmt.Errorf("%w: %s must be a JSON object or array", ErrInvalidInput, field)
	}
	return trimmed, nil
}

// LaunchInput customises a server started from a card.
type LaunchInput struct {
	Name  string            `json:"name"`
	Env   map[string]string `json:"envs"`
	Owner *mcpserver.Owner  `json:"-"`
}

// Launch creates an MCP server from the card's docker image.
func (s *Service) Launch(ctx context.Context, id int64, in LaunchInput) (*domain.MCPServer, error) {
	if s.launcher == nil {
		return nil, errors.New("catalog launcher not configured")
	}
	card, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(card.DockerImage) == "" {
		return nil, fmt.Errorf("%w: card %d has no docker image", ErrInvalidInput, id)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = card.Name
	}
	return s.launcher.Create(ctx, mcpserver.CreateInput{
		Name:   name,
		Image:  card.DockerImage,
		Env:    in.Env,
		Labels: map[string]string{cardLabel: fmt.Sprintf("%d", card.ID)},
		Owner:  in.Owner,
	})
}
