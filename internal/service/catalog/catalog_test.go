package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/domain"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/repository"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/service/mcpserver"
)

type memoryCards struct {
	mu     sync.Mutex
	nextID int64
	cards  []domain.Card
}

func (m *memoryCards) CreateCard(_ context.Context, card *domain.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.cards {
		if existing.GitHubURL == card.GitHubURL {
			return repository.ErrConflict
		}
	}
	m.nextID++
	card.ID = m.nextID
	card.CreatedAt = time.Now()
	card.UpdatedAt = card.CreatedAt
	m.cards = append(m.cards, *card)
	return nil
}

func (m *memoryCards) GetCard(_ context.Context, id int64) (*domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cards {
		if c.ID == id {
			card := c
			return &card, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryCards) ListCards(context.Context, int, int) ([]domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Card(nil), m.cards...), nil
}

type fakeImporter struct {
	content *ServerContent
	err     error
	got     string
}

func (f *fakeImporter) Import(_ context.Context, githubURL string) (*ServerContent, error) {
	f.got = githubURL
	return f.content, f.err
}

type fakeLauncher struct {
	got mcpserver.CreateInput
}

func (f *fakeLauncher) Create(_ context.Context, in mcpserver.CreateInput) (*domain.MCPServer, error) {
	f.got = in
	server := &domain.MCPServer{Spec: domain.MCPServerSpec{Image: in.Image}}
	server.Name = in.Name
	return server, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeGitHubURL(t *testing.T) {
	cases := map[string]string{
		"Owner/Repo":                     "https://github.com/owner/repo",
		"@owner/repo":                    "https://github.com/owner/repo",
		"  owner/repo ":                  "https://github.com/owner/repo",
		"https://GitHub.com/Owner/Repo":  "https://github.com/owner/repo",
		"@https://github.com/owner/repo": "https://github.com/owner/repo",
		"github.com/owner/repo":          "github.com/owner/repo",
		"":                               "",
	}
	for in, want := range cases {
		if got := NormalizeGitHubURL(in); got != want {
			t.Errorf("NormalizeGitHubURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractRepoName(t *testing.T) {
	cases := map[string]string{
		"https://github.com/owner/repo":        "repo",
		"https://github.com/owner/repo.git":    "repo",
		"https://github.com/owner/repo/tree/x": "repo",
		"https://gitlab.com/owner/repo":        unknownRepository,
		"not a url":                            unknownRepository,
	}
	for in, want := range cases {
		if got := ExtractRepoName(in); got != want {
			t.Errorf("ExtractRepoName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestImportWithoutImporterDerivesName(t *testing.T) {
	repo := &memoryCards{}
	svc := New(repo, nil, nil, discardLogger())

	card, err := svc.Import(context.Background(), "@Acme/Wiki-MCP")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if card.ID == 0 || card.Name != "wiki-mcp" || card.GitHubURL != "https://github.com/acme/wiki-mcp" {
		t.Fatalf("unexpected card %+v", card)
	}

	if _, err := svc.Import(context.Background(), "acme/wiki-mcp"); !errors.Is(err, ErrAlreadyImported) {
		t.Fatalf("expected already imported, got %v", err)
	}
	if _, err := svc.Import(context.Background(), "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestImportUsesImporterContent(t *testing.T) {
	importer := &fakeImporter{content: &ServerContent{
		Name:        "Wikipedia",
		Author:      "acme",
		Tags:        []string{"search"},
		Tools:       json.RawMessage(`[{"name":"search"}]`),
		DockerImage: "docker.io/acme/wikipedia-mcp:1.0",
	}}
	svc := New(&memoryCards{}, importer, nil, discardLogger())

	card, err := svc.Import(context.Background(), "acme/wikipedia")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if importer.got != "https://github.com/acme/wikipedia" {
		t.Fatalf("importer received %q", importer.got)
	}
	if card.Name != "Wikipedia" || card.DockerImage != "docker.io/acme/wikipedia-mcp:1.0" || string(card.Tools) != `[{"name":"search"}]` {
		t.Fatalf("unexpected card %+v", card)
	}
}

func TestImportPropagatesImporterFailure(t *testing.T) {
	repo := &memoryCards{}
	svc := New(repo, &fakeImporter{err: ErrImportFailed}, nil, discardLogger())
	if _, err := svc.Import(context.Background(), "acme/x"); !errors.Is(err, ErrImportFailed) {
		t.Fatalf("expected import failure, got %v", err)
	}
	if len(repo.cards) != 0 {
		t.Fatal("expected no card persisted")
	}
}

func TestCreateStoresCallerFields(t *testing.T) {
	repo := &memoryCards{}
	launcher := &fakeLauncher{}
	svc := New(repo, nil, launcher, discardLogger())

	price := 4.5
	card, err := svc.Create(context.Background(), CreateCardInput{
		Name:        "Wikipedia",
		GitHubURL:   "@https://GitHub.com/Acme/Wikipedia",
		Description: "search pages",
		Tools:       json.RawMessage(` [{"name":"search"}] `),
		Price:       &price,
		Configs:     json.RawMessage(`{"LANG":"en"}`),
		DockerImage: " wikipedia-mcp ",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if card.ID == 0 || card.GitHubURL != "https://github.com/acme/wikipedia" || card.DockerImage != "wikipedia-mcp" {
		t.Fatalf("unexpected card %+v", card)
	}
	if card.Price == nil || *card.Price != 4.5 || string(card.Configs) != `{"LANG":"en"}` || string(card.Tools) != `[{"name":"search"}]` {
		t.Fatalf("unexpected card payload %+v", card)
	}

	if _, err := svc.Import(context.Background(), "acme/wikipedia"); !errors.Is(err, ErrAlreadyImported) {
		t.Fatalf("import after create should conflict, got %v", err)
	}
	if _, err := svc.Launch(context.Background(), card.ID, LaunchInput{}); err != nil {
		t.Fatalf("launch created card: %v", err)
	}
	if launcher.got.Image != "wikipedia-mcp" || launcher.got.Name != "Wikipedia" {
		t.Fatalf("unexpected create input %+v", launcher.got)
	}
}

func TestCreateDerivesNameAndRejectsBadInput(t *testing.T) {
	repo := &memoryCards{}
	svc := New(repo, nil, nil, discardLogger())

	card, err := svc.Create(context.Background(), CreateCardInput{GitHubURL: "acme/notes-mcp", Configs: json.RawMessage(`null`)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if card.Name != "notes-mcp" || card.Configs != nil || card.Price != nil {
		t.Fatalf("unexpected card %+v", card)
	}
	if _, err := svc.Create(context.Background(), CreateCardInput{GitHubURL: "https://github.com/Acme/Notes-MCP"}); !errors.Is(err, ErrAlreadyImported) {
		t.Fatalf("expected already imported, got %v", err)
	}

	negative := -1.0
	bad := []CreateCardInput{
		{Name: "x"},
		{GitHubURL: "acme/a", Price: &negative},
		{GitHubURL: "acme/b", Configs: json.RawMessage(`"flat"`)},
		{GitHubURL: "acme/c", Tools: json.RawMessage(`{broken`)},
	}
	for _, in := range bad {
		if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Create(%+v) = %v, want invalid input", in, err)
		}
	}
	if len(repo.cards) != 1 {
		t.Fatalf("expected one stored card, got %d", len(repo.cards))
	}
}

func TestGetMissingCard(t *testing.T) {
	svc := New(&memoryCards{}, nil, nil, discardLogger())
	if _, err := svc.Get(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLaunchCreatesServerFromCard(t *testing.T) {
	repo := &memoryCards{}
	launcher := &fakeLauncher{}
	svc := New(repo, &fakeImporter{content: &ServerContent{Name: "Wikipedia", DockerImage: "wikipedia-mcp"}}, launcher, discardLogger())
	card, err := svc.Import(context.Background(), "acme/wikipedia")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	owner := &mcpserver.Owner{ID: "42", Username: "alice"}
	server, err := svc.Launch(context.Background(), card.ID, LaunchInput{Env: map[string]string{"LANG": "en"}, Owner: owner})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if server.Spec.Image != "wikipedia-mcp" {
		t.Fatalf("unexpected image %q", server.Spec.Image)
	}
	got := launcher.got
	if got.Name != "Wikipedia" || got.Owner != owner || got.Env["LANG"] != "en" || got.Labels[cardLabel] != "1" {
		t.Fatalf("unexpected create input %+v", got)
	}
}

func TestLaunchRequiresDockerImage(t *testing.T) {
	repo := &memoryCards{}
	svc := New(repo, nil, &fakeLauncher{}, discardLogger())
	card, err := svc.Import(context.Background(), "acme/bare")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := svc.Launch(context.Background(), card.ID, LaunchInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDeepflowImporter(t *testing.T) {
	var received importRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != importPath {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"mcpServerContent":{"name":"Wiki","author":"acme","tags":["a"],"tools":{"search":{}},"dockerImage":"acme/wiki"}}`))
	}))
	defer srv.Close()

	content, err := NewDeepflowImporter(srv.URL+"/", srv.Client()).Import(context.Background(), "https://github.com/acme/wiki")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if received.GitHub != "https://github.com/acme/wiki" {
		t.Fatalf("unexpected request body %+v", received)
	}
	if content.Name != "Wiki" || content.DockerImage != "acme/wiki" || len(content.Tags) != 1 {
		t.Fatalf("unexpected content %+v", content)
	}
}

func TestDeepflowImporterFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"unsuccessful": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success":false}`))
		},
		"garbage": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()
			_, err := NewDeepflowImporter(srv.URL, srv.Client()).Import(context.Background(), "https://github.com/a/b")
			if !errors.Is(err, ErrImportFailed) {
				t.Fatalf("expected import failure, got %v", err)
			}
		})
	}
}
