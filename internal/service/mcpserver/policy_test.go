package mcpserver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YoubetDao/MCPForge-Backend-sub000/pkg/crypto"
)

func TestDefaultPolicyMatchesOnImage(t *testing.T) {
	p := DefaultPolicy("1", "2Gi")
	cases := map[string]string{
		"wikipedia-mcp":                         "1Gi",
		"docker.io/mcp/wikipedia-mcp:latest":    "1Gi",
		"ghcr.io/acme/wikipedia-mcp@sha256:abc": "1Gi",
		"docker.io/mcp/fetch:latest":            "2Gi",
		"":                                      "2Gi",
	}
	for image, want := range cases {
		got := p.Resolve(image)
		if got.Memory != want {
			t.Errorf("Resolve(%q).Memory = %q, want %q", image, got.Memory, want)
		}
		if got.CPU != "1" {
			t.Errorf("Resolve(%q).CPU = %q, want 1", image, got.CPU)
		}
	}
}

func TestLoadPolicyDecryptsSealedEnv(t *testing.T) {
	sealed, err := crypto.Seal("policy-key", "sk-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	content := strings.Join([]string{
		"defaults:",
		"  memory: 3Gi",
		"  env:",
		"    LOG_LEVEL: info",
		"images:",
		"  search-mcp:",
		"    memory: 512Mi",
		"    env:",
		"      SEARCH_API_KEY: \"" + sealed + "\"",
		"",
	}, "\n")
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	p, err := LoadPolicy(path, ImageDefaults{CPU: "1", Memory: "2Gi"}, "policy-key")
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	got := p.Resolve("docker.io/acme/search-mcp:v2")
	if got.Memory != "512Mi" || got.CPU != "1" {
		t.Fatalf("unexpected resources %+v", got)
	}
	if got.Env["SEARCH_API_KEY"] != "sk-secret" || got.Env["LOG_LEVEL"] != "info" {
		t.Fatalf("unexpected env %+v", got.Env)
	}
	other := p.Resolve("fetch")
	if other.Memory != "3Gi" || other.Env["SEARCH_API_KEY"] != "" {
		t.Fatalf("policy leaked across images: %+v", other)
	}
}

func TestLoadPolicyRejectsBadQuantity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("images:\n  broken:\n    memory: lots\n"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	if _, err := LoadPolicy(path, ImageDefaults{}, ""); err == nil {
		t.Fatal("expected invalid quantity error")
	}
}

func TestLoadPolicyRequiresKeyForSealedValues(t *testing.T) {
	sealed, err := crypto.Seal("k", "v")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("images:\n  x:\n    env:\n      A: \""+sealed+"\"\n"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	if _, err := LoadPolicy(path, ImageDefaults{}, ""); err == nil {
		t.Fatal("expected error without decryption key")
	}
}
