package migrate

import (
	"io/fs"
	"testing"
	"time"

	"github.com/YoubetDao/MCPForge-Backend-sub000/db/migrations"
)

func TestPending(t *testing.T) {
	statuses := []Status{
		{Version: 1, Path: "00001_create_cards.sql", Applied: true, AppliedAt: time.Now()},
		{Version: 2, Path: "00002_add_card_price_configs.sql"},
	}
	pending := Pending(statuses)
	if len(pending) != 1 || pending[0].Version != 2 {
		t.Fatalf("unexpected pending %+v", pending)
	}
	if got := Pending(statuses[:1]); len(got) != 0 {
		t.Fatalf("expected nothing pending, got %+v", got)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	want := []string{"00001_create_cards.sql", "00002_add_card_price_configs.sql"}
	if len(files) != len(want) {
		t.Fatalf("unexpected migrations %v", files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("unexpected migrations %v", files)
		}
	}
}

func TestNewRejectsMissingInputs(t *testing.T) {
	if _, err := New(nil, "postgres://x", "", nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
