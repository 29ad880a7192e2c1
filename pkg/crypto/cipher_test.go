package crypto

import "testing"

func TestSealOpenRoundTrip(t *testing.T) {
	sealed, err := Seal("key", "sk-live-123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("expected sealed prefix, got %q", sealed)
	}
	plain, err := Open("key", sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plain != "sk-live-123" {
		t.Fatalf("unexpected plaintext %q", plain)
	}
}

func TestOpenPassesThroughPlainValues(t *testing.T) {
	plain, err := Open("", "visible")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plain != "visible" {
		t.Fatalf("unexpected value %q", plain)
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	sealed, err := Seal("key", "secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open("other", sealed); err == nil {
		t.Fatal("expected authentication failure")
	}
}

func TestOpenRequiresKey(t *testing.T) {
	if _, err := Open("", "enc:AAAA"); err == nil {
		t.Fatal("expected error without key")
	}
}
