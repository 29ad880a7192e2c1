package mcpserver

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
)

var validName = regexp.MustCompile(`^[a-z0-9-]*$`)

func TestDeriveNameExamples(t *testing.T) {
	cases := []struct {
		requested string
		owner     string
		suffix    int
		want      string
	}{
		{"wiki", "42", 7, "wiki-42-7"},
		{"My Cool_Server!!", "u@1", 123, "my-cool-server-u-1-123"},
		{"--edge--", "7", 9999, "edge-7-9999"},
		{"wiki", "", 5, "wiki"},
		{"***", "42", 1, "42-1"},
	}
	for _, tc := range cases {
		if got := DeriveName(tc.requested, tc.owner, tc.suffix); got != tc.want {
			t.Errorf("DeriveName(%q, %q, %d) = %q, want %q", tc.requested, tc.owner, tc.suffix, got, tc.want)
		}
	}
}

func TestDeriveNameKeepsSuffixWhenTruncating(t *testing.T) {
	got := DeriveName(strings.Repeat("a", 80), "42", 1234)
	if len(got) != MaxNameLength {
		t.Fatalf("expected %d characters, got %d (%q)", MaxNameLength, len(got), got)
	}
	if !strings.HasSuffix(got, "-42-1234") {
		t.Fatalf("expected owner and suffix to survive truncation, got %q", got)
	}
}

func TestDeriveNameCharacterSetProperty(t *testing.T) {
	requested := []string{
		"wiki", "Wikipedia MCP", "ÜBER/server", "a--b---c", strings.Repeat("x-", 50),
		"  spaced  out  ", "UPPER_lower.123", "emoji🚀name", "-", "",
	}
	owners := []string{"42", "user@example.com", "0xAbCdEf0123456789", strings.Repeat("9", 70), "a b"}
	for _, r := range requested {
		for _, o := range owners {
			for _, suffix := range []int{0, 7, 42, 999, 9999} {
				got := DeriveName(r, o, suffix)
				label := fmt.Sprintf("DeriveName(%q, %q, %d) = %q", r, o, suffix, got)
				if !validName.MatchString(got) {
					t.Fatalf("%s: invalid characters", label)
				}
				if strings.Contains(got, "--") {
					t.Fatalf("%s: consecutive hyphens", label)
				}
				if len(got) > MaxNameLength {
					t.Fatalf("%s: longer than %d", label, MaxNameLength)
				}
			}
		}
	}
}

func TestSanitizeName(t *testing.T) {
	if got := SanitizeName("Hello, World!"); got != "hello-world" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
	if got := SanitizeName(strings.Repeat("b", 100)); len(got) != MaxNameLength {
		t.Fatalf("expected truncation to %d, got %d", MaxNameLength, len(got))
	}
}
