package mcpserver

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxNameLength is the DNS-1123 label limit applied to resource names.
const MaxNameLength = 63

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9-]`)
	repeatedHyphens  = regexp.MustCompile(`-{2,}`)
)

// SanitizeName lowercases value, replaces anything outside [a-z0-9-] with a
// hyphen, collapses hyphen runs, and caps the length.
func SanitizeName(value string) string {
	s := strings.ToLower(strings.TrimSpace(value))
	s = invalidNameChars.ReplaceAllString(s, "-")
	s = repeatedHyphens.ReplaceAllString(s, "-")
	if len(s) > MaxNameLength {
		s = s[:MaxNameLength]
	}
	return strings.Trim(s, "-")
}

// DeriveName builds the per-owner resource name "<requested>-<owner>-<suffix>".
// The requested part is shortened first so the owner and suffix survive the
// length cap.
func DeriveName(requested, ownerID string, suffix int) string {
	if strings.TrimSpace(ownerID) == "" {
		return SanitizeName(requested)
	}
	tail := SanitizeName(ownerID + "-" + strconv.Itoa(suffix))
	head := SanitizeName(requested)
	if room := MaxNameLength - len(tail) - 1; len(head) > room {
		if room <= 0 {
			return SanitizeName(head + "-" + tail)
		}
		head = strings.TrimRight(head[:room], "-")
	}
	if head == "" {
		return tail
	}
	return SanitizeName(head + "-" + tail)
}
