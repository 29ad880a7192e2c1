package catalog

import (
	"regexp"
	"strings"
)

const unknownRepository = "Unknown Repository"

var (
	shortRepoPattern = regexp.MustCompile(`^[^/]+/[^/]+$`)
	repoNamePattern  = regexp.MustCompile(`github\.com/[^/]+/([^/?#]+)`)
)

// NormalizeGitHubURL lowercases ref, drops a leading "@" and expands the
// owner/repo shorthand to a github.com URL. Full URLs are otherwise kept.
func NormalizeGitHubURL(ref string) string {
	url := strings.ToLower(strings.TrimSpace(ref))
	url = strings.TrimPrefix(url, "@")
	if !strings.Contains(url, "://") && shortRepoPattern.MatchString(url) {
		return "https://github.com/" + url
	}
	return url
}

// ExtractRepoName returns the repository segment of a github.com URL.
func ExtractRepoName(githubURL string) string {
	match := repoNamePattern.FindStringSubmatch(githubURL)
	if match == nil {
		return unknownRepository
	}
	return strings.TrimSuffix(match[1], ".git")
}
