// Package updater checks GitHub releases for a newer webpilot build.
package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultRepo is the repository whose releases are checked.
	DefaultRepo = "standardbeagle/webpilot"

	defaultAPIBase = "https://api.github.com"
)

// Release is the subset of a GitHub release we care about.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
	Body        string    `json:"body"`
}

// Version extracts the bare version from the release tag, accepting
// "v0.6.5", "V0.6.5", or "0.6.5".
func (r *Release) Version() string {
	if strings.HasPrefix(strings.ToLower(r.TagName), "v") {
		return r.TagName[1:]
	}
	return r.TagName
}

// IsNewer reports whether the release is newer than currentVersion.
func (r *Release) IsNewer(currentVersion string) (bool, error) {
	relMajor, relMinor, relPatch, err := parseVersion(r.Version())
	if err != nil {
		return false, fmt.Errorf("parse release version %s: %w", r.Version(), err)
	}
	curMajor, curMinor, curPatch, err := parseVersion(currentVersion)
	if err != nil {
		return false, fmt.Errorf("parse current version %s: %w", currentVersion, err)
	}

	if relMajor != curMajor {
		return relMajor > curMajor, nil
	}
	if relMinor != curMinor {
		return relMinor > curMinor, nil
	}
	return relPatch > curPatch, nil
}

// Result describes the outcome of an update check.
type Result struct {
	Available      bool   `json:"available"`
	CurrentVersion string `json:"current_version"`
	LatestVersion  string `json:"latest_version"`
	ReleaseURL     string `json:"release_url,omitempty"`
	ReleaseNotes   string `json:"release_notes,omitempty"`
}

// Checker performs one-shot release checks against the GitHub API.
type Checker struct {
	repo       string
	apiBase    string
	httpClient *http.Client
}

// NewChecker creates a checker for the given repository. An empty repo
// falls back to DefaultRepo.
func NewChecker(repo string) *Checker {
	if repo == "" {
		repo = DefaultRepo
	}
	return &Checker{
		repo:    repo,
		apiBase: defaultAPIBase,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Latest fetches the most recent release.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.apiBase, c.repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// GitHub rejects requests without a User-Agent.
	req.Header.Set("User-Agent", "webpilot-updater")
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github API returned status %d: %s", resp.StatusCode, string(body))
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	return &release, nil
}

// Check fetches the latest release and compares it against currentVersion.
func (c *Checker) Check(ctx context.Context, currentVersion string) (*Result, error) {
	release, err := c.Latest(ctx)
	if err != nil {
		return nil, err
	}

	newer, err := release.IsNewer(currentVersion)
	if err != nil {
		return nil, err
	}

	return &Result{
		Available:      newer,
		CurrentVersion: strings.TrimPrefix(currentVersion, "v"),
		LatestVersion:  release.Version(),
		ReleaseURL:     release.HTMLURL,
		ReleaseNotes:   release.Body,
	}, nil
}

// parseVersion parses a semantic version, ignoring pre-release and build
// metadata suffixes.
func parseVersion(version string) (major, minor, patch int, err error) {
	version = strings.TrimPrefix(strings.ToLower(version), "v")
	if idx := strings.IndexAny(version, "-+"); idx > 0 {
		version = version[:idx]
	}

	n, err := fmt.Sscanf(version, "%d.%d.%d", &major, &minor, &patch)
	if err != nil || n != 3 {
		return 0, 0, 0, fmt.Errorf("invalid version format: %s", version)
	}
	return major, minor, patch, nil
}
