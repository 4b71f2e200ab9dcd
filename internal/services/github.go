package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
)

var (
	ErrGitHubAPIError = errors.New("github api error")
	ErrInvalidContent = errors.New("invalid repository content")
)

// contentsResponse is the body of the GitHub contents and readme endpoints
type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GitHubClient reads public repository data from the GitHub REST API without authentication
type GitHubClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGitHubClient creates a new GitHubClient. A nil httpClient gets a 10 second timeout.
func NewGitHubClient(baseURL string, httpClient *http.Client) *GitHubClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &GitHubClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// GetRepository fetches repository metadata
func (c *GitHubClient) GetRepository(ctx context.Context, owner, repo string) (*models.RepoMetadata, error) {
	var meta models.RepoMetadata
	if err := c.get(ctx, repoPath(owner, repo), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetManifest fetches and decodes the package.json at the repository root
func (c *GitHubClient) GetManifest(ctx context.Context, owner, repo string) (*models.PackageManifest, error) {
	raw, err := c.getContents(ctx, repoPath(owner, repo)+"/contents/package.json")
	if err != nil {
		return nil, err
	}

	var manifest models.PackageManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("%w: package.json: %v", ErrInvalidContent, err)
	}
	return &manifest, nil
}

// GetReadme fetches the repository README as text
func (c *GitHubClient) GetReadme(ctx context.Context, owner, repo string) (string, error) {
	raw, err := c.getContents(ctx, repoPath(owner, repo)+"/readme")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (c *GitHubClient) getContents(ctx context.Context, path string) ([]byte, error) {
	var body contentsResponse
	if err := c.get(ctx, path, &body); err != nil {
		return nil, err
	}
	if body.Encoding != "" && body.Encoding != "base64" {
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrInvalidContent, body.Encoding)
	}

	// The API wraps base64 at 60 columns; the decoder skips the newlines.
	decoded, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return decoded, nil
}

func (c *GitHubClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		}).Warn("GitHub API request failed")
		return fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.WithFields(map[string]interface{}{
			"path":        path,
			"status_code": resp.StatusCode,
		}).Debug("GitHub API returned non-OK status")
		return fmt.Errorf("%w: status code %d", ErrGitHubAPIError, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode github response: %w", err)
	}
	return nil
}

func repoPath(owner, repo string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}
