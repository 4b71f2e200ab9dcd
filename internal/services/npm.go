package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
)

var ErrNPMRegistryError = errors.New("npm registry error")

// NPMClient reads package documents from the npm registry
type NPMClient struct {
	registryURL string
	httpClient  *http.Client
}

// NewNPMClient creates a new NPMClient. A nil httpClient gets a 10 second timeout.
func NewNPMClient(registryURL string, httpClient *http.Client) *NPMClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &NPMClient{
		registryURL: strings.TrimRight(registryURL, "/"),
		httpClient:  httpClient,
	}
}

// GetLatest fetches the manifest of the latest published version
func (c *NPMClient) GetLatest(ctx context.Context, pkg string) (*models.PackageManifest, error) {
	var manifest models.PackageManifest
	if err := c.get(ctx, registryPath(pkg)+"/latest", &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// GetReadme fetches the README the registry hosts for the package
func (c *NPMClient) GetReadme(ctx context.Context, pkg string) (string, error) {
	var doc struct {
		Readme string `json:"readme"`
	}
	if err := c.get(ctx, registryPath(pkg), &doc); err != nil {
		return "", err
	}
	return doc.Readme, nil
}

func (c *NPMClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.registryURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		}).Warn("npm registry request failed")
		return fmt.Errorf("npm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status code %d", ErrNPMRegistryError, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode registry response: %w", err)
	}
	return nil
}

// registryPath escapes the slash of a scoped package name
func registryPath(pkg string) string {
	return "/" + strings.Replace(pkg, "/", "%2F", 1)
}
