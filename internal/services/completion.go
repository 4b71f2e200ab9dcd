package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imyashkale/mcpbridge/internal/logger"
)

const maxCompletionResponse = 4 << 20

var (
	ErrCompletionNotConfigured = errors.New("completion service is not configured")
	ErrCompletionFailed        = errors.New("completion service request failed")
)

// CompletionResponse is the raw reply of the completion service
type CompletionResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// CompletionProxy forwards JSON requests to an opaque LLM completion service
type CompletionProxy struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCompletionProxy creates a proxy. An empty baseURL leaves it unconfigured.
func NewCompletionProxy(baseURL, apiKey string, httpClient *http.Client) *CompletionProxy {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &CompletionProxy{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Configured reports whether a service URL is set
func (p *CompletionProxy) Configured() bool {
	return p.baseURL != ""
}

// Forward posts body to <base>/<endpoint> and returns the reply as is
func (p *CompletionProxy) Forward(ctx context.Context, endpoint string, body []byte) (*CompletionResponse, error) {
	if !p.Configured() {
		return nil, ErrCompletionNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/"+url.PathEscape(endpoint), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"endpoint": endpoint,
			"error":    err.Error(),
		}).Error("Completion request failed")
		return nil, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCompletionResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	logger.WithFields(map[string]interface{}{
		"endpoint":    endpoint,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Completion request finished")

	return &CompletionResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
