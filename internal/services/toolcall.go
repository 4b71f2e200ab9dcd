package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
)

const toolCallTimeout = 30 * time.Second

var ErrBridgeRPC = errors.New("tool-call bridge request failed")

type serverKey struct {
	userID   string
	serverID string
}

// ToolCallClient talks to the process bridge over HTTP. The set of connected
// servers it keeps is a local cache; the bridge registry is authoritative.
type ToolCallClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     *ServiceTokenIssuer

	mu        sync.RWMutex
	connected map[serverKey]bool
}

// NewToolCallClient creates a client for the bridge mounted at baseURL
func NewToolCallClient(baseURL string, httpClient *http.Client, tokens *ServiceTokenIssuer) *ToolCallClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &ToolCallClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		connected:  make(map[serverKey]bool),
	}
}

// ConnectServer asks the bridge to start cfg. Any failure is reported as false.
func (c *ToolCallClient) ConnectServer(ctx context.Context, userID string, cfg models.ServerConfig) bool {
	return c.connect(ctx, userID, cfg) == nil
}

// connect returns the transport error or the reason the bridge refused
func (c *ToolCallClient) connect(ctx context.Context, userID string, cfg models.ServerConfig) error {
	log := logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"server_id": cfg.ID,
	})

	var resp models.BridgeResponse
	err := c.do(ctx, userID, http.MethodPost, "/connect", models.BridgeConnectRequest{
		ServerId: cfg.ID,
		Name:     cfg.Name,
		Command:  cfg.Command,
		Args:     cfg.Args,
		Env:      cfg.Env,
	}, &resp)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Connect RPC failed")
		return err
	}
	if !resp.Success {
		if resp.Error == "" {
			resp.Error = connectionFailedMessage
		}
		log.WithField("error", resp.Error).Warn("Bridge refused connect")
		return errors.New(resp.Error)
	}

	c.mu.Lock()
	c.connected[serverKey{userID, cfg.ID}] = true
	c.mu.Unlock()

	log.Info("Server connected through bridge")
	return nil
}

// DisconnectServer stops a server. The local cache entry is dropped whatever the bridge answers.
func (c *ToolCallClient) DisconnectServer(ctx context.Context, userID, serverID string) bool {
	c.mu.Lock()
	delete(c.connected, serverKey{userID, serverID})
	c.mu.Unlock()

	var resp models.BridgeResponse
	if err := c.do(ctx, userID, http.MethodPost, "/disconnect", models.BridgeDisconnectRequest{ServerId: serverID}, &resp); err != nil {
		logger.WithFields(map[string]interface{}{
			"user_id":   userID,
			"server_id": serverID,
			"error":     err.Error(),
		}).Warn("Disconnect RPC failed")
		return false
	}
	return resp.Success
}

// DisconnectAll disconnects every server in the local cache
func (c *ToolCallClient) DisconnectAll(ctx context.Context) {
	c.mu.RLock()
	keys := make([]serverKey, 0, len(c.connected))
	for k := range c.connected {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	for _, k := range keys {
		c.DisconnectServer(ctx, k.userID, k.serverID)
	}
}

// ListTools returns the tools a connected server exposes. Transport errors are returned.
func (c *ToolCallClient) ListTools(ctx context.Context, userID, serverID string) ([]models.ToolDescriptor, error) {
	var resp models.ToolListResponse
	path := "/tools?serverId=" + url.QueryEscape(serverID)
	if err := c.do(ctx, userID, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Tools == nil {
		resp.Tools = []models.ToolDescriptor{}
	}
	return resp.Tools, nil
}

// ExecuteToolCall runs a tool. Transport and remote failures come back in
// the same {success:false, error} shape.
func (c *ToolCallClient) ExecuteToolCall(ctx context.Context, userID string, req models.ToolCallRequest) *models.ToolCallResult {
	ctx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	var result models.ToolCallResult
	if err := c.do(ctx, userID, http.MethodPost, "/execute", req, &result); err != nil {
		logger.WithFields(map[string]interface{}{
			"user_id":   userID,
			"server_id": req.ServerId,
			"tool":      req.ToolName,
			"error":     err.Error(),
		}).Warn("Tool call failed")
		return models.Failed(err.Error())
	}
	if !result.Success && result.Error == "" {
		result.Error = "Tool call failed"
	}
	return &result
}

// IsServerConnected reports whether the local cache holds the server
func (c *ToolCallClient) IsServerConnected(userID, serverID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected[serverKey{userID, serverID}]
}

// ConnectedServers returns the cached server ids of one user, sorted
func (c *ToolCallClient) ConnectedServers(userID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0)
	for k := range c.connected {
		if k.userID == userID {
			ids = append(ids, k.serverID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (c *ToolCallClient) do(ctx context.Context, userID, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Issue(userID)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBridgeRPC, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr models.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("%w: %s", ErrBridgeRPC, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid response: %v", ErrBridgeRPC, err)
	}
	return nil
}
