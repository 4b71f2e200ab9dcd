package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridge answers the bridge RPCs; refuse lists the server ids whose connect fails
type fakeBridge struct {
	mu       sync.Mutex
	refuse   map[string]bool
	subjects []string
}

func (b *fakeBridge) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		b.recordSubject(t, r)
		var req models.BridgeConnectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if b.refuse[req.ServerId] {
			writeJSON(t, w, models.BridgeResponse{Success: false, Error: "spawn npx ENOENT"})
			return
		}
		writeJSON(t, w, models.BridgeResponse{Success: true})
	})
	mux.HandleFunc("/disconnect", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, models.BridgeResponse{Success: true})
	})
	mux.HandleFunc("/tools", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("serverId") != "github" {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(t, w, models.ErrorResponse{Error: "server_not_connected", Message: "Server not connected"})
			return
		}
		writeJSON(t, w, models.ToolListResponse{Tools: []models.ToolDescriptor{{Name: "create_issue"}}})
	})
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		var req models.ToolCallRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.ToolName == "explode" {
			writeJSON(t, w, models.ToolCallResult{Success: false, Error: "tool raised"})
			return
		}
		writeJSON(t, w, models.ToolCallResult{Success: true, Content: json.RawMessage(`{"ok":true}`)})
	})
	return mux
}

func (b *fakeBridge) recordSubject(t *testing.T, r *http.Request) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte("bridge-secret"), nil
	})
	require.NoError(t, err)
	b.mu.Lock()
	b.subjects = append(b.subjects, claims.Subject)
	b.mu.Unlock()
}

func newTestToolCallClient(t *testing.T, refuse ...string) (*ToolCallClient, *fakeBridge) {
	b := &fakeBridge{refuse: make(map[string]bool)}
	for _, id := range refuse {
		b.refuse[id] = true
	}
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)
	return NewToolCallClient(srv.URL+"/", srv.Client(), NewServiceTokenIssuer("bridge-secret", 0)), b
}

func TestConnectServer(t *testing.T) {
	c, b := newTestToolCallClient(t, "broken")
	ctx := context.Background()

	assert.True(t, c.ConnectServer(ctx, "user-1", models.ServerConfig{ID: "github", Name: "GitHub", Command: "npx"}))
	assert.True(t, c.IsServerConnected("user-1", "github"))
	assert.False(t, c.IsServerConnected("user-2", "github"))
	assert.Equal(t, []string{"user-1"}, b.subjects)

	assert.False(t, c.ConnectServer(ctx, "user-1", models.ServerConfig{ID: "broken", Name: "Broken", Command: "npx"}))
	assert.False(t, c.IsServerConnected("user-1", "broken"))
	assert.Equal(t, []string{"github"}, c.ConnectedServers("user-1"))

	assert.True(t, c.DisconnectServer(ctx, "user-1", "github"))
	assert.False(t, c.IsServerConnected("user-1", "github"))
}

func TestConnectServerUnreachableBridge(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewToolCallClient(srv.URL, nil, nil)

	assert.False(t, c.ConnectServer(context.Background(), "user-1", models.ServerConfig{ID: "github", Name: "GitHub", Command: "npx"}))
	result := c.ExecuteToolCall(context.Background(), "user-1", models.ToolCallRequest{ServerId: "github", ToolName: "create_issue"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, ErrBridgeRPC.Error())
}

func TestListTools(t *testing.T) {
	c, _ := newTestToolCallClient(t)

	tools, err := c.ListTools(context.Background(), "user-1", "github")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "create_issue", tools[0].Name)

	_, err = c.ListTools(context.Background(), "user-1", "notion")
	require.ErrorIs(t, err, ErrBridgeRPC)
	assert.Contains(t, err.Error(), "Server not connected")
}

func TestExecuteToolCall(t *testing.T) {
	c, _ := newTestToolCallClient(t)
	ctx := context.Background()

	ok := c.ExecuteToolCall(ctx, "user-1", models.ToolCallRequest{ServerId: "github", ToolName: "create_issue"})
	assert.True(t, ok.Success)
	assert.JSONEq(t, `{"ok":true}`, string(ok.Content))

	failed := c.ExecuteToolCall(ctx, "user-1", models.ToolCallRequest{ServerId: "github", ToolName: "explode"})
	assert.False(t, failed.Success)
	assert.Equal(t, "tool raised", failed.Error)
}

func TestDisconnectAll(t *testing.T) {
	c, _ := newTestToolCallClient(t)
	ctx := context.Background()

	for _, id := range []string{"github", "notion"} {
		require.True(t, c.ConnectServer(ctx, "user-1", models.ServerConfig{ID: id, Name: id, Command: "npx"}))
	}
	c.DisconnectAll(ctx)
	assert.Empty(t, c.ConnectedServers("user-1"))
}
