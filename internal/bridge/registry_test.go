package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu     sync.Mutex
	closed bool
	calls  []string
}

func (s *fakeSession) ListTools(context.Context) ([]models.ToolDescriptor, error) {
	return []models.ToolDescriptor{{Name: "search_issues", Description: "Search issues"}}, nil
}

func (s *fakeSession) CallTool(_ context.Context, name string, args map[string]interface{}) (*models.ToolCallResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	if name == "broken" {
		return nil, errors.New("broken pipe")
	}
	content, _ := json.Marshal(args)
	return &models.ToolCallResult{Success: true, Content: content}, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeFactory struct {
	mu       sync.Mutex
	started  []*fakeSession
	requests []models.BridgeConnectRequest
}

func (f *fakeFactory) start(_ context.Context, req models.BridgeConnectRequest) (Session, error) {
	if req.Command == "missing" {
		return nil, errors.New("exec: \"missing\": executable file not found in $PATH")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSession{}
	f.started = append(f.started, s)
	f.requests = append(f.requests, req)
	return s, nil
}

var githubRequest = models.BridgeConnectRequest{
	ServerId: "github",
	Name:     "GitHub",
	Command:  "npx",
	Args:     []string{"-y", "@modelcontextprotocol/server-github"},
	Env:      map[string]string{"GITHUB_TOKEN": "gho_token"},
}

func TestRegistryConnectAndExecute(t *testing.T) {
	f := &fakeFactory{}
	r := NewRegistry(f.start)
	ctx := context.Background()

	require.NoError(t, r.Connect(ctx, "user-1", githubRequest))
	assert.Equal(t, []string{"github"}, r.Running("user-1"))
	assert.Empty(t, r.Running("user-2"))

	tools, err := r.Tools(ctx, "user-1", "github")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "search_issues", tools[0].Name)

	result := r.Execute(ctx, "user-1", models.ToolCallRequest{
		ServerId:  "github",
		ToolName:  "search_issues",
		Arguments: map[string]interface{}{"q": "bug"},
	})
	require.True(t, result.Success)
	assert.JSONEq(t, `{"q":"bug"}`, string(result.Content))

	result = r.Execute(ctx, "user-1", models.ToolCallRequest{ServerId: "github", ToolName: "broken"})
	assert.False(t, result.Success)
	assert.Equal(t, "broken pipe", result.Error)
}

func TestRegistryIsolatesUsers(t *testing.T) {
	f := &fakeFactory{}
	r := NewRegistry(f.start)
	ctx := context.Background()

	require.NoError(t, r.Connect(ctx, "user-1", githubRequest))

	_, err := r.Tools(ctx, "user-2", "github")
	assert.ErrorIs(t, err, ErrNotConnected)

	result := r.Execute(ctx, "user-2", models.ToolCallRequest{ServerId: "github", ToolName: "search_issues"})
	assert.False(t, result.Success)
	assert.Equal(t, "Server not connected", result.Error)
}

func TestRegistryReconnectReplacesSession(t *testing.T) {
	f := &fakeFactory{}
	r := NewRegistry(f.start)
	ctx := context.Background()

	require.NoError(t, r.Connect(ctx, "user-1", githubRequest))
	require.NoError(t, r.Connect(ctx, "user-1", githubRequest))

	require.Len(t, f.started, 2)
	assert.True(t, f.started[0].isClosed())
	assert.False(t, f.started[1].isClosed())
	assert.Equal(t, []string{"github"}, r.Running("user-1"))
}

func TestRegistryConnectFailures(t *testing.T) {
	tests := map[string]struct {
		req     models.BridgeConnectRequest
		wantErr string
	}{
		"missing command": {
			req:     models.BridgeConnectRequest{ServerId: "github"},
			wantErr: ErrInvalidConfig.Error(),
		},
		"missing server id": {
			req:     models.BridgeConnectRequest{Command: "npx"},
			wantErr: ErrInvalidConfig.Error(),
		},
		"executable not found": {
			req:     models.BridgeConnectRequest{ServerId: "github", Command: "missing"},
			wantErr: "executable file not found",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry((&fakeFactory{}).start)
			err := r.Connect(context.Background(), "user-1", tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, r.Running("user-1"))
		})
	}
}

func TestRegistryDisconnect(t *testing.T) {
	f := &fakeFactory{}
	r := NewRegistry(f.start)
	ctx := context.Background()

	require.NoError(t, r.Connect(ctx, "user-1", githubRequest))
	require.NoError(t, r.Disconnect("user-1", "github"))
	assert.True(t, f.started[0].isClosed())
	assert.Empty(t, r.Running("user-1"))

	assert.NoError(t, r.Disconnect("user-1", "github"))
}

func TestRegistryCloseAll(t *testing.T) {
	f := &fakeFactory{}
	r := NewRegistry(f.start)
	ctx := context.Background()

	require.NoError(t, r.Connect(ctx, "user-1", githubRequest))
	other := githubRequest
	other.ServerId = "filesystem"
	require.NoError(t, r.Connect(ctx, "user-2", other))

	r.CloseAll()
	for _, s := range f.started {
		assert.True(t, s.isClosed())
	}
	assert.Empty(t, r.Running("user-1"))
	assert.Empty(t, r.Running("user-2"))
}

func TestProcessEnv(t *testing.T) {
	t.Setenv("MCPBRIDGE_TEST_VAR", "inherited")

	env := processEnv(map[string]string{"B_TOKEN": "b", "A_TOKEN": "a"})
	assert.Contains(t, env, "MCPBRIDGE_TEST_VAR=inherited")
	require.GreaterOrEqual(t, len(env), 2)
	assert.Equal(t, []string{"A_TOKEN=a", "B_TOKEN=b"}, env[len(env)-2:])
	assert.Len(t, env, len(os.Environ())+2)
}
