package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/imyashkale/mcpbridge/internal/models"
)

const (
	initializeTimeout = 30 * time.Second
	callTimeout       = 2 * time.Minute
)

// StdioFactory starts servers as child processes speaking MCP over stdio
func StdioFactory(clientName, clientVersion string) Factory {
	return func(ctx context.Context, req models.BridgeConnectRequest) (Session, error) {
		t := transport.NewStdio(req.Command, processEnv(req.Env), req.Args...)
		c := client.NewClient(t)

		// the process outlives the connect request
		if err := c.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, fmt.Errorf("failed to start %s: %w", req.Command, err)
		}

		initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
		defer cancel()

		initRequest := mcp.InitializeRequest{}
		initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initRequest.Params.ClientInfo = mcp.Implementation{
			Name:    clientName,
			Version: clientVersion,
		}
		initRequest.Params.Capabilities = mcp.ClientCapabilities{}

		if _, err := c.Initialize(initCtx, initRequest); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to initialize %s: %w", req.Command, err)
		}

		return &stdioSession{client: c}, nil
	}
}

// processEnv is the bridge's environment plus the server's variables, in a stable order
func processEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

type stdioSession struct {
	client *client.Client
}

func (s *stdioSession) ListTools(ctx context.Context) ([]models.ToolDescriptor, error) {
	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	tools := make([]models.ToolDescriptor, 0, len(result.Tools))
	for i := range result.Tools {
		tool := &result.Tools[i]
		descriptor := models.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
		}
		if schema, err := json.Marshal(tool.InputSchema); err == nil {
			descriptor.InputSchema = schema
		}
		tools = append(tools, descriptor)
	}
	return tools, nil
}

func (s *stdioSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (*models.ToolCallResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args

	started := time.Now()
	result, err := s.client.CallTool(callCtx, request)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("tool %s timed out after %v", name, callTimeout)
		}
		return nil, err
	}

	content, err := json.Marshal(result.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}

	out := &models.ToolCallResult{
		Success:       !result.IsError,
		Content:       content,
		ExecutionTime: time.Since(started).Milliseconds(),
	}
	if result.IsError {
		out.Error = firstText(result.Content)
	}
	return out, nil
}

func (s *stdioSession) Close() error {
	return s.client.Close()
}

func firstText(content []mcp.Content) string {
	for _, c := range content {
		var text string
		switch v := c.(type) {
		case mcp.TextContent:
			text = v.Text
		case *mcp.TextContent:
			text = v.Text
		}
		if strings.TrimSpace(text) != "" {
			return text
		}
	}
	return "Tool call failed"
}
