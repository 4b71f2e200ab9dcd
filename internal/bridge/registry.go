package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
)

const notConnectedMessage = "Server not connected"

var (
	ErrNotConnected  = errors.New("server not connected")
	ErrInvalidConfig = errors.New("server id and command are required")
)

// Session is a live MCP server process
type Session interface {
	ListTools(ctx context.Context) ([]models.ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*models.ToolCallResult, error)
	Close() error
}

// Factory starts a session for a connect request
type Factory func(ctx context.Context, req models.BridgeConnectRequest) (Session, error)

type sessionKey struct {
	userID   string
	serverID string
}

// Registry holds the running server processes of every user
type Registry struct {
	factory Factory

	mu       sync.Mutex
	sessions map[sessionKey]Session
}

// NewRegistry creates a registry that starts sessions with factory
func NewRegistry(factory Factory) *Registry {
	if factory == nil {
		factory = StdioFactory("mcpbridge", "1.0.0")
	}
	return &Registry{
		factory:  factory,
		sessions: make(map[sessionKey]Session),
	}
}

// Connect starts the server in req for the user. A server that is already
// running for the user is stopped and replaced.
func (r *Registry) Connect(ctx context.Context, userID string, req models.BridgeConnectRequest) error {
	if req.ServerId == "" || req.Command == "" {
		return ErrInvalidConfig
	}

	log := logger.Component("bridge").WithFields(map[string]interface{}{
		"user_id":   userID,
		"server_id": req.ServerId,
		"command":   req.Command,
	})

	session, err := r.factory(ctx, req)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Failed to start MCP server")
		return err
	}

	key := sessionKey{userID, req.ServerId}
	r.mu.Lock()
	previous := r.sessions[key]
	r.sessions[key] = session
	r.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}

	log.Info("MCP server started")
	return nil
}

// Disconnect stops one server. Stopping a server that is not running is not an error.
func (r *Registry) Disconnect(userID, serverID string) error {
	key := sessionKey{userID, serverID}
	r.mu.Lock()
	session, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if err := session.Close(); err != nil {
		logger.WithFields(map[string]interface{}{
			"user_id":   userID,
			"server_id": serverID,
			"error":     err.Error(),
		}).Warn("MCP server did not close cleanly")
	}
	return nil
}

// Tools lists the tools of a running server
func (r *Registry) Tools(ctx context.Context, userID, serverID string) ([]models.ToolDescriptor, error) {
	session, ok := r.session(userID, serverID)
	if !ok {
		return nil, ErrNotConnected
	}
	tools, err := session.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	if tools == nil {
		tools = []models.ToolDescriptor{}
	}
	return tools, nil
}

// Execute calls a tool. Every outcome is reported as a ToolCallResult.
func (r *Registry) Execute(ctx context.Context, userID string, req models.ToolCallRequest) *models.ToolCallResult {
	session, ok := r.session(userID, req.ServerId)
	if !ok {
		return models.Failed(notConnectedMessage)
	}

	result, err := session.CallTool(ctx, req.ToolName, req.Arguments)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"user_id":   userID,
			"server_id": req.ServerId,
			"tool":      req.ToolName,
			"error":     err.Error(),
		}).Warn("Tool call failed")
		return models.Failed(err.Error())
	}
	return result
}

// Running returns the ids of the user's running servers, sorted
func (r *Registry) Running(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0)
	for k := range r.sessions {
		if k.userID == userID {
			ids = append(ids, k.serverID)
		}
	}
	sort.Strings(ids)
	return ids
}

// CloseAll stops every running server
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[sessionKey]Session)
	r.mu.Unlock()

	for key, session := range sessions {
		if err := session.Close(); err != nil {
			logger.WithFields(map[string]interface{}{
				"user_id":   key.userID,
				"server_id": key.serverID,
				"error":     err.Error(),
			}).Warn("MCP server did not close cleanly")
		}
	}
	logger.WithField("count", len(sessions)).Info("Stopped MCP servers")
}

func (r *Registry) session(userID, serverID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey{userID, serverID}]
	return s, ok
}
