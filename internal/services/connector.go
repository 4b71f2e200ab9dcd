package services

import (
	"context"
	"errors"

	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
)

// connectionFailedMessage is stored on a connection whose bridge connect failed
const connectionFailedMessage = "Failed to establish connection"

var (
	ErrConnectionFailed   = errors.New("failed to establish connection")
	ErrConnectionNotSaved = errors.New("failed to save connection")
	ErrUnknownConnection  = errors.New("connection not found")
)

// ConnectError carries the reason a server could not be started. Its message
// is the reason alone so it can be classified by the troubleshooting engine.
type ConnectError struct {
	ServerID string
	Reason   string
}

func (e *ConnectError) Error() string { return e.Reason }

func (e *ConnectError) Unwrap() error { return ErrConnectionFailed }

// ServerConnector drives the connect path shared by the connection endpoints
// and the setup flow: save the connection, connect it through the bridge,
// then record the outcome
type ServerConnector struct {
	connections *ConnectionManager
	tools       *ToolCallClient
}

// NewServerConnector creates a new ServerConnector
func NewServerConnector(connections *ConnectionManager, tools *ToolCallClient) *ServerConnector {
	return &ServerConnector{connections: connections, tools: tools}
}

// Connect saves cfg for the user and starts it. On failure the connection is
// left in status error.
func (s *ServerConnector) Connect(ctx context.Context, userID string, cfg models.ServerConfig) (*models.MCPConnection, error) {
	conn, err := s.connections.SaveConnection(ctx, userID, cfg)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrConnectionNotSaved
	}
	return s.start(ctx, userID, cfg)
}

// Reconnect starts a connection that was saved before
func (s *ServerConnector) Reconnect(ctx context.Context, userID, serverID string) (*models.MCPConnection, error) {
	conn := s.connections.GetConnection(ctx, userID, serverID)
	if conn == nil {
		return nil, ErrUnknownConnection
	}
	return s.start(ctx, userID, conn.ServerConfig())
}

func (s *ServerConnector) start(ctx context.Context, userID string, cfg models.ServerConfig) (*models.MCPConnection, error) {
	if err := s.tools.connect(ctx, userID, cfg); err != nil {
		s.connections.UpdateConnectionStatus(ctx, userID, cfg.ID, models.StatusError, connectionFailedMessage)
		return s.connections.GetConnection(ctx, userID, cfg.ID), &ConnectError{ServerID: cfg.ID, Reason: err.Error()}
	}

	s.connections.UpdateConnectionStatus(ctx, userID, cfg.ID, models.StatusConnected, "")
	logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"server_id": cfg.ID,
	}).Info("Server connected")
	return s.connections.GetConnection(ctx, userID, cfg.ID), nil
}

// Disconnect stops a server and marks its connection disconnected
func (s *ServerConnector) Disconnect(ctx context.Context, userID, serverID string) (*models.MCPConnection, error) {
	if s.connections.GetConnection(ctx, userID, serverID) == nil {
		return nil, ErrUnknownConnection
	}
	s.tools.DisconnectServer(ctx, userID, serverID)
	s.connections.UpdateConnectionStatus(ctx, userID, serverID, models.StatusDisconnected, "")
	return s.connections.GetConnection(ctx, userID, serverID), nil
}

// Remove deletes a connection, disconnecting it first when it is live
func (s *ServerConnector) Remove(ctx context.Context, userID, serverID string) error {
	if s.tools.IsServerConnected(userID, serverID) {
		s.tools.DisconnectServer(ctx, userID, serverID)
	}
	if !s.connections.DeleteConnection(ctx, userID, serverID) {
		return ErrUnknownConnection
	}
	return nil
}
