package models

import "time"

// ConnectionStatus is the lifecycle status of a stored server connection
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// Valid reports whether s is one of the known statuses
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusConnected, StatusDisconnected, StatusError:
		return true
	}
	return false
}

// ServerConfig is how to launch an MCP server process
type ServerConfig struct {
	ID      string            `json:"id" binding:"required"`
	Name    string            `json:"name" binding:"required"`
	Command string            `json:"command" binding:"required"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

// MCPConnection is a user's stored connection to one server
type MCPConnection struct {
	Id            string            `json:"id"`
	UserId        string            `json:"user_id"`
	ServerId      string            `json:"server_id"`
	ServerName    string            `json:"server_name"`
	Command       string            `json:"command"`
	Args          []string          `json:"args"`
	Env           map[string]string `json:"env,omitempty"`
	Status        ConnectionStatus  `json:"status"`
	LastConnected *time.Time        `json:"last_connected,omitempty"`
	ErrorMessage  *string           `json:"error_message"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ServerConfig converts the stored connection back into a launch configuration
func (c *MCPConnection) ServerConfig() ServerConfig {
	return ServerConfig{
		ID:      c.ServerId,
		Name:    c.ServerName,
		Command: c.Command,
		Args:    c.Args,
		Env:     c.Env,
	}
}

// ConnectionListResponse wraps the connections of one user
type ConnectionListResponse struct {
	Connections []MCPConnection `json:"connections"`
	Total       int             `json:"total"`
}
