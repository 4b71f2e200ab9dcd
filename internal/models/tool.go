package models

import "encoding/json"

// ToolDescriptor describes one tool exposed by an MCP server
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolCallRequest invokes a tool on a connected server
type ToolCallRequest struct {
	ServerId  string                 `json:"serverId" binding:"required"`
	ToolName  string                 `json:"toolName" binding:"required"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolCallResult is the single shape every tool-call outcome is reported in
type ToolCallResult struct {
	Success       bool            `json:"success"`
	Content       json.RawMessage `json:"content,omitempty"`
	Error         string          `json:"error,omitempty"`
	ExecutionTime int64           `json:"executionTime,omitempty"`
}

// Failed builds a failed result
func Failed(msg string) *ToolCallResult {
	return &ToolCallResult{Success: false, Error: msg}
}

// BridgeConnectRequest is the connect RPC body
type BridgeConnectRequest struct {
	ServerId string            `json:"serverId" binding:"required"`
	Name     string            `json:"name"`
	Command  string            `json:"command" binding:"required"`
	Args     []string          `json:"args"`
	Env      map[string]string `json:"env,omitempty"`
}

// BridgeDisconnectRequest is the disconnect RPC body
type BridgeDisconnectRequest struct {
	ServerId string `json:"serverId" binding:"required"`
}

// BridgeResponse is the reply of the connect and disconnect RPCs
type BridgeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ToolListResponse is the reply of the list-tools RPC
type ToolListResponse struct {
	Tools []ToolDescriptor `json:"tools"`
}
