package models

import "time"

// InstanceStatus is the lifecycle status of a cloud bridge instance
type InstanceStatus string

const (
	InstanceStarting InstanceStatus = "starting"
	InstanceRunning  InstanceStatus = "running"
	InstanceStopping InstanceStatus = "stopping"
	InstanceStopped  InstanceStatus = "stopped"
	InstanceError    InstanceStatus = "error"
)

var instanceTransitions = map[InstanceStatus][]InstanceStatus{
	InstanceStarting: {InstanceRunning, InstanceError},
	InstanceRunning:  {InstanceStopping, InstanceError},
	InstanceStopping: {InstanceStopped, InstanceError},
	InstanceError:    {InstanceStopping, InstanceStopped},
}

// CanTransition reports whether an instance may move from one status to another.
// Statuses only move forward; an instance never goes from starting straight to stopped.
func CanTransition(from, to InstanceStatus) bool {
	for _, next := range instanceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// UsageStats are the per-instance request counters
type UsageStats struct {
	RequestsCount int64      `json:"requests_count"`
	LastRequest   *time.Time `json:"last_request,omitempty"`
}

// CloudBridgeInstance is one remotely provisioned MCP server
type CloudBridgeInstance struct {
	Id           string         `json:"id"`
	UserId       string         `json:"user_id"`
	ServerId     string         `json:"server_id"`
	ServerName   string         `json:"server_name"`
	ServerInfo   ServerInfo     `json:"server_info"`
	Status       InstanceStatus `json:"status"`
	EndpointUrl  string         `json:"endpoint_url,omitempty"`
	ImageUri     string         `json:"image_uri,omitempty"`
	UsageStats   UsageStats     `json:"usage_stats"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// CloudServerConfig is what the provisioning API is asked to run
type CloudServerConfig struct {
	Id             string            `json:"id"`
	Name           string            `json:"name"`
	InstallCommand string            `json:"installCommand"`
	InstallArgs    []string          `json:"installArgs"`
	Command        string            `json:"command"`
	Args           []string          `json:"args"`
	Env            map[string]string `json:"env"`
	Image          string            `json:"image,omitempty"`
}

// CreateInstanceRequest is the body of the create-instance endpoint
type CreateInstanceRequest struct {
	ServerInfo ServerInfo `json:"server_info" binding:"required"`
}

// InstanceListResponse wraps the instances of one user
type InstanceListResponse struct {
	Instances []CloudBridgeInstance `json:"instances"`
	Total     int                   `json:"total"`
}
