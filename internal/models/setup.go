package models

import "time"

// SetupStep is a state of the setup wizard
type SetupStep string

const (
	StepURLInput     SetupStep = "url-input"
	StepDetection    SetupStep = "detection"
	StepServerInfo   SetupStep = "server-info"
	StepOAuthSetup   SetupStep = "oauth-setup"
	StepInstallation SetupStep = "installation"
	StepCloudBridge  SetupStep = "cloud-bridge"
	StepSuccess      SetupStep = "success"
	StepError        SetupStep = "error"
)

// InstallLogEntry is one line of the installation log
type InstallLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// SetupSnapshot is a read-only copy of a setup session
type SetupSnapshot struct {
	SessionId            string               `json:"session_id"`
	Step                 SetupStep            `json:"step"`
	Progress             int                  `json:"progress"`
	ServerInfo           *ServerInfo          `json:"server_info,omitempty"`
	ConnectedProviders   []string             `json:"connected_providers"`
	MissingProviders     []string             `json:"missing_providers"`
	Error                string               `json:"error,omitempty"`
	Analysis             *ErrorAnalysis       `json:"analysis,omitempty"`
	Logs                 []InstallLogEntry    `json:"logs"`
	Notice               string               `json:"notice,omitempty"`
	CloudBridgeMode      bool                 `json:"cloud_bridge_mode"`
	CloudBridgeAvailable bool                 `json:"cloud_bridge_available"`
	CloudInstance        *CloudBridgeInstance `json:"cloud_instance,omitempty"`
	Busy                 bool                 `json:"busy"`
}

// SubmitURLRequest starts detection
type SubmitURLRequest struct {
	Url string `json:"url" binding:"required"`
}
