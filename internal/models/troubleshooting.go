package models

// Severity of an analyzed error
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Priority of a remediation
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ErrorCategory is the classification an error is analyzed into
type ErrorCategory string

const (
	ErrorConnection     ErrorCategory = "connection"
	ErrorAuthentication ErrorCategory = "authentication"
	ErrorInstallation   ErrorCategory = "installation"
	ErrorDetection      ErrorCategory = "detection"
	ErrorPermission     ErrorCategory = "permission"
	ErrorUnknown        ErrorCategory = "unknown"
)

// SolutionCategory groups solutions in the UI
type SolutionCategory string

const (
	SolutionConnection     SolutionCategory = "connection"
	SolutionAuthentication SolutionCategory = "authentication"
	SolutionInstallation   SolutionCategory = "installation"
	SolutionConfiguration  SolutionCategory = "configuration"
	SolutionSystem         SolutionCategory = "system"
)

// StepAction is how a step is presented
type StepAction string

const (
	ActionButton StepAction = "button"
	ActionLink   StepAction = "link"
	ActionCopy   StepAction = "copy"
	ActionCheck  StepAction = "check"
)

// StepIntent is what executing a step does
type StepIntent string

const (
	IntentRetry          StepIntent = "retry"
	IntentUseCloudBridge StepIntent = "use-cloud-bridge"
	IntentRefresh        StepIntent = "refresh"
	IntentOpenLink       StepIntent = "open-link"
	IntentCopy           StepIntent = "copy"
	IntentMarkDone       StepIntent = "mark-done"
)

// TroubleshootingStep is one remediation step
type TroubleshootingStep struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Action      StepAction `json:"action,omitempty"`
	Intent      StepIntent `json:"intent,omitempty"`
	ActionLabel string     `json:"action_label,omitempty"`
	ActionData  string     `json:"action_data,omitempty"`
}

// TroubleshootingSolution is an ordered list of steps addressing one cause
type TroubleshootingSolution struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    Priority              `json:"priority"`
	Category    SolutionCategory      `json:"category"`
	Steps       []TroubleshootingStep `json:"steps"`
}

// ErrorAnalysis is the result of classifying one error
type ErrorAnalysis struct {
	ErrorType      ErrorCategory             `json:"error_type"`
	Severity       Severity                  `json:"severity"`
	Message        string                    `json:"message"`
	OriginalError  string                    `json:"original_error"`
	PossibleCauses []string                  `json:"possible_causes"`
	Solutions      []TroubleshootingSolution `json:"solutions"`
	QuickFix       *TroubleshootingStep      `json:"quick_fix,omitempty"`
}

// AnalyzeErrorRequest is the body of the analyze endpoint
type AnalyzeErrorRequest struct {
	Error    string `json:"error" binding:"required"`
	Step     string `json:"step"`
	Provider string `json:"provider"`
}

// RuntimeCheck is the state of one runtime a local install needs
type RuntimeCheck struct {
	Installed   bool   `json:"installed"`
	Version     string `json:"version,omitempty"`
	Requirement string `json:"requirement"`
	Satisfied   bool   `json:"satisfied"`
}

// SystemRequirements reports the runtimes available to the bridge host
type SystemRequirements struct {
	Node RuntimeCheck `json:"node"`
	NPM  RuntimeCheck `json:"npm"`
}

// ExecuteStepRequest runs one troubleshooting step against a setup session
type ExecuteStepRequest struct {
	Step TroubleshootingStep `json:"step" binding:"required"`
}

// StepOutcome is what executing a step asks the caller to do next
type StepOutcome struct {
	Intent    StepIntent `json:"intent"`
	URL       string     `json:"url,omitempty"`
	Clipboard string     `json:"clipboard,omitempty"`
	Done      bool       `json:"done"`
}
