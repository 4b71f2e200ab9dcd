package troubleshoot

import (
	"strings"

	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
)

const (
	nodeDownloadURL = "https://nodejs.org/download"
	serversListURL  = "https://github.com/modelcontextprotocol/servers"
)

// Context is optional information about where an error happened
type Context struct {
	Step     string
	Provider string
}

type rule struct {
	category models.ErrorCategory
	keywords []string
	analyze  func(original, lower string, c Context) models.ErrorAnalysis
}

// rules are evaluated in order and the first match wins. OS error codes are
// matched before the installation keywords so "EACCES: permission denied" is
// a permission problem rather than an installation one.
var rules = []rule{
	{models.ErrorConnection, []string{"network", "connection", "timeout", "fetch", "cors"}, connectionAnalysis},
	{models.ErrorAuthentication, []string{"oauth", "authorization", "token", "authentication", "access denied", "unauthorized"}, authAnalysis},
	{models.ErrorPermission, []string{"eacces", "eperm"}, permissionAnalysis},
	{models.ErrorInstallation, []string{"npm", "install", "package", "node", "command not found", "permission denied"}, installationAnalysis},
	{models.ErrorDetection, []string{"detect", "parse", "invalid url", "not found", "repository"}, detectionAnalysis},
	{models.ErrorPermission, []string{"permission", "access denied"}, permissionAnalysis},
}

// Engine classifies errors against a fixed rule table
type Engine struct{}

// NewEngine creates a new Engine
func NewEngine() *Engine {
	return &Engine{}
}

// AnalyzeError classifies err. Unmatched errors get the generic analysis, so
// the result always carries at least one solution.
func (e *Engine) AnalyzeError(err string, c Context) models.ErrorAnalysis {
	lower := strings.ToLower(err)

	analysis := genericAnalysis(err, lower, c)
	for _, r := range rules {
		if containsAny(lower, r.keywords) {
			analysis = r.analyze(err, lower, c)
			break
		}
	}

	logger.WithFields(map[string]interface{}{
		"step":       c.Step,
		"provider":   c.Provider,
		"error_type": string(analysis.ErrorType),
	}).Debug("Error analyzed")
	return analysis
}

// Classify returns only the category AnalyzeError would pick
func (e *Engine) Classify(err string) models.ErrorCategory {
	lower := strings.ToLower(err)
	for _, r := range rules {
		if containsAny(lower, r.keywords) {
			return r.category
		}
	}
	return models.ErrorUnknown
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func checkStep(title, description string) models.TroubleshootingStep {
	return models.TroubleshootingStep{
		Title:       title,
		Description: description,
		Action:      models.ActionCheck,
		Intent:      models.IntentMarkDone,
	}
}

func linkStep(title, description, label, url string) models.TroubleshootingStep {
	return models.TroubleshootingStep{
		Title:       title,
		Description: description,
		Action:      models.ActionLink,
		Intent:      models.IntentOpenLink,
		ActionLabel: label,
		ActionData:  url,
	}
}

func buttonStep(title, description, label string, intent models.StepIntent) models.TroubleshootingStep {
	return models.TroubleshootingStep{
		Title:       title,
		Description: description,
		Action:      models.ActionButton,
		Intent:      intent,
		ActionLabel: label,
	}
}

func connectionAnalysis(original, _ string, _ Context) models.ErrorAnalysis {
	quickFix := buttonStep("Quick Fix", "Retry the connection", "Retry Connection", models.IntentRetry)
	return models.ErrorAnalysis{
		ErrorType:     models.ErrorConnection,
		Severity:      models.SeverityCritical,
		Message:       "Network connection failed",
		OriginalError: original,
		PossibleCauses: []string{
			"No internet connection",
			"Firewall blocking requests",
			"VPN/Proxy interference",
			"Server temporarily unavailable",
		},
		Solutions: []models.TroubleshootingSolution{
			{
				Title:       "Check Network Connection",
				Description: "Verify your internet connection and network settings",
				Priority:    models.PriorityHigh,
				Category:    models.SolutionConnection,
				Steps: []models.TroubleshootingStep{
					checkStep("Test internet connection", "Try opening other websites"),
					checkStep("Disable VPN/Proxy", "Temporarily disable VPN or proxy settings"),
					checkStep("Try different network", "Connect to a different Wi-Fi network if available"),
				},
			},
		},
		QuickFix: &quickFix,
	}
}

func authAnalysis(original, lower string, c Context) models.ErrorAnalysis {
	popupBlocked := strings.Contains(lower, "popup") || strings.Contains(lower, "blocked")
	denied := strings.Contains(lower, "denied")

	severity := models.SeverityCritical
	message := "Authentication failed"
	switch {
	case popupBlocked:
		severity = models.SeverityWarning
		message = "Pop-up was blocked"
	case denied:
		message = "OAuth access denied"
	}

	retryDescription := "Try the OAuth flow again"
	if c.Provider != "" {
		retryDescription = "Try the " + c.Provider + " OAuth flow again"
	}

	quickFix := buttonStep("Allow Pop-ups", "Enable pop-ups and try again", "Retry OAuth", models.IntentRetry)
	return models.ErrorAnalysis{
		ErrorType:     models.ErrorAuthentication,
		Severity:      severity,
		Message:       message,
		OriginalError: original,
		PossibleCauses: []string{
			"Pop-up blocker enabled",
			"User denied OAuth access",
			"Invalid OAuth configuration",
			"Network interruption during auth flow",
		},
		Solutions: []models.TroubleshootingSolution{
			{
				Title:       "Enable Pop-ups",
				Description: "Allow pop-ups for OAuth authentication",
				Priority:    models.PriorityHigh,
				Category:    models.SolutionAuthentication,
				Steps: []models.TroubleshootingStep{
					checkStep("Allow pop-ups", "Click the pop-up blocked icon in your address bar and allow pop-ups"),
					buttonStep("Retry authentication", retryDescription, "Retry OAuth", models.IntentRetry),
				},
			},
		},
		QuickFix: &quickFix,
	}
}

func installationAnalysis(original, lower string, _ Context) models.ErrorAnalysis {
	message := "Installation failed"
	switch {
	case strings.Contains(lower, "node") || strings.Contains(lower, "npm"):
		message = "Node.js not found"
	case strings.Contains(lower, "permission"):
		message = "Permission denied"
	}

	return models.ErrorAnalysis{
		ErrorType:     models.ErrorInstallation,
		Severity:      models.SeverityCritical,
		Message:       message,
		OriginalError: original,
		PossibleCauses: []string{
			"Node.js not installed",
			"npm not available",
			"Insufficient permissions",
			"Network issues during download",
		},
		Solutions: []models.TroubleshootingSolution{
			{
				Title:       "Install Node.js",
				Description: "Install Node.js and npm",
				Priority:    models.PriorityHigh,
				Category:    models.SolutionSystem,
				Steps: []models.TroubleshootingStep{
					linkStep("Download Node.js", "Install the latest LTS version", "Download Node.js", nodeDownloadURL),
					checkStep("Restart browser", "Close and reopen your browser"),
				},
			},
			cloudBridgeSolution(models.PriorityMedium),
		},
	}
}

func detectionAnalysis(original, _ string, _ Context) models.ErrorAnalysis {
	return models.ErrorAnalysis{
		ErrorType:     models.ErrorDetection,
		Severity:      models.SeverityWarning,
		Message:       "Could not detect MCP server",
		OriginalError: original,
		PossibleCauses: []string{
			"URL is not an MCP server",
			"Repository is private",
			"Invalid URL format",
			"Server configuration missing",
		},
		Solutions: []models.TroubleshootingSolution{
			{
				Title:       "Verify URL",
				Description: "Make sure the URL points to an MCP server",
				Priority:    models.PriorityHigh,
				Category:    models.SolutionConfiguration,
				Steps: []models.TroubleshootingStep{
					checkStep("Check URL format", "Use a GitHub repository URL like: https://github.com/user/repo"),
					checkStep("Verify it's an MCP server", "Make sure the repository contains an MCP server implementation"),
					linkStep("Browse MCP servers", "Find official MCP servers", "Browse Servers", serversListURL),
				},
			},
		},
	}
}

func permissionAnalysis(original, _ string, _ Context) models.ErrorAnalysis {
	return models.ErrorAnalysis{
		ErrorType:     models.ErrorPermission,
		Severity:      models.SeverityCritical,
		Message:       "Permission denied",
		OriginalError: original,
		PossibleCauses: []string{
			"Insufficient system permissions",
			"Admin rights required",
			"File system restrictions",
			"Corporate security policies",
		},
		Solutions: []models.TroubleshootingSolution{
			cloudBridgeSolution(models.PriorityHigh),
		},
	}
}

func genericAnalysis(original, _ string, _ Context) models.ErrorAnalysis {
	return models.ErrorAnalysis{
		ErrorType:     models.ErrorUnknown,
		Severity:      models.SeverityWarning,
		Message:       "An unexpected error occurred",
		OriginalError: original,
		PossibleCauses: []string{
			"Temporary service issue",
			"Browser compatibility problem",
			"Network connectivity issue",
		},
		Solutions: []models.TroubleshootingSolution{
			{
				Title:       "Basic Troubleshooting",
				Description: "Try these common solutions",
				Priority:    models.PriorityMedium,
				Category:    models.SolutionSystem,
				Steps: []models.TroubleshootingStep{
					buttonStep("Refresh the page", "Reload the page and try again", "Refresh Page", models.IntentRefresh),
					checkStep("Clear browser cache", "Clear your browser cache and cookies"),
					checkStep("Try different browser", "Test with Chrome, Firefox, or Safari"),
				},
			},
		},
	}
}

func cloudBridgeSolution(priority models.Priority) models.TroubleshootingSolution {
	return models.TroubleshootingSolution{
		Title:       "Use Cloud Bridge",
		Description: "Skip local installation with our cloud service",
		Priority:    priority,
		Category:    models.SolutionInstallation,
		Steps: []models.TroubleshootingStep{
			buttonStep("Try Cloud Bridge", "We can run the MCP server in the cloud for you", "Use Cloud Bridge", models.IntentUseCloudBridge),
		},
	}
}

// CommonSolutions lists the fixes that cover most setup problems
func CommonSolutions() []models.TroubleshootingSolution {
	return []models.TroubleshootingSolution{
		{
			Title:       "Enable Pop-ups",
			Description: "OAuth authentication requires pop-up windows",
			Priority:    models.PriorityHigh,
			Category:    models.SolutionAuthentication,
			Steps: []models.TroubleshootingStep{
				checkStep("Check browser settings", "Make sure pop-ups are enabled for this site"),
				buttonStep("Try again", "Click the OAuth button again after enabling pop-ups", "Retry OAuth", models.IntentRetry),
			},
		},
		{
			Title:       "Install Node.js",
			Description: "MCP servers require Node.js to be installed",
			Priority:    models.PriorityHigh,
			Category:    models.SolutionSystem,
			Steps: []models.TroubleshootingStep{
				linkStep("Download Node.js", "Install Node.js version 16 or higher", "Download Node.js", nodeDownloadURL),
				checkStep("Restart browser", "Close and reopen your browser after installing"),
			},
		},
		{
			Title:       "Fix Network Issues",
			Description: "Connection problems can prevent MCP setup",
			Priority:    models.PriorityMedium,
			Category:    models.SolutionConnection,
			Steps: []models.TroubleshootingStep{
				checkStep("Check internet connection", "Make sure you have a stable internet connection"),
				checkStep("Disable VPN/Proxy", "Try disabling VPN or proxy temporarily"),
				checkStep("Try different network", "Switch to a different network if available"),
			},
		},
	}
}
