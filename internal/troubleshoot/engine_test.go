package troubleshoot

import (
	"context"
	"errors"
	"testing"

	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeErrorCategories(t *testing.T) {
	tests := []struct {
		err      string
		category models.ErrorCategory
		message  string
	}{
		{"Failed to fetch", models.ErrorConnection, "Network connection failed"},
		{"request timeout after 30s", models.ErrorConnection, "Network connection failed"},
		{"OAuth popup blocked", models.ErrorAuthentication, "Pop-up was blocked"},
		{"oauth access denied by user", models.ErrorAuthentication, "OAuth access denied"},
		{"invalid token", models.ErrorAuthentication, "Authentication failed"},
		{"EACCES: permission denied", models.ErrorPermission, "Permission denied"},
		{"EPERM: operation not permitted", models.ErrorPermission, "Permission denied"},
		{"npm ERR! code E404", models.ErrorInstallation, "Node.js not found"},
		{"sh: npx: command not found", models.ErrorInstallation, "Installation failed"},
		{"mkdir /usr/lib: permission denied", models.ErrorInstallation, "Permission denied"},
		{"Could not detect an MCP server from this URL", models.ErrorDetection, "Could not detect MCP server"},
		{"repository not found", models.ErrorDetection, "Could not detect MCP server"},
		{"insufficient permission for /opt", models.ErrorPermission, "Permission denied"},
		{"something odd happened", models.ErrorUnknown, "An unexpected error occurred"},
	}

	e := NewEngine()
	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			analysis := e.AnalyzeError(tt.err, Context{})
			assert.Equal(t, tt.category, analysis.ErrorType)
			assert.Equal(t, tt.message, analysis.Message)
			assert.Equal(t, tt.err, analysis.OriginalError)
			assert.NotEmpty(t, analysis.PossibleCauses)
			assert.NotEmpty(t, analysis.Solutions)
			assert.Equal(t, tt.category, e.Classify(tt.err))
		})
	}
}

func TestPermissionErrorOffersCloudBridgeFirst(t *testing.T) {
	analysis := NewEngine().AnalyzeError("EACCES: permission denied", Context{Step: "installation"})

	require.Equal(t, models.ErrorPermission, analysis.ErrorType)
	require.NotEmpty(t, analysis.Solutions)
	top := analysis.Solutions[0]
	assert.Equal(t, "Use Cloud Bridge", top.Title)
	assert.Equal(t, models.PriorityHigh, top.Priority)
	require.NotEmpty(t, top.Steps)
	assert.Equal(t, models.IntentUseCloudBridge, top.Steps[0].Intent)
	assert.Nil(t, analysis.QuickFix)
}

func TestClassificationIsOrderStable(t *testing.T) {
	e := NewEngine()
	// matches connection, installation and detection keywords
	msg := "npm install: connection to registry not found"

	first := e.Classify(msg)
	assert.Equal(t, models.ErrorConnection, first)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, e.AnalyzeError(msg, Context{}).ErrorType)
	}
}

func TestQuickFixOnlyForConnectionAndAuth(t *testing.T) {
	e := NewEngine()

	assert.NotNil(t, e.AnalyzeError("network unreachable", Context{}).QuickFix)
	assert.NotNil(t, e.AnalyzeError("unauthorized", Context{}).QuickFix)

	for _, msg := range []string{"npm missing", "parse failure", "eperm", "boom"} {
		assert.Nil(t, e.AnalyzeError(msg, Context{}).QuickFix, msg)
	}
}

func TestGenericAnalysisOffersRefresh(t *testing.T) {
	analysis := NewEngine().AnalyzeError("", Context{})

	assert.Equal(t, models.ErrorUnknown, analysis.ErrorType)
	require.Len(t, analysis.Solutions, 1)
	steps := analysis.Solutions[0].Steps
	require.Len(t, steps, 3)
	assert.Equal(t, models.IntentRefresh, steps[0].Intent)
	assert.Equal(t, "Clear browser cache", steps[1].Title)
	assert.Equal(t, "Try different browser", steps[2].Title)
}

func TestAuthAnalysisNamesProvider(t *testing.T) {
	analysis := NewEngine().AnalyzeError("authentication failed", Context{Provider: "GitHub"})
	assert.Equal(t, "Try the GitHub OAuth flow again", analysis.Solutions[0].Steps[1].Description)
}

func TestCommonSolutions(t *testing.T) {
	solutions := CommonSolutions()
	require.Len(t, solutions, 3)
	assert.Equal(t, "Enable Pop-ups", solutions[0].Title)
	assert.Equal(t, "Install Node.js", solutions[1].Title)
	assert.Equal(t, "https://nodejs.org/download", solutions[1].Steps[0].ActionData)
	assert.Equal(t, "Fix Network Issues", solutions[2].Title)
}

func TestDispatcher(t *testing.T) {
	var called []models.StepIntent
	d := NewDispatcher(Actions{
		Retry: func(context.Context) error {
			called = append(called, models.IntentRetry)
			return nil
		},
		UseCloudBridge: func(context.Context) error {
			return errors.New("cloud bridge unavailable")
		},
	})
	ctx := context.Background()

	outcome, err := d.Execute(ctx, models.TroubleshootingStep{Intent: models.IntentRetry, ActionLabel: "Use Cloud Bridge"})
	require.NoError(t, err)
	assert.True(t, outcome.Done)
	assert.Equal(t, []models.StepIntent{models.IntentRetry}, called)

	_, err = d.Execute(ctx, models.TroubleshootingStep{Intent: models.IntentUseCloudBridge})
	assert.EqualError(t, err, "cloud bridge unavailable")

	_, err = d.Execute(ctx, models.TroubleshootingStep{Intent: models.IntentRefresh})
	assert.ErrorIs(t, err, ErrIntentNotHandled)

	outcome, err = d.Execute(ctx, models.TroubleshootingStep{Intent: models.IntentOpenLink, ActionData: "https://nodejs.org/download"})
	require.NoError(t, err)
	assert.Equal(t, "https://nodejs.org/download", outcome.URL)

	outcome, err = d.Execute(ctx, models.TroubleshootingStep{Intent: models.IntentCopy, ActionData: "npm install -g npm"})
	require.NoError(t, err)
	assert.Equal(t, "npm install -g npm", outcome.Clipboard)

	outcome, err = d.Execute(ctx, models.TroubleshootingStep{Intent: models.IntentMarkDone})
	require.NoError(t, err)
	assert.True(t, outcome.Done)

	_, err = d.Execute(ctx, models.TroubleshootingStep{ActionLabel: "Retry Connection"})
	assert.ErrorIs(t, err, ErrUnknownIntent)
}

func TestCheckSystemRequirements(t *testing.T) {
	origLook, origRun := lookPath, runVersion
	t.Cleanup(func() { lookPath, runVersion = origLook, origRun })

	lookPath = func(name string) (string, error) {
		if name == "npm" {
			return "", errors.New("executable file not found in $PATH")
		}
		return "/usr/bin/" + name, nil
	}
	runVersion = func(context.Context, string) (string, error) {
		return "v18.17.0\n", nil
	}

	reqs := CheckSystemRequirements(context.Background())
	assert.True(t, reqs.Node.Installed)
	assert.Equal(t, "18.17.0", reqs.Node.Version)
	assert.True(t, reqs.Node.Satisfied)
	assert.Equal(t, ">=16.0.0", reqs.Node.Requirement)

	assert.False(t, reqs.NPM.Installed)
	assert.False(t, reqs.NPM.Satisfied)
	assert.Equal(t, ">=8.0.0", reqs.NPM.Requirement)
}

func TestCanonicalVersion(t *testing.T) {
	tests := map[string]string{
		"v18.17.0\n": "v18.17.0",
		"9.6.7":      "v9.6.7",
		"":           "",
		"not a ver":  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, canonicalVersion(in), in)
	}
}
