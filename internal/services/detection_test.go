package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serverGitHubReadme = `# GitHub MCP Server

Set GITHUB_PERSONAL_ACCESS_TOKEN=<your token> before starting.
GITHUB_PERSONAL_ACCESS_TOKEN (required)

Optional: LOG_LEVEL = info
`

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func encodedContent(t *testing.T, v interface{}) map[string]string {
	t.Helper()
	var raw []byte
	switch s := v.(type) {
	case string:
		raw = []byte(s)
	default:
		var err error
		raw, err = json.Marshal(v)
		require.NoError(t, err)
	}
	return map[string]string{"content": base64.StdEncoding.EncodeToString(raw), "encoding": "base64"}
}

func newGitHubAPI(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/modelcontextprotocol/server-github", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{
			"name":        "server-github",
			"full_name":   "modelcontextprotocol/server-github",
			"description": "MCP server for the GitHub API",
			"html_url":    "https://github.com/modelcontextprotocol/server-github",
			"clone_url":   "https://github.com/modelcontextprotocol/server-github.git",
			"owner":       map[string]string{"login": "modelcontextprotocol", "type": "Organization"},
		})
	})
	mux.HandleFunc("/repos/modelcontextprotocol/server-github/contents/package.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, encodedContent(t, map[string]interface{}{
			"name":         "@modelcontextprotocol/server-github",
			"version":      "0.6.2",
			"description":  "MCP server for using the GitHub API",
			"author":       map[string]string{"name": "Anthropic, PBC"},
			"keywords":     []string{"mcp", "github"},
			"dependencies": map[string]string{"@modelcontextprotocol/sdk": "1.0.1"},
		}))
	})
	mux.HandleFunc("/repos/modelcontextprotocol/server-github/readme", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, encodedContent(t, serverGitHubReadme))
	})
	mux.HandleFunc("/repos/acme/left-pad", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"name": "left-pad", "owner": map[string]string{"login": "acme"}})
	})
	mux.HandleFunc("/repos/acme/left-pad/contents/package.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, encodedContent(t, map[string]interface{}{"name": "left-pad", "description": "pads strings"}))
	})
	mux.HandleFunc("/repos/acme/broken", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"name": "broken", "owner": map[string]string{"login": "acme"}})
	})
	mux.HandleFunc("/repos/acme/broken/contents/package.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, encodedContent(t, map[string]interface{}{"description": "mcp server without a name"}))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newNPMRegistry(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case "/mcp-server-notion/latest":
			writeJSON(t, w, map[string]interface{}{
				"name":        "mcp-server-notion",
				"version":     "1.2.0",
				"description": "Model Context Protocol server for Notion",
				"author":      "jane",
				"repository":  map[string]string{"url": "git+https://github.com/jane/mcp-server-notion.git"},
				"keywords":    []string{"mcp", "notion"},
			})
		case "/mcp-server-notion":
			writeJSON(t, w, map[string]string{"readme": "Connect your Notion workspace.\nNOTION_API_KEY=secret_xxx\n"})
		case "/@acme%2Fmcp-tools/latest":
			writeJSON(t, w, map[string]interface{}{
				"name":         "@acme/mcp-tools",
				"description":  "mcp tools",
				"dependencies": map[string]string{"@modelcontextprotocol/sdk": "1.0.0"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestDetector(t *testing.T) *ServerDetector {
	gh := newGitHubAPI(t)
	npm := newNPMRegistry(t)
	cat := catalog.Default()
	return NewServerDetector(
		NewGitHubClient(gh.URL, gh.Client()),
		NewNPMClient(npm.URL, npm.Client()),
		NewConfidenceScorer(cat.Scoring),
		cat,
	)
}

func TestDetectOfficialGitHubServer(t *testing.T) {
	d := newTestDetector(t)

	info := d.DetectFromURL(context.Background(), "https://github.com/modelcontextprotocol/server-github")
	require.NotNil(t, info)

	assert.GreaterOrEqual(t, info.Confidence, 0.9)
	assert.Equal(t, "modelcontextprotocol-server-github", info.ID)
	assert.Equal(t, "server-github", info.Name)
	assert.Equal(t, "Anthropic, PBC", info.Author)
	assert.Equal(t, models.SourceGitHub, info.Source)
	assert.Equal(t, models.CategoryDeveloperTools, info.Category)
	assert.Equal(t, []string{"-y", "modelcontextprotocol/server-github"}, info.Args)

	assert.True(t, info.RequiresAuth)
	assert.Contains(t, info.ProviderIDs(), "github")

	vars := make(map[string]models.EnvVarRequirement)
	for _, v := range info.RequiredEnvVars {
		vars[v.Name] = v
	}
	assert.Equal(t, models.EnvSourceOAuth, vars["GITHUB_TOKEN"].Source)
	assert.True(t, vars["GITHUB_PERSONAL_ACCESS_TOKEN"].Required)
	assert.False(t, vars["LOG_LEVEL"].Required)
}

func TestDetectReturnsNil(t *testing.T) {
	d := newTestDetector(t)

	tests := map[string]string{
		"unsupported host":      "https://gitlab.com/modelcontextprotocol/server-github",
		"missing repository":    "https://github.com/acme/does-not-exist",
		"low confidence":        "https://github.com/acme/left-pad",
		"manifest without name": "https://github.com/acme/broken",
		"owner only":            "https://github.com/acme",
		"garbage":               "::not a url::",
		"npm unknown package":   "https://www.npmjs.com/package/nope",
		"npm non-package path":  "https://www.npmjs.com/search?q=mcp",
	}
	for name, url := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, d.DetectFromURL(context.Background(), url))
		})
	}
}

func TestDetectFromNPM(t *testing.T) {
	d := newTestDetector(t)

	info := d.DetectFromURL(context.Background(), "https://www.npmjs.com/package/mcp-server-notion")
	require.NotNil(t, info)

	assert.Equal(t, "mcp-server-notion", info.ID)
	assert.Equal(t, models.SourceNPM, info.Source)
	assert.Equal(t, "npm", info.InstallCommand)
	assert.Equal(t, []string{"install", "-g", "mcp-server-notion"}, info.InstallArgs)
	assert.Equal(t, "https://github.com/jane/mcp-server-notion", info.Repository)
	assert.Equal(t, "jane", info.Author)
	assert.Equal(t, models.CategoryProjectManagement, info.Category)
	assert.Equal(t, []string{"notion"}, info.ProviderIDs())
}

func TestDetectScopedNPMPackage(t *testing.T) {
	d := newTestDetector(t)

	info := d.DetectFromURL(context.Background(), "https://npmjs.com/package/@acme/mcp-tools")
	require.NotNil(t, info)
	assert.Equal(t, "-acme-mcp-tools", info.ID)
	assert.False(t, info.RequiresAuth)
	assert.Empty(t, info.AuthProviders)
}
