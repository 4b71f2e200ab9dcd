package services

import (
	"regexp"
	"strings"

	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/models"
)

// Requirements is what a README says a server needs before it can run
type Requirements struct {
	RequiresAuth  bool
	AuthProviders []models.AuthProviderRequirement
	EnvVars       []models.EnvVarRequirement
	Env           map[string]string
}

type providerRule struct {
	provider       string
	matches        func(readme string) bool
	scopes         []string
	instructions   string
	envDescription string
}

var providerRules = []providerRule{
	{
		provider: "github",
		matches: func(readme string) bool {
			return strings.Contains(readme, "github") &&
				(strings.Contains(readme, "token") || strings.Contains(readme, "oauth"))
		},
		scopes:         []string{"repo", "read:user"},
		instructions:   "Access to repositories and user information",
		envDescription: "GitHub personal access token",
	},
	{
		provider:       "notion",
		matches:        func(readme string) bool { return strings.Contains(readme, "notion") },
		scopes:         []string{"read_content", "read_user_with_email"},
		instructions:   "Access to Notion pages and databases",
		envDescription: "Notion integration token",
	},
	{
		provider:       "linear",
		matches:        func(readme string) bool { return strings.Contains(readme, "linear") },
		scopes:         []string{"read"},
		instructions:   "Access to Linear issues and projects",
		envDescription: "Linear API key",
	},
}

var envAssignment = regexp.MustCompile(`\b([A-Z_]+)\s*=[ \t]*([^\r\n]*)`)

// ExtractRequirements scans README text for OAuth providers and environment
// variables. Provider keywords are matched case-insensitively; variable names
// are harvested from NAME=value lines.
func ExtractRequirements(readme string, cat *catalog.Catalog) Requirements {
	req := Requirements{
		AuthProviders: []models.AuthProviderRequirement{},
		EnvVars:       []models.EnvVarRequirement{},
		Env:           map[string]string{},
	}
	lower := strings.ToLower(readme)
	seen := make(map[string]bool)

	for _, rule := range providerRules {
		if !rule.matches(lower) {
			continue
		}
		name := rule.provider
		if p, err := cat.Provider(rule.provider); err == nil {
			name = p.Name
		}
		req.AuthProviders = append(req.AuthProviders, models.AuthProviderRequirement{
			Provider:     rule.provider,
			Name:         name,
			Scopes:       append([]string(nil), rule.scopes...),
			Instructions: rule.instructions,
		})

		envVar := cat.EnvVarFor(rule.provider)
		seen[envVar] = true
		req.EnvVars = append(req.EnvVars, models.EnvVarRequirement{
			Name:        envVar,
			Description: rule.envDescription,
			Required:    true,
			Source:      models.EnvSourceOAuth,
		})
	}

	for _, m := range envAssignment.FindAllStringSubmatch(readme, -1) {
		name := m[1]
		if !plausibleEnvName(name) || seen[name] {
			continue
		}
		seen[name] = true
		req.EnvVars = append(req.EnvVars, models.EnvVarRequirement{
			Name:        name,
			Description: strings.TrimSpace(m[2]),
			Required:    strings.Contains(readme, name+" (required)") || strings.Contains(readme, "Required: "+name),
			Source:      models.EnvSourceManual,
		})
	}

	req.RequiresAuth = len(req.AuthProviders) > 0
	return req
}

func plausibleEnvName(name string) bool {
	return len(name) >= 3 && strings.Trim(name, "_") != ""
}

// Categorize returns the first catalog category with a keyword found in the
// manifest name, description or keywords
func Categorize(manifest *models.PackageManifest, cat *catalog.Catalog) models.Category {
	text := strings.ToLower(manifest.Name + " " + manifest.Description + " " + strings.Join(manifest.Keywords, " "))
	for _, c := range cat.Categories {
		for _, kw := range c.Keywords {
			if strings.Contains(text, kw) {
				return models.Category(c.Name)
			}
		}
	}
	return models.CategoryOther
}
