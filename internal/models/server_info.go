package models

import (
	"encoding/json"
	"strings"
)

// Category is the closed set of server categories
type Category string

const (
	CategoryDeveloperTools    Category = "developer-tools"
	CategoryProjectManagement Category = "project-management"
	CategoryDesign            Category = "design"
	CategoryCommunication     Category = "communication"
	CategoryDatabase          Category = "database"
	CategoryFilesystem        Category = "filesystem"
	CategorySearch            Category = "search"
	CategoryOther             Category = "other"
)

// ServerSource records where a server descriptor came from
type ServerSource string

const (
	SourceGitHub ServerSource = "github"
	SourceNPM    ServerSource = "npm"
	SourceManual ServerSource = "manual"
)

// EnvVarSource says whether a variable is filled from an OAuth token or by hand
type EnvVarSource string

const (
	EnvSourceOAuth  EnvVarSource = "oauth"
	EnvSourceManual EnvVarSource = "manual"
)

// AuthProviderRequirement is an OAuth provider a server needs a token from
type AuthProviderRequirement struct {
	Provider     string   `json:"provider"`
	Name         string   `json:"name"`
	Scopes       []string `json:"scopes"`
	Instructions string   `json:"instructions,omitempty"`
}

// EnvVarRequirement is an environment variable a server expects at launch
type EnvVarRequirement struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Required    bool         `json:"required"`
	Source      EnvVarSource `json:"source"`
}

// ServerInfo is the descriptor produced by a single detection attempt.
// It is treated as immutable once returned by the detector.
type ServerInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version,omitempty"`
	Author      string `json:"author,omitempty"`
	Homepage    string `json:"homepage,omitempty"`
	Repository  string `json:"repository,omitempty"`

	InstallCommand string   `json:"install_command"`
	InstallArgs    []string `json:"install_args"`

	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`

	RequiresAuth    bool                      `json:"requires_auth"`
	AuthProviders   []AuthProviderRequirement `json:"auth_providers"`
	RequiredEnvVars []EnvVarRequirement       `json:"required_env_vars"`

	Category   Category     `json:"category"`
	Tags       []string     `json:"tags"`
	Source     ServerSource `json:"source"`
	SourceURL  string       `json:"source_url"`
	Confidence float64      `json:"confidence"`
}

// Clone returns a deep copy of the descriptor
func (s *ServerInfo) Clone() *ServerInfo {
	c := *s
	c.InstallArgs = cloneStrings(s.InstallArgs)
	c.Args = cloneStrings(s.Args)
	c.Tags = cloneStrings(s.Tags)
	if s.Env != nil {
		c.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			c.Env[k] = v
		}
	}
	if s.AuthProviders != nil {
		c.AuthProviders = make([]AuthProviderRequirement, len(s.AuthProviders))
		for i, p := range s.AuthProviders {
			p.Scopes = cloneStrings(p.Scopes)
			c.AuthProviders[i] = p
		}
	}
	if s.RequiredEnvVars != nil {
		c.RequiredEnvVars = append([]EnvVarRequirement{}, s.RequiredEnvVars...)
	}
	return &c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

// ProviderIDs returns the keys of the required OAuth providers, in order
func (s *ServerInfo) ProviderIDs() []string {
	ids := make([]string, 0, len(s.AuthProviders))
	for _, p := range s.AuthProviders {
		ids = append(ids, p.Provider)
	}
	return ids
}

// ServerConfig returns the launch configuration derived from the descriptor
func (s *ServerInfo) ServerConfig() ServerConfig {
	env := make(map[string]string, len(s.Env))
	for k, v := range s.Env {
		env[k] = v
	}
	return ServerConfig{
		ID:      s.ID,
		Name:    s.Name,
		Command: s.Command,
		Args:    append([]string(nil), s.Args...),
		Env:     env,
	}
}

// PackageManifest is the subset of a package.json the detector inspects
type PackageManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description"`
	Keywords        []string          `json:"keywords"`
	Homepage        string            `json:"homepage"`
	Author          json.RawMessage   `json:"author,omitempty"`
	Repository      json.RawMessage   `json:"repository,omitempty"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// AuthorName returns the author whether it was declared as a string or an object
func (m *PackageManifest) AuthorName() string {
	return stringOrField(m.Author, "name")
}

// RepositoryURL returns the repository whether it was declared as a string or an object
func (m *PackageManifest) RepositoryURL() string {
	url := stringOrField(m.Repository, "url")
	url = strings.TrimPrefix(url, "git+")
	return strings.TrimSuffix(url, ".git")
}

// HasDependency reports whether name appears in dependencies or devDependencies
func (m *PackageManifest) HasDependency(name string) bool {
	if _, ok := m.Dependencies[name]; ok {
		return true
	}
	_, ok := m.DevDependencies[name]
	return ok
}

func stringOrField(raw json.RawMessage, field string) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if v, ok := obj[field].(string); ok {
		return v
	}
	return ""
}

// RepoOwner is the owner block of a GitHub repository
type RepoOwner struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

// RepoMetadata is the subset of GitHub repository metadata the detector uses
type RepoMetadata struct {
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	HTMLURL     string    `json:"html_url"`
	CloneURL    string    `json:"clone_url"`
	Homepage    string    `json:"homepage"`
	Topics      []string  `json:"topics"`
	Owner       RepoOwner `json:"owner"`
}
