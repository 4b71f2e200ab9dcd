// Package catalog holds the static tables the setup pipeline is driven by:
// OAuth providers, predefined servers, scorer weights, category keywords
// and rate limits. The defaults are embedded; a YAML file with the same
// shape can replace them at startup.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var ErrUnknownProvider = errors.New("unknown oauth provider")

// Provider is the static configuration of one OAuth provider
type Provider struct {
	ID             string   `yaml:"id" json:"id"`
	Name           string   `yaml:"name" json:"name"`
	AuthURL        string   `yaml:"auth_url" json:"auth_url"`
	TokenURL       string   `yaml:"token_url" json:"token_url"`
	Scopes         []string `yaml:"scopes" json:"scopes"`
	ScopeSeparator string   `yaml:"scope_separator" json:"-"`
	EnvVar         string   `yaml:"env_var" json:"env_var"`
	Instructions   string   `yaml:"instructions" json:"instructions"`
}

// PredefinedServer is a server that can be connected without detection
type PredefinedServer struct {
	ID          string            `yaml:"id" json:"id"`
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Env         map[string]string `yaml:"env" json:"env,omitempty"`
}

// Weights are the points awarded per manifest signal by the confidence scorer
type Weights struct {
	NameMCP                         float64 `yaml:"name_mcp"`
	NameModelContextProtocol        float64 `yaml:"name_modelcontextprotocol"`
	NameServer                      float64 `yaml:"name_server"`
	DescriptionMCP                  float64 `yaml:"description_mcp"`
	DescriptionModelContextProtocol float64 `yaml:"description_model_context_protocol"`
	DescriptionContextServer        float64 `yaml:"description_context_server"`
	KeywordMCP                      float64 `yaml:"keyword_mcp"`
	KeywordModelContextProtocol     float64 `yaml:"keyword_modelcontextprotocol"`
	OfficialOrg                     float64 `yaml:"official_org"`
	SDKDependency                   float64 `yaml:"sdk_dependency"`
}

// Scoring bundles the scorer weights with the two acceptance thresholds
type Scoring struct {
	AcceptThreshold  float64 `yaml:"accept_threshold"`
	ConfirmThreshold float64 `yaml:"confirm_threshold"`
	Weights          Weights `yaml:"weights"`
}

// Category maps a server category to the keywords that select it
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// RateLimit is the request budget of one rate-limited endpoint
type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Catalog is the parsed form of catalog.yaml
type Catalog struct {
	Providers         []Provider           `yaml:"providers"`
	PredefinedServers []PredefinedServer   `yaml:"predefined_servers"`
	Scoring           Scoring              `yaml:"scoring"`
	Categories        []Category           `yaml:"categories"`
	RateLimits        map[string]RateLimit `yaml:"rate_limits"`
}

// Default returns the embedded catalog
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from path, or returns the embedded one when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" || p.AuthURL == "" || p.TokenURL == "" {
			return fmt.Errorf("provider %q is missing id, auth_url or token_url", p.Name)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %q is declared twice", p.ID)
		}
		seen[p.ID] = true
	}

	s := c.Scoring
	if s.AcceptThreshold <= 0 || s.AcceptThreshold > s.ConfirmThreshold || s.ConfirmThreshold > 1 {
		return fmt.Errorf("scoring thresholds must satisfy 0 < accept (%v) <= confirm (%v) <= 1",
			s.AcceptThreshold, s.ConfirmThreshold)
	}

	for name, rl := range c.RateLimits {
		if rl.Requests <= 0 || rl.Window <= 0 {
			return fmt.Errorf("rate limit %q needs positive requests and window", name)
		}
	}
	return nil
}

// Provider looks up a provider by id
func (c *Catalog) Provider(id string) (Provider, error) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, nil
		}
	}
	return Provider{}, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
}

// ProviderIDs returns the ids of every declared provider in catalog order
func (c *Catalog) ProviderIDs() []string {
	ids := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		ids = append(ids, p.ID)
	}
	return ids
}

// EnvVarFor returns the environment variable an access token for providerID
// is exposed as. Providers without an entry map to <PROVIDER>_TOKEN.
func (c *Catalog) EnvVarFor(providerID string) string {
	for _, p := range c.Providers {
		if p.ID == providerID && p.EnvVar != "" {
			return p.EnvVar
		}
	}
	return strings.ToUpper(strings.ReplaceAll(providerID, "-", "_")) + "_TOKEN"
}

// PredefinedServer looks up a predefined server by id
func (c *Catalog) PredefinedServer(id string) (PredefinedServer, bool) {
	for _, s := range c.PredefinedServers {
		if s.ID == id {
			return s, true
		}
	}
	return PredefinedServer{}, false
}
