package services

import (
	"math"
	"strings"

	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/models"
)

const (
	officialOrg     = "modelcontextprotocol"
	officialSDK     = "@modelcontextprotocol/sdk"
	confidenceScale = 100
)

// ConfidenceScorer estimates how likely a package manifest describes an MCP server
type ConfidenceScorer struct {
	scoring catalog.Scoring
}

// NewConfidenceScorer creates a scorer using the weights and thresholds of the catalog
func NewConfidenceScorer(scoring catalog.Scoring) *ConfidenceScorer {
	return &ConfidenceScorer{scoring: scoring}
}

// Score adds up the weighted signals found in the manifest and the optional
// repository metadata. The result is clamped to [0, 1].
func (s *ConfidenceScorer) Score(manifest *models.PackageManifest, repo *models.RepoMetadata) float64 {
	if manifest == nil {
		return 0
	}
	w := s.scoring.Weights
	score := 0.0

	name := strings.ToLower(manifest.Name)
	if strings.Contains(name, "mcp") {
		score += w.NameMCP
	}
	if strings.Contains(name, "modelcontextprotocol") {
		score += w.NameModelContextProtocol
	}
	if strings.Contains(name, "server") {
		score += w.NameServer
	}

	description := strings.ToLower(manifest.Description)
	if strings.Contains(description, "mcp") {
		score += w.DescriptionMCP
	}
	if strings.Contains(description, "model context protocol") {
		score += w.DescriptionModelContextProtocol
	}
	if strings.Contains(description, "context server") {
		score += w.DescriptionContextServer
	}

	if hasKeyword(manifest.Keywords, "mcp") {
		score += w.KeywordMCP
	}
	if hasKeyword(manifest.Keywords, "modelcontextprotocol") {
		score += w.KeywordModelContextProtocol
	}

	if repo != nil && repo.Owner.Login == officialOrg {
		score += w.OfficialOrg
	}

	if manifest.HasDependency(officialSDK) {
		score += w.SDKDependency
	}

	return clamp01(score)
}

// Accepted reports whether a score is high enough to produce a candidate
func (s *ConfidenceScorer) Accepted(score float64) bool {
	return score >= s.scoring.AcceptThreshold
}

// Confirmed reports whether a score is high enough to proceed without doubt
func (s *ConfidenceScorer) Confirmed(score float64) bool {
	return score >= s.scoring.ConfirmThreshold
}

// Percent renders a score as a whole percentage
func Percent(score float64) int {
	return int(math.Round(score * confidenceScale))
}

func hasKeyword(keywords []string, want string) bool {
	for _, k := range keywords {
		if k == want {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
