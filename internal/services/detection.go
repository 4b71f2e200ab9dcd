package services

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
	"golang.org/x/sync/errgroup"
)

var nonIDChars = regexp.MustCompile(`[^a-z0-9-]`)

// ServerDetector turns a GitHub repository or npm package URL into a ServerInfo
type ServerDetector struct {
	github  *GitHubClient
	npm     *NPMClient
	scorer  *ConfidenceScorer
	catalog *catalog.Catalog
}

// NewServerDetector creates a new ServerDetector
func NewServerDetector(github *GitHubClient, npm *NPMClient, scorer *ConfidenceScorer, cat *catalog.Catalog) *ServerDetector {
	return &ServerDetector{
		github:  github,
		npm:     npm,
		scorer:  scorer,
		catalog: cat,
	}
}

// Scorer returns the scorer the detector filters candidates with
func (d *ServerDetector) Scorer() *ConfidenceScorer {
	return d.scorer
}

// DetectFromURL returns nil when the URL is unsupported, any fetch or parse
// step fails, or the confidence is below the accept threshold. A non-nil
// result may still be below the confirm threshold.
func (d *ServerDetector) DetectFromURL(ctx context.Context, rawURL string) *models.ServerInfo {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		logger.WithField("url", rawURL).Debug("Detection skipped: unparseable URL")
		return nil
	}

	switch strings.ToLower(u.Hostname()) {
	case "github.com", "www.github.com":
		return d.detectFromGitHub(ctx, u, rawURL)
	case "npmjs.com", "www.npmjs.com":
		return d.detectFromNPM(ctx, u, rawURL)
	default:
		logger.WithField("host", u.Hostname()).Debug("Detection skipped: unsupported host")
		return nil
	}
}

func (d *ServerDetector) detectFromGitHub(ctx context.Context, u *url.URL, sourceURL string) *models.ServerInfo {
	segments := pathSegments(u.Path)
	if len(segments) < 2 {
		return nil
	}
	owner := segments[0]
	repo := strings.TrimSuffix(segments[1], ".git")

	log := logger.WithFields(map[string]interface{}{
		"source": models.SourceGitHub,
		"owner":  owner,
		"repo":   repo,
	})

	var (
		meta     *models.RepoMetadata
		manifest *models.PackageManifest
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		meta, err = d.github.GetRepository(gctx, owner, repo)
		return err
	})
	g.Go(func() error {
		var err error
		manifest, err = d.github.GetManifest(gctx, owner, repo)
		return err
	})
	if err := g.Wait(); err != nil {
		log.WithField("error", err.Error()).Info("GitHub detection failed")
		return nil
	}
	if !validManifest(manifest) {
		log.Info("GitHub detection rejected: invalid package.json")
		return nil
	}

	confidence := d.scorer.Score(manifest, meta)
	if !d.scorer.Accepted(confidence) {
		log.WithField("confidence", confidence).Info("GitHub detection rejected: low confidence")
		return nil
	}

	readme, err := d.github.GetReadme(ctx, owner, repo)
	if err != nil {
		log.WithField("error", err.Error()).Debug("README unavailable")
	}
	reqs := ExtractRequirements(readme, d.catalog)

	description := firstNonEmpty(meta.Description, manifest.Description, "MCP Server")
	name := firstNonEmpty(meta.Name, repo)
	target := owner + "/" + repo

	info := &models.ServerInfo{
		ID:              strings.ToLower(owner + "-" + repo),
		Name:            name,
		Description:     description,
		Version:         manifest.Version,
		Author:          manifest.AuthorName(),
		Homepage:        meta.HTMLURL,
		Repository:      meta.CloneURL,
		InstallCommand:  "npx",
		InstallArgs:     []string{"-y", target},
		Command:         "npx",
		Args:            []string{"-y", target},
		Env:             reqs.Env,
		RequiresAuth:    reqs.RequiresAuth,
		AuthProviders:   reqs.AuthProviders,
		RequiredEnvVars: reqs.EnvVars,
		Category:        Categorize(manifest, d.catalog),
		Tags:            tagsOf(manifest),
		Source:          models.SourceGitHub,
		SourceURL:       sourceURL,
		Confidence:      confidence,
	}

	log.WithFields(map[string]interface{}{
		"server_id":     info.ID,
		"confidence":    confidence,
		"requires_auth": info.RequiresAuth,
	}).Info("MCP server detected")
	return info
}

func (d *ServerDetector) detectFromNPM(ctx context.Context, u *url.URL, sourceURL string) *models.ServerInfo {
	pkg := npmPackageName(u.Path)
	if pkg == "" {
		return nil
	}

	log := logger.WithFields(map[string]interface{}{
		"source":  models.SourceNPM,
		"package": pkg,
	})

	manifest, err := d.npm.GetLatest(ctx, pkg)
	if err != nil {
		log.WithField("error", err.Error()).Info("npm detection failed")
		return nil
	}
	if !validManifest(manifest) {
		log.Info("npm detection rejected: invalid manifest")
		return nil
	}

	confidence := d.scorer.Score(manifest, nil)
	if !d.scorer.Accepted(confidence) {
		log.WithField("confidence", confidence).Info("npm detection rejected: low confidence")
		return nil
	}

	readme, err := d.npm.GetReadme(ctx, pkg)
	if err != nil {
		log.WithField("error", err.Error()).Debug("README unavailable")
	}
	reqs := ExtractRequirements(readme, d.catalog)

	info := &models.ServerInfo{
		ID:              nonIDChars.ReplaceAllString(strings.ToLower(pkg), "-"),
		Name:            manifest.Name,
		Description:     firstNonEmpty(manifest.Description, "MCP Server"),
		Version:         manifest.Version,
		Author:          manifest.AuthorName(),
		Homepage:        manifest.Homepage,
		Repository:      manifest.RepositoryURL(),
		InstallCommand:  "npm",
		InstallArgs:     []string{"install", "-g", pkg},
		Command:         "npx",
		Args:            []string{"-y", pkg},
		Env:             reqs.Env,
		RequiresAuth:    reqs.RequiresAuth,
		AuthProviders:   reqs.AuthProviders,
		RequiredEnvVars: reqs.EnvVars,
		Category:        Categorize(manifest, d.catalog),
		Tags:            tagsOf(manifest),
		Source:          models.SourceNPM,
		SourceURL:       sourceURL,
		Confidence:      confidence,
	}

	log.WithFields(map[string]interface{}{
		"server_id":     info.ID,
		"confidence":    confidence,
		"requires_auth": info.RequiresAuth,
	}).Info("MCP server detected")
	return info
}

func validManifest(m *models.PackageManifest) bool {
	return m != nil && strings.TrimSpace(m.Name) != ""
}

// npmPackageName extracts the package from /package/<name> or /package/@scope/<name>
func npmPackageName(path string) string {
	segments := pathSegments(path)
	if len(segments) < 2 || segments[0] != "package" {
		return ""
	}
	if strings.HasPrefix(segments[1], "@") {
		if len(segments) < 3 {
			return ""
		}
		return segments[1] + "/" + segments[2]
	}
	return segments[1]
}

func pathSegments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func tagsOf(m *models.PackageManifest) []string {
	if len(m.Keywords) == 0 {
		return []string{}
	}
	return append([]string(nil), m.Keywords...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
