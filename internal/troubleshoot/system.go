package troubleshoot

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
)

const (
	nodeRequirement = "v16.0.0"
	npmRequirement  = "v8.0.0"
	versionTimeout  = 5 * time.Second
)

// lookPath and runVersion are replaced in tests
var (
	lookPath   = exec.LookPath
	runVersion = func(ctx context.Context, path string) (string, error) {
		out, err := exec.CommandContext(ctx, path, "--version").Output()
		return string(out), err
	}
)

// CheckSystemRequirements reports whether node and npm are installed on
// this host and new enough to run MCP servers locally
func CheckSystemRequirements(ctx context.Context) models.SystemRequirements {
	return models.SystemRequirements{
		Node: checkRuntime(ctx, "node", nodeRequirement),
		NPM:  checkRuntime(ctx, "npm", npmRequirement),
	}
}

func checkRuntime(ctx context.Context, name, minimum string) models.RuntimeCheck {
	check := models.RuntimeCheck{Requirement: ">=" + strings.TrimPrefix(minimum, "v")}

	path, err := lookPath(name)
	if err != nil {
		return check
	}
	check.Installed = true

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := runVersion(ctx, path)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"runtime": name,
			"error":   err.Error(),
		}).Warn("Failed to read runtime version")
		return check
	}

	version := canonicalVersion(out)
	if version == "" {
		return check
	}
	check.Version = strings.TrimPrefix(version, "v")
	check.Satisfied = semver.Compare(version, minimum) >= 0
	return check
}

// canonicalVersion turns "v18.17.0\n" or "9.6.7" into a semver string, or ""
func canonicalVersion(out string) string {
	v := strings.TrimSpace(out)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
