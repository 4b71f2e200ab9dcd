package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/services"
	"github.com/imyashkale/mcpbridge/internal/troubleshoot"
)

const (
	progressDetection   = 10
	progressServerInfo  = 30
	progressOAuth       = 50
	progressInstalling  = 70
	progressConnecting  = 80
	progressCloudStart  = 75
	progressCloudCreate = 85
	progressDone        = 100
)

const (
	msgNotDetected       = "Could not detect an MCP server from this URL. Please check the URL and try again."
	msgMissingConnection = "Missing connections: please connect all required services before continuing"
)

var (
	ErrSessionBusy            = errors.New("setup session is busy")
	ErrInvalidTransition      = errors.New("action not allowed in the current step")
	ErrCloseRefused           = errors.New("setup in progress, please wait for the installation to complete")
	ErrEmptyURL               = errors.New("url is required")
	ErrUnknownProvider        = errors.New("provider is not required by this server")
	ErrCloudBridgeUnavailable = errors.New("cloud bridge is not available")
)

// Detector finds an MCP server behind a URL
type Detector interface {
	DetectFromURL(ctx context.Context, rawURL string) *models.ServerInfo
	Scorer() *services.ConfidenceScorer
}

// Authorizer runs the OAuth side of setup
type Authorizer interface {
	StartOAuth(userID, providerID, serverContext string) (*services.OAuthFlow, error)
	CheckRequiredConnections(ctx context.Context, userID string, providers []string) models.RequiredConnectionsResponse
	GenerateEnvVars(ctx context.Context, userID string, providers []string) (map[string]string, error)
	AccessTokens(ctx context.Context, userID string, providers []string) (map[string]string, error)
}

// Installer connects a server locally
type Installer interface {
	Connect(ctx context.Context, userID string, cfg models.ServerConfig) (*models.MCPConnection, error)
}

// CloudProvisioner runs a server on the cloud bridge
type CloudProvisioner interface {
	IsAvailable(ctx context.Context) bool
	CreateInstance(ctx context.Context, userID string, info models.ServerInfo, oauthTokens map[string]string) (*models.CloudBridgeInstance, error)
}

// Analyzer explains errors
type Analyzer interface {
	AnalyzeError(err string, c troubleshoot.Context) models.ErrorAnalysis
}

// Deps are the collaborators a session drives
type Deps struct {
	Detector  Detector
	OAuth     Authorizer
	Installer Installer
	Cloud     CloudProvisioner
	Analyzer  Analyzer
}

// Session is one user's walk through the setup wizard. Actions run one at a
// time; an action arriving while another is in flight fails with ErrSessionBusy.
type Session struct {
	id     string
	userID string
	deps   Deps
	log    *logrus.Entry

	mu             sync.Mutex
	busy           bool
	closed         bool
	step           models.SetupStep
	progress       int
	url            string
	info           *models.ServerInfo
	connected      []string
	missing        []string
	errMsg         string
	analysis       *models.ErrorAnalysis
	notice         string
	cloudMode      bool
	cloudAvailable bool
	instance       *models.CloudBridgeInstance
	logs           *services.InstallLogger
}

func newSession(id, userID string, deps Deps, cloudAvailable bool) *Session {
	return &Session{
		id:     id,
		userID: userID,
		deps:   deps,
		log: logger.Component("setup").WithFields(map[string]interface{}{
			"session_id": id,
			"user_id":    userID,
		}),
		step:           models.StepURLInput,
		connected:      []string{},
		missing:        []string{},
		cloudAvailable: cloudAvailable,
		logs:           services.NewInstallLogger(),
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// begin claims the session for one action that may run in any of steps
func (s *Session) begin(steps ...models.SetupStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNoSession
	}
	if s.busy {
		return ErrSessionBusy
	}
	if len(steps) > 0 && !stepIn(s.step, steps) {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, s.step)
	}
	s.busy = true
	s.notice = ""
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// enter moves into a step that must not be interrupted. It fails once the
// session has been closed, so a close and an installation never overlap.
func (s *Session) enter(step models.SetupStep, progress int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.step = step
	s.progress = progress
	return true
}

// retire closes the session unless an installation or cloud provisioning
// has already started. A retired session refuses every further action.
func (s *Session) retire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step == models.StepInstallation || s.step == models.StepCloudBridge {
		return false
	}
	s.closed = true
	return true
}

func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
}

func (s *Session) moveTo(step models.SetupStep, progress int) {
	s.update(func() {
		s.step = step
		s.progress = progress
	})
	s.log.WithFields(map[string]interface{}{
		"step":     string(step),
		"progress": progress,
	}).Debug("Setup step changed")
}

// fail moves the session to error and attaches the troubleshooting analysis
func (s *Session) fail(message string) {
	s.mu.Lock()
	from := s.step
	s.mu.Unlock()

	analysis := s.deps.Analyzer.AnalyzeError(message, troubleshoot.Context{Step: string(from)})
	s.update(func() {
		s.step = models.StepError
		s.errMsg = message
		s.analysis = &analysis
	})
	s.log.WithFields(map[string]interface{}{
		"from":       string(from),
		"error_type": string(analysis.ErrorType),
		"error":      message,
	}).Warn("Setup failed")
}

// Submit detects the server behind rawURL
func (s *Session) Submit(ctx context.Context, rawURL string) (*models.SetupSnapshot, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrEmptyURL
	}
	if err := s.begin(models.StepURLInput); err != nil {
		return nil, err
	}
	defer s.end()

	s.update(func() {
		s.url = rawURL
		s.errMsg = ""
		s.analysis = nil
	})
	s.moveTo(models.StepDetection, progressDetection)

	info := s.deps.Detector.DetectFromURL(ctx, rawURL)
	switch {
	case info == nil:
		s.fail(msgNotDetected)
	case !s.deps.Detector.Scorer().Confirmed(info.Confidence):
		s.fail(fmt.Sprintf(
			"This doesn't appear to be an MCP server (confidence: %d%%). Please provide a URL to an MCP server repository.",
			services.Percent(info.Confidence)))
	default:
		detected := info.Clone()
		s.update(func() { s.info = detected })
		s.moveTo(models.StepServerInfo, progressServerInfo)
	}
	return s.Snapshot(), nil
}

// Confirm accepts the detected server. Servers that need OAuth go to
// oauth-setup; the rest are installed right away.
func (s *Session) Confirm(ctx context.Context) (*models.SetupSnapshot, error) {
	if err := s.begin(models.StepServerInfo); err != nil {
		return nil, err
	}
	defer s.end()

	info := s.serverInfo()
	if info.RequiresAuth {
		s.recheck(ctx, info)
		s.moveTo(models.StepOAuthSetup, progressOAuth)
		return s.Snapshot(), nil
	}

	if err := s.install(ctx, info); err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// Back returns from server-info to url-input and from oauth-setup to server-info
func (s *Session) Back() (*models.SetupSnapshot, error) {
	if err := s.begin(models.StepServerInfo, models.StepOAuthSetup); err != nil {
		return nil, err
	}
	defer s.end()

	s.update(func() {
		if s.step == models.StepOAuthSetup {
			s.step = models.StepServerInfo
			s.progress = progressServerInfo
			return
		}
		s.step = models.StepURLInput
		s.progress = 0
	})
	return s.Snapshot(), nil
}

// ConnectProvider opens the authorization popup for one required provider and
// returns without waiting. When the flow settles the required connections are
// checked again and the outcome is left as a notice.
func (s *Session) ConnectProvider(ctx context.Context, providerID string) (*services.OAuthFlow, error) {
	if err := s.begin(models.StepOAuthSetup); err != nil {
		return nil, err
	}
	defer s.end()

	info := s.serverInfo()
	if !containsString(info.ProviderIDs(), providerID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}

	flow, err := s.deps.OAuth.StartOAuth(s.userID, providerID, info.ID)
	if err != nil {
		s.update(func() { s.notice = "Connection failed: " + err.Error() })
		return nil, err
	}

	go s.awaitProvider(context.WithoutCancel(ctx), info, providerID, flow)
	return flow, nil
}

func (s *Session) awaitProvider(ctx context.Context, info *models.ServerInfo, providerID string, flow *services.OAuthFlow) {
	err := <-flow.Done()
	log := s.log.WithField("provider", providerID)

	if err != nil {
		log.WithField("error", err.Error()).Info("Provider connection did not complete")
		s.update(func() { s.notice = "Connection failed: " + err.Error() })
		return
	}

	resp := s.deps.OAuth.CheckRequiredConnections(ctx, s.userID, info.ProviderIDs())
	s.update(func() {
		if s.step != models.StepOAuthSetup {
			return
		}
		s.connected = resp.Connected
		s.missing = resp.Missing
		s.notice = "Connected to " + providerName(info, providerID)
	})
	log.Info("Provider connected during setup")
}

// Continue moves from oauth-setup to installation. While a required provider
// is missing it changes nothing but the notice.
func (s *Session) Continue(ctx context.Context) (*models.SetupSnapshot, error) {
	if err := s.begin(models.StepOAuthSetup); err != nil {
		return nil, err
	}
	defer s.end()

	info := s.serverInfo()
	if !s.recheck(ctx, info) {
		s.update(func() { s.notice = msgMissingConnection })
		return s.Snapshot(), nil
	}

	if err := s.install(ctx, info); err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// recheck refreshes the connected and missing providers and reports whether all are connected
func (s *Session) recheck(ctx context.Context, info *models.ServerInfo) bool {
	resp := s.deps.OAuth.CheckRequiredConnections(ctx, s.userID, info.ProviderIDs())
	s.update(func() {
		s.connected = resp.Connected
		s.missing = resp.Missing
	})
	return resp.AllConnected
}

// install runs to completion once started; the caller going away does not
// stop it. The bridge calls keep their own timeouts.
func (s *Session) install(ctx context.Context, info *models.ServerInfo) error {
	ctx = context.WithoutCancel(ctx)
	if !s.enter(models.StepInstallation, progressInstalling) {
		return ErrNoSession
	}

	cfg := info.ServerConfig()
	if info.RequiresAuth {
		envVars, err := s.deps.OAuth.GenerateEnvVars(ctx, s.userID, info.ProviderIDs())
		if err != nil {
			s.logs.Error("installation", "Error: "+err.Error())
			s.fail(err.Error())
			return nil
		}
		if len(envVars) == 0 {
			s.logs.Warning("installation", "No provider tokens found, starting without credentials")
		}
		for k, v := range envVars {
			cfg.Env[k] = v
		}
	}

	s.logs.Info("installation", "Starting MCP server setup...")
	s.update(func() { s.progress = progressConnecting })

	if _, err := s.deps.Installer.Connect(ctx, s.userID, cfg); err != nil {
		s.logs.Error("installation", "Error: "+err.Error())
		s.fail("Installation failed: " + err.Error())
		return nil
	}

	s.logs.Info("installation", "MCP server connected successfully!")
	s.moveTo(models.StepSuccess, progressDone)
	s.log.WithField("server_id", info.ID).Info("Server installed")
	return nil
}

// UseCloudBridge runs the detected server on the cloud bridge instead of locally
func (s *Session) UseCloudBridge(ctx context.Context) (*models.SetupSnapshot, error) {
	if err := s.begin(models.StepError, models.StepOAuthSetup); err != nil {
		return nil, err
	}
	defer s.end()

	info := s.serverInfo()
	if info == nil {
		return nil, fmt.Errorf("%w: no server detected", ErrInvalidTransition)
	}
	available := s.deps.Cloud != nil && s.deps.Cloud.IsAvailable(ctx)
	s.update(func() { s.cloudAvailable = available })
	if !available {
		return nil, ErrCloudBridgeUnavailable
	}

	if !s.enter(models.StepCloudBridge, progressCloudStart) {
		return nil, ErrNoSession
	}
	s.update(func() {
		s.cloudMode = true
		s.errMsg = ""
		s.analysis = nil
	})

	// Provisioning is bounded by the cloud client, not by the caller
	ctx = context.WithoutCancel(ctx)

	var tokens map[string]string
	if info.RequiresAuth {
		resp := s.deps.OAuth.CheckRequiredConnections(ctx, s.userID, info.ProviderIDs())
		var err error
		tokens, err = s.deps.OAuth.AccessTokens(ctx, s.userID, resp.Connected)
		if err != nil {
			s.logs.Error("cloud-bridge", "Error: "+err.Error())
			s.fail(err.Error())
			return s.Snapshot(), nil
		}
	}

	s.logs.Info("cloud-bridge", "Creating cloud bridge instance...")
	s.update(func() { s.progress = progressCloudCreate })

	instance, err := s.deps.Cloud.CreateInstance(ctx, s.userID, *info, tokens)
	if err != nil {
		s.logs.Error("cloud-bridge", "Error: "+err.Error())
		s.fail(err.Error())
		return s.Snapshot(), nil
	}

	s.logs.Info("cloud-bridge", "Cloud bridge instance created successfully!")
	s.update(func() { s.instance = instance })
	s.moveTo(models.StepSuccess, progressDone)
	return s.Snapshot(), nil
}

// Retry starts over from a fresh url-input
func (s *Session) Retry() (*models.SetupSnapshot, error) {
	if err := s.begin(models.StepError); err != nil {
		return nil, err
	}
	defer s.end()

	s.logs.Clear()
	s.update(func() {
		s.step = models.StepURLInput
		s.progress = 0
		s.url = ""
		s.info = nil
		s.connected = []string{}
		s.missing = []string{}
		s.errMsg = ""
		s.analysis = nil
		s.cloudMode = false
		s.instance = nil
	})
	return s.Snapshot(), nil
}

// ExecuteStep runs a troubleshooting step offered with the current error
func (s *Session) ExecuteStep(ctx context.Context, step models.TroubleshootingStep) (*models.StepOutcome, error) {
	d := troubleshoot.NewDispatcher(troubleshoot.Actions{
		Retry: func(context.Context) error {
			_, err := s.Retry()
			return err
		},
		UseCloudBridge: func(ctx context.Context) error {
			_, err := s.UseCloudBridge(ctx)
			return err
		},
		Refresh: func(context.Context) error { return nil },
	})
	return d.Execute(ctx, step)
}

// Snapshot returns a copy of the session state
func (s *Session) Snapshot() *models.SetupSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &models.SetupSnapshot{
		SessionId:            s.id,
		Step:                 s.step,
		Progress:             s.progress,
		ConnectedProviders:   append([]string{}, s.connected...),
		MissingProviders:     append([]string{}, s.missing...),
		Error:                s.errMsg,
		Analysis:             s.analysis,
		Logs:                 s.logs.Entries(),
		Notice:               s.notice,
		CloudBridgeMode:      s.cloudMode,
		CloudBridgeAvailable: s.cloudAvailable,
		CloudInstance:        s.instance,
		Busy:                 s.busy,
	}
	if s.info != nil {
		snap.ServerInfo = s.info.Clone()
	}
	return snap
}

func (s *Session) serverInfo() *models.ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func providerName(info *models.ServerInfo, providerID string) string {
	for _, p := range info.AuthProviders {
		if p.Provider == providerID && p.Name != "" {
			return p.Name
		}
	}
	return providerID
}

func stepIn(step models.SetupStep, steps []models.SetupStep) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
