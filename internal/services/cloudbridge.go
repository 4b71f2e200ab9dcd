package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/imyashkale/mcpbridge/internal/catalog"
	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/queue"
	"github.com/imyashkale/mcpbridge/internal/repository"
)

const (
	provisionTimeout = 5 * time.Minute
	healthTimeout    = 5 * time.Second
)

var (
	ErrCloudBridgeRequest = errors.New("cloud bridge request failed")
	ErrInstanceNotFound   = errors.New("instance not found")
	ErrInstanceNotRunning = errors.New("instance is not running")
)

// ImageResolver looks up a prebuilt image for a server id
type ImageResolver interface {
	ResolveImage(ctx context.Context, serverID string) (string, error)
}

// UsageQueue accepts usage increments for asynchronous processing
type UsageQueue interface {
	Enqueue(job *queue.UsageJob) error
}

// CloudBridgeClient provisions and drives remotely hosted MCP servers
type CloudBridgeClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     *ServiceTokenIssuer
	repo       repository.CloudInstanceRepository
	catalog    *catalog.Catalog
	images     ImageResolver
	usage      UsageQueue
	now        func() time.Time
}

// NewCloudBridgeClient creates a new CloudBridgeClient. images may be nil.
func NewCloudBridgeClient(
	baseURL string,
	httpClient *http.Client,
	tokens *ServiceTokenIssuer,
	repo repository.CloudInstanceRepository,
	cat *catalog.Catalog,
	images ImageResolver,
	usage UsageQueue,
) *CloudBridgeClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &CloudBridgeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		repo:       repo,
		catalog:    cat,
		images:     images,
		usage:      usage,
		now:        time.Now,
	}
}

type remoteInstance struct {
	Id       string `json:"id"`
	Status   string `json:"status"`
	Endpoint string `json:"endpoint"`
	Error    string `json:"error,omitempty"`
}

type createRemoteRequest struct {
	UserId       string                   `json:"userId"`
	ServerConfig models.CloudServerConfig `json:"serverConfig"`
	Timeout      int64                    `json:"timeout"`
}

// CreateInstance provisions info remotely and records it with status
// starting. When the record cannot be written the remote instance is
// destroyed again and the write error is returned.
func (c *CloudBridgeClient) CreateInstance(ctx context.Context, userID string, info models.ServerInfo, oauthTokens map[string]string) (*models.CloudBridgeInstance, error) {
	log := logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"server_id": info.ID,
	})

	cfg := c.cloudConfig(ctx, info, oauthTokens)

	ctx, cancel := context.WithTimeout(ctx, provisionTimeout)
	defer cancel()

	var remote remoteInstance
	err := c.do(ctx, userID, http.MethodPost, c.baseURL+"/api/instances", createRemoteRequest{
		UserId:       userID,
		ServerConfig: cfg,
		Timeout:      provisionTimeout.Milliseconds(),
	}, &remote)
	if err != nil {
		log.WithField("error", err.Error()).Error("Cloud instance provisioning failed")
		return nil, err
	}
	if remote.Id == "" {
		return nil, fmt.Errorf("%w: provisioning response carried no instance id", ErrCloudBridgeRequest)
	}

	now := c.now()
	inst := &models.CloudBridgeInstance{
		Id:         remote.Id,
		UserId:     userID,
		ServerId:   info.ID,
		ServerName: info.Name,
		ServerInfo: info,
		Status:     models.InstanceStarting,
		ImageUri:   cfg.Image,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.repo.Create(ctx, inst); err != nil {
		log.WithFields(map[string]interface{}{
			"instance_id": remote.Id,
			"error":       err.Error(),
		}).Error("Failed to record cloud instance, destroying remote instance")
		if derr := c.destroyRemote(context.WithoutCancel(ctx), userID, remote.Id); derr != nil {
			log.WithFields(map[string]interface{}{
				"instance_id": remote.Id,
				"error":       derr.Error(),
			}).Error("Compensating destroy failed, remote instance is orphaned")
		}
		return nil, fmt.Errorf("failed to record cloud instance: %w", err)
	}

	if models.InstanceStatus(remote.Status) == models.InstanceRunning && remote.Endpoint != "" {
		if err := c.repo.TransitionStatus(ctx, inst.Id, models.InstanceStarting, models.InstanceRunning, remote.Endpoint, "", c.now()); err == nil {
			inst.Status = models.InstanceRunning
			inst.EndpointUrl = remote.Endpoint
		}
	}

	log.WithFields(map[string]interface{}{
		"instance_id": inst.Id,
		"status":      string(inst.Status),
	}).Info("Cloud instance created")
	return inst, nil
}

func (c *CloudBridgeClient) cloudConfig(ctx context.Context, info models.ServerInfo, oauthTokens map[string]string) models.CloudServerConfig {
	env := make(map[string]string, len(info.Env)+len(oauthTokens))
	for k, v := range info.Env {
		env[k] = v
	}
	for k, v := range EnvVarsFromTokens(c.catalog, oauthTokens) {
		env[k] = v
	}

	cfg := models.CloudServerConfig{
		Id:             info.ID,
		Name:           info.Name,
		InstallCommand: info.InstallCommand,
		InstallArgs:    info.InstallArgs,
		Command:        info.Command,
		Args:           info.Args,
		Env:            env,
	}

	if c.images != nil {
		image, err := c.images.ResolveImage(ctx, info.ID)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"server_id": info.ID,
				"error":     err.Error(),
			}).Warn("Could not resolve prebuilt image, provisioning from install command")
		}
		cfg.Image = image
	}
	return cfg
}

// GetUserInstances lists the user's instances, newest first. Errors give an empty list.
func (c *CloudBridgeClient) GetUserInstances(ctx context.Context, userID string) []*models.CloudBridgeInstance {
	instances, err := c.repo.GetByUserId(ctx, userID)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to list cloud instances")
		return []*models.CloudBridgeInstance{}
	}
	return instances
}

// GetInstance returns an instance owned by userID
func (c *CloudBridgeClient) GetInstance(ctx context.Context, userID, instanceID string) (*models.CloudBridgeInstance, error) {
	inst, err := c.repo.Get(ctx, instanceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	if inst.UserId != userID {
		return nil, ErrInstanceNotFound
	}
	return inst, nil
}

func (c *CloudBridgeClient) runningInstance(ctx context.Context, userID, instanceID string) (*models.CloudBridgeInstance, error) {
	inst, err := c.GetInstance(ctx, userID, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != models.InstanceRunning || inst.EndpointUrl == "" {
		return nil, fmt.Errorf("%w: instance is %s", ErrInstanceNotRunning, inst.Status)
	}
	return inst, nil
}

// ExecuteToolCall calls a tool on a running instance. Instances in any other
// status are refused without a network call.
func (c *CloudBridgeClient) ExecuteToolCall(ctx context.Context, userID, instanceID, toolName string, arguments map[string]interface{}) *models.ToolCallResult {
	inst, err := c.runningInstance(ctx, userID, instanceID)
	if err != nil {
		return models.Failed(err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	start := c.now()
	var out struct {
		Content json.RawMessage `json:"content"`
	}
	err = c.do(ctx, userID, http.MethodPost, inst.EndpointUrl+"/tools/call", map[string]interface{}{
		"name":      toolName,
		"arguments": arguments,
	}, &out)
	elapsed := c.now().Sub(start).Milliseconds()

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"instance_id": instanceID,
			"tool":        toolName,
			"error":       err.Error(),
		}).Warn("Cloud tool call failed")
		result := models.Failed(err.Error())
		result.ExecutionTime = elapsed
		return result
	}

	c.recordUsage(inst)
	return &models.ToolCallResult{
		Success:       true,
		Content:       out.Content,
		ExecutionTime: elapsed,
	}
}

func (c *CloudBridgeClient) recordUsage(inst *models.CloudBridgeInstance) {
	if c.usage == nil {
		return
	}
	if err := c.usage.Enqueue(queue.NewUsageJob(inst.Id, inst.UserId, c.now())); err != nil {
		logger.WithFields(map[string]interface{}{
			"instance_id": inst.Id,
			"error":       err.Error(),
		}).Warn("Failed to schedule usage update")
	}
}

// ProcessUsage applies one queued usage increment
func (c *CloudBridgeClient) ProcessUsage(job *queue.UsageJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.repo.IncrementUsage(ctx, job.InstanceID, job.At)
}

// ListInstanceTools lists the tools of a running instance
func (c *CloudBridgeClient) ListInstanceTools(ctx context.Context, userID, instanceID string) ([]models.ToolDescriptor, error) {
	inst, err := c.runningInstance(ctx, userID, instanceID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	var out models.ToolListResponse
	if err := c.do(ctx, userID, http.MethodGet, inst.EndpointUrl+"/tools/list", nil, &out); err != nil {
		return nil, err
	}
	if out.Tools == nil {
		out.Tools = []models.ToolDescriptor{}
	}
	return out.Tools, nil
}

// RefreshInstance reads the remote status of a starting instance and records
// running (with its endpoint) or error
func (c *CloudBridgeClient) RefreshInstance(ctx context.Context, userID, instanceID string) (*models.CloudBridgeInstance, error) {
	inst, err := c.GetInstance(ctx, userID, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != models.InstanceStarting {
		return inst, nil
	}

	var remote remoteInstance
	if err := c.do(ctx, userID, http.MethodGet, c.baseURL+"/api/instances/"+instanceID, nil, &remote); err != nil {
		return nil, err
	}

	switch models.InstanceStatus(remote.Status) {
	case models.InstanceRunning:
		if remote.Endpoint == "" {
			return inst, nil
		}
		err = c.repo.TransitionStatus(ctx, instanceID, models.InstanceStarting, models.InstanceRunning, remote.Endpoint, "", c.now())
	case models.InstanceError, models.InstanceStopped:
		msg := remote.Error
		if msg == "" {
			msg = "Instance failed to start"
		}
		err = c.repo.TransitionStatus(ctx, instanceID, models.InstanceStarting, models.InstanceError, "", msg, c.now())
	default:
		return inst, nil
	}
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		return nil, err
	}
	return c.GetInstance(ctx, userID, instanceID)
}

// DestroyInstance tears the remote instance down and records it as stopped
// with its endpoint cleared
func (c *CloudBridgeClient) DestroyInstance(ctx context.Context, userID, instanceID string) error {
	inst, err := c.GetInstance(ctx, userID, instanceID)
	if err != nil {
		return err
	}
	if inst.Status == models.InstanceStopped {
		return nil
	}

	status := inst.Status
	if status == models.InstanceStarting {
		if err := c.transition(ctx, instanceID, status, models.InstanceError, "", "Destroyed before start"); err != nil {
			return err
		}
		status = models.InstanceError
	}
	if status != models.InstanceStopping {
		if err := c.transition(ctx, instanceID, status, models.InstanceStopping, "", ""); err != nil {
			return err
		}
	}

	if err := c.destroyRemote(ctx, userID, instanceID); err != nil {
		_ = c.transition(ctx, instanceID, models.InstanceStopping, models.InstanceError, "", err.Error())
		return err
	}

	if err := c.transition(ctx, instanceID, models.InstanceStopping, models.InstanceStopped, "", ""); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"user_id":     userID,
		"instance_id": instanceID,
	}).Info("Cloud instance destroyed")
	return nil
}

func (c *CloudBridgeClient) transition(ctx context.Context, id string, from, to models.InstanceStatus, endpoint, msg string) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", repository.ErrConflict, from, to)
	}
	return c.repo.TransitionStatus(ctx, id, from, to, endpoint, msg, c.now())
}

func (c *CloudBridgeClient) destroyRemote(ctx context.Context, userID, instanceID string) error {
	return c.do(ctx, userID, http.MethodDelete, c.baseURL+"/api/instances/"+instanceID, nil, nil)
}

// IsAvailable probes the bridge health endpoint. Any failure, including a timeout, reports false.
func (c *CloudBridgeClient) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.WithField("error", err.Error()).Debug("Cloud bridge health probe failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *CloudBridgeClient) do(ctx context.Context, userID, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Issue(userID)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCloudBridgeRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return fmt.Errorf("%w: %s", ErrCloudBridgeRequest, apiErr.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid response: %v", ErrCloudBridgeRequest, err)
	}
	return nil
}
