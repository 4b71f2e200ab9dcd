package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/imyashkale/mcpbridge/internal/models"
)

// The memory repositories back STORAGE_BACKEND=memory and the tests. They
// follow the same conditional-write rules as the DynamoDB tables.

type userKey struct {
	user string
	id   string
}

// MemoryOAuthConnectionRepository keeps OAuth connections in process memory
type MemoryOAuthConnectionRepository struct {
	mu    sync.RWMutex
	conns map[userKey]models.OAuthConnection
}

// NewMemoryOAuthConnectionRepository creates an empty in-memory OAuth connection store
func NewMemoryOAuthConnectionRepository() *MemoryOAuthConnectionRepository {
	return &MemoryOAuthConnectionRepository{conns: make(map[userKey]models.OAuthConnection)}
}

func (r *MemoryOAuthConnectionRepository) Upsert(_ context.Context, conn *models.OAuthConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := userKey{conn.UserId, conn.ProviderId}
	stored := copyOAuthConnection(conn)
	if existing, ok := r.conns[key]; ok {
		stored.Id = existing.Id
		stored.CreatedAt = existing.CreatedAt
	}
	r.conns[key] = stored
	return nil
}

func (r *MemoryOAuthConnectionRepository) Get(_ context.Context, userId, providerId string) (*models.OAuthConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[userKey{userId, providerId}]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyOAuthConnection(&conn)
	return &out, nil
}

func (r *MemoryOAuthConnectionRepository) GetByUserId(_ context.Context, userId string) ([]*models.OAuthConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*models.OAuthConnection, 0)
	for key, conn := range r.conns {
		if key.user != userId {
			continue
		}
		out := copyOAuthConnection(&conn)
		conns = append(conns, &out)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].ProviderId < conns[j].ProviderId })
	return conns, nil
}

func (r *MemoryOAuthConnectionRepository) Delete(_ context.Context, userId, providerId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := userKey{userId, providerId}
	if _, ok := r.conns[key]; !ok {
		return ErrNotFound
	}
	delete(r.conns, key)
	return nil
}

func copyOAuthConnection(c *models.OAuthConnection) models.OAuthConnection {
	out := *c
	out.Scopes = append([]string(nil), c.Scopes...)
	if c.ExpiresAt != nil {
		exp := *c.ExpiresAt
		out.ExpiresAt = &exp
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// MemoryMCPConnectionRepository keeps server connections in process memory
type MemoryMCPConnectionRepository struct {
	mu    sync.RWMutex
	conns map[userKey]models.MCPConnection
}

// NewMemoryMCPConnectionRepository creates an empty in-memory connection store
func NewMemoryMCPConnectionRepository() *MemoryMCPConnectionRepository {
	return &MemoryMCPConnectionRepository{conns: make(map[userKey]models.MCPConnection)}
}

func (r *MemoryMCPConnectionRepository) Save(_ context.Context, conn *models.MCPConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := userKey{conn.UserId, conn.ServerId}
	stored := copyMCPConnection(conn)
	stored.ErrorMessage = nil
	if existing, ok := r.conns[key]; ok {
		stored.Id = existing.Id
		stored.CreatedAt = existing.CreatedAt
		stored.LastConnected = existing.LastConnected
	}
	r.conns[key] = stored
	return nil
}

func (r *MemoryMCPConnectionRepository) Get(_ context.Context, userId, serverId string) (*models.MCPConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[userKey{userId, serverId}]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyMCPConnection(&conn)
	return &out, nil
}

func (r *MemoryMCPConnectionRepository) GetByUserId(_ context.Context, userId string) ([]*models.MCPConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*models.MCPConnection, 0)
	for key, conn := range r.conns {
		if key.user != userId {
			continue
		}
		out := copyMCPConnection(&conn)
		conns = append(conns, &out)
	}
	sort.SliceStable(conns, func(i, j int) bool {
		if conns[i].CreatedAt.Equal(conns[j].CreatedAt) {
			return conns[i].ServerId < conns[j].ServerId
		}
		return conns[i].CreatedAt.After(conns[j].CreatedAt)
	})
	return conns, nil
}

func (r *MemoryMCPConnectionRepository) UpdateStatus(_ context.Context, userId, serverId string, status models.ConnectionStatus, errorMessage string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := userKey{userId, serverId}
	conn, ok := r.conns[key]
	if !ok {
		return ErrNotFound
	}

	conn.Status = status
	conn.UpdatedAt = at
	switch status {
	case models.StatusConnected:
		lc := at
		conn.LastConnected = &lc
		conn.ErrorMessage = nil
	case models.StatusError:
		msg := errorMessage
		conn.ErrorMessage = &msg
	}
	r.conns[key] = conn
	return nil
}

func (r *MemoryMCPConnectionRepository) Delete(_ context.Context, userId, serverId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := userKey{userId, serverId}
	if _, ok := r.conns[key]; !ok {
		return ErrNotFound
	}
	delete(r.conns, key)
	return nil
}

func copyMCPConnection(c *models.MCPConnection) models.MCPConnection {
	out := *c
	out.Args = append([]string(nil), c.Args...)
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	if c.LastConnected != nil {
		lc := *c.LastConnected
		out.LastConnected = &lc
	}
	if c.ErrorMessage != nil {
		msg := *c.ErrorMessage
		out.ErrorMessage = &msg
	}
	return out
}

// MemoryCloudInstanceRepository keeps cloud bridge instances in process memory
type MemoryCloudInstanceRepository struct {
	mu        sync.RWMutex
	instances map[string]models.CloudBridgeInstance
}

// NewMemoryCloudInstanceRepository creates an empty in-memory instance store
func NewMemoryCloudInstanceRepository() *MemoryCloudInstanceRepository {
	return &MemoryCloudInstanceRepository{instances: make(map[string]models.CloudBridgeInstance)}
}

func (r *MemoryCloudInstanceRepository) Create(_ context.Context, inst *models.CloudBridgeInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instances[inst.Id]; ok {
		return ErrConflict
	}
	r.instances[inst.Id] = copyInstance(inst)
	return nil
}

func (r *MemoryCloudInstanceRepository) Get(_ context.Context, id string) (*models.CloudBridgeInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyInstance(&inst)
	return &out, nil
}

func (r *MemoryCloudInstanceRepository) GetByUserId(_ context.Context, userId string) ([]*models.CloudBridgeInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances := make([]*models.CloudBridgeInstance, 0)
	for _, inst := range r.instances {
		if inst.UserId != userId {
			continue
		}
		out := copyInstance(&inst)
		instances = append(instances, &out)
	}
	sort.SliceStable(instances, func(i, j int) bool {
		if instances[i].CreatedAt.Equal(instances[j].CreatedAt) {
			return instances[i].Id < instances[j].Id
		}
		return instances[i].CreatedAt.After(instances[j].CreatedAt)
	})
	return instances, nil
}

func (r *MemoryCloudInstanceRepository) TransitionStatus(_ context.Context, id string, from, to models.InstanceStatus, endpoint, errorMessage string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok || inst.Status != from {
		return ErrConflict
	}
	inst.Status = to
	inst.EndpointUrl = endpoint
	if errorMessage != "" {
		inst.ErrorMessage = errorMessage
	}
	inst.UpdatedAt = at
	r.instances[id] = inst
	return nil
}

func (r *MemoryCloudInstanceRepository) IncrementUsage(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return ErrNotFound
	}
	inst.UsageStats.RequestsCount++
	last := at
	inst.UsageStats.LastRequest = &last
	r.instances[id] = inst
	return nil
}

func copyInstance(inst *models.CloudBridgeInstance) models.CloudBridgeInstance {
	out := *inst
	if inst.UsageStats.LastRequest != nil {
		last := *inst.UsageStats.LastRequest
		out.UsageStats.LastRequest = &last
	}
	return out
}

var (
	_ OAuthConnectionRepository = (*MemoryOAuthConnectionRepository)(nil)
	_ MCPConnectionRepository   = (*MemoryMCPConnectionRepository)(nil)
	_ CloudInstanceRepository   = (*MemoryCloudInstanceRepository)(nil)
)
