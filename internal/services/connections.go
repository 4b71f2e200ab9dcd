package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/models"
	"github.com/imyashkale/mcpbridge/internal/repository"
)

var ErrInvalidServerConfig = errors.New("server config requires id, name and command")

// ConnectionManager owns the persisted server connections of each user.
// Apart from an invalid config on save, storage failures are logged and
// reported as nil or false.
type ConnectionManager struct {
	repo repository.MCPConnectionRepository
	now  func() time.Time
}

// NewConnectionManager creates a new ConnectionManager
func NewConnectionManager(repo repository.MCPConnectionRepository) *ConnectionManager {
	return &ConnectionManager{repo: repo, now: time.Now}
}

// SaveConnection stores a connection for cfg with status disconnected
func (m *ConnectionManager) SaveConnection(ctx context.Context, userID string, cfg models.ServerConfig) (*models.MCPConnection, error) {
	if cfg.ID == "" || cfg.Name == "" || cfg.Command == "" {
		return nil, ErrInvalidServerConfig
	}

	now := m.now()
	conn := &models.MCPConnection{
		Id:         uuid.New().String(),
		UserId:     userID,
		ServerId:   cfg.ID,
		ServerName: cfg.Name,
		Command:    cfg.Command,
		Args:       cfg.Args,
		Env:        cfg.Env,
		Status:     models.StatusDisconnected,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := m.repo.Save(ctx, conn); err != nil {
		logger.WithFields(map[string]interface{}{
			"user_id":   userID,
			"server_id": cfg.ID,
			"error":     err.Error(),
		}).Error("Failed to save connection")
		return nil, nil
	}

	logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"server_id": cfg.ID,
	}).Info("Connection saved")
	return m.GetConnection(ctx, userID, cfg.ID), nil
}

// GetUserConnections returns the user's connections, newest first
func (m *ConnectionManager) GetUserConnections(ctx context.Context, userID string) []*models.MCPConnection {
	conns, err := m.repo.GetByUserId(ctx, userID)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to list connections")
		return []*models.MCPConnection{}
	}
	return conns
}

// GetConnection returns one connection, or nil
func (m *ConnectionManager) GetConnection(ctx context.Context, userID, serverID string) *models.MCPConnection {
	conn, err := m.repo.Get(ctx, userID, serverID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.WithFields(map[string]interface{}{
				"user_id":   userID,
				"server_id": serverID,
				"error":     err.Error(),
			}).Error("Failed to get connection")
		}
		return nil
	}
	return conn
}

// UpdateConnectionStatus moves a connection to status. Connected stamps
// last_connected and clears the error; error needs a non-empty message.
func (m *ConnectionManager) UpdateConnectionStatus(ctx context.Context, userID, serverID string, status models.ConnectionStatus, errorMessage string) bool {
	log := logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"server_id": serverID,
		"status":    string(status),
	})

	if !status.Valid() {
		log.Warn("Refusing unknown connection status")
		return false
	}
	if status == models.StatusError && errorMessage == "" {
		log.Warn("Refusing error status without a message")
		return false
	}

	if err := m.repo.UpdateStatus(ctx, userID, serverID, status, errorMessage, m.now()); err != nil {
		log.WithField("error", err.Error()).Error("Failed to update connection status")
		return false
	}

	log.Info("Connection status updated")
	return true
}

// DeleteConnection removes the row. Callers disconnect the server first.
func (m *ConnectionManager) DeleteConnection(ctx context.Context, userID, serverID string) bool {
	if err := m.repo.Delete(ctx, userID, serverID); err != nil {
		logger.WithFields(map[string]interface{}{
			"user_id":   userID,
			"server_id": serverID,
			"error":     err.Error(),
		}).Warn("Failed to delete connection")
		return false
	}

	logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"server_id": serverID,
	}).Info("Connection deleted")
	return true
}
