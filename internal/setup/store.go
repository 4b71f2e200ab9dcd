package setup

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/imyashkale/mcpbridge/internal/logger"
	"github.com/imyashkale/mcpbridge/internal/troubleshoot"
)

var ErrNoSession = errors.New("no setup session")

// Store keeps at most one setup session per user
type Store struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates a store whose sessions drive deps
func NewStore(deps Deps) *Store {
	if deps.Analyzer == nil {
		deps.Analyzer = troubleshoot.NewEngine()
	}
	return &Store{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Open starts a fresh session for the user, replacing a closable one. The
// replaced session is retired under the store lock so it cannot start an
// installation afterwards.
func (st *Store) Open(ctx context.Context, userID string) (*Session, error) {
	available := st.deps.Cloud != nil && st.deps.Cloud.IsAvailable(ctx)
	s := newSession(uuid.New().String(), userID, st.deps, available)

	st.mu.Lock()
	if existing := st.sessions[userID]; existing != nil && !existing.retire() {
		st.mu.Unlock()
		return nil, ErrCloseRefused
	}
	st.sessions[userID] = s
	st.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"user_id":         userID,
		"session_id":      s.ID(),
		"cloud_available": available,
	}).Info("Setup session opened")
	return s, nil
}

// Get returns the user's session
func (st *Store) Get(userID string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Close discards the user's session. It is refused while an installation
// or cloud provisioning is in flight.
func (st *Store) Close(userID string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if !ok {
		return ErrNoSession
	}
	if !s.retire() {
		return ErrCloseRefused
	}
	delete(st.sessions, userID)

	logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"session_id": s.ID(),
	}).Info("Setup session closed")
	return nil
}

// Len returns the number of open sessions
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
