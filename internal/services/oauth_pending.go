package services

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

// pendingAuth is one authorization waiting for its callback, keyed by state
type pendingAuth struct {
	state      string
	userID     string
	providerID string
	popup      Popup
	createdAt  time.Time

	mu        sync.Mutex
	claimed   bool
	succeeded bool
	failure   error
}

func (p *pendingAuth) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		p.succeeded = true
		return
	}
	p.failure = err
}

func (p *pendingAuth) outcome() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.succeeded, p.failure
}

type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingAuth
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingAuth)}
}

func (t *pendingTable) add(p *pendingAuth) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[p.state] = p
}

func (t *pendingTable) get(state string) (*pendingAuth, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[state]
	return p, ok
}

// claim hands the entry to exactly one callback. The state must exist and
// must not have been claimed before. An empty providerID accepts the provider
// the state was issued for; any other value must match it.
func (t *pendingTable) claim(state, providerID string) (*pendingAuth, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[state]
	if !ok || (providerID != "" && p.providerID != providerID) {
		return nil, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.claimed {
		return nil, false
	}
	p.claimed = true
	return p, true
}

func (t *pendingTable) remove(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, state)
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// newState returns 32 random bytes in URL-safe base64, followed by
// ":"+base64(context) when a context is given
func newState(serverContext string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(buf)
	if serverContext != "" {
		state += ":" + base64.RawURLEncoding.EncodeToString([]byte(serverContext))
	}
	return state, nil
}

// StateContext returns the context string carried by a state token, if any
func StateContext(state string) string {
	i := strings.IndexByte(state, ':')
	if i < 0 {
		return ""
	}
	decoded, err := base64.RawURLEncoding.DecodeString(state[i+1:])
	if err != nil {
		return ""
	}
	return string(decoded)
}
