package services

import (
	"errors"
	"sync"
)

const (
	PopupWidth  = 600
	PopupHeight = 700
)

var ErrPopupBlocked = errors.New("popup blocked, please allow popups and try again")

// Popup is an authorization window the flow watches for closure
type Popup interface {
	Closed() bool
	Close()
}

// PopupOpener opens an authorization window for a state token
type PopupOpener interface {
	Open(state, authURL string, width, height int) (Popup, error)
}

// PopupRelay stands in for a browser window when the flow runs on the
// server. The API caller receives the authorize URL and opens the window
// itself; a finished callback or an explicit close report closes the relay side.
type PopupRelay struct {
	mu     sync.Mutex
	popups map[string]*relayPopup
}

// NewPopupRelay creates an empty relay
func NewPopupRelay() *PopupRelay {
	return &PopupRelay{popups: make(map[string]*relayPopup)}
}

// Open registers a window for state
func (r *PopupRelay) Open(state, authURL string, width, height int) (Popup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.popups[state]; exists {
		return nil, ErrPopupBlocked
	}
	p := &relayPopup{relay: r, state: state, url: authURL, width: width, height: height}
	r.popups[state] = p
	return p, nil
}

// URL returns the authorize URL of an open window
func (r *PopupRelay) URL(state string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.popups[state]
	if !ok {
		return "", false
	}
	return p.url, true
}

// OpenCount returns the number of windows not yet closed
func (r *PopupRelay) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.popups)
}

func (r *PopupRelay) release(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.popups, state)
}

type relayPopup struct {
	relay  *PopupRelay
	state  string
	url    string
	width  int
	height int

	mu     sync.Mutex
	closed bool
}

func (p *relayPopup) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *relayPopup) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.relay.release(p.state)
}
