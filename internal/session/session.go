// Package session tracks connected wallet sessions with an explicit
// connect/disconnect lifecycle. Sessions carry no authority — the
// contract is the source of truth for everything — they only scope
// per-wallet reads and event subscriptions.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotConnected = errors.New("session: wallet not connected")

// Session is one connected wallet.
type Session struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Manager holds active sessions keyed by wallet address. Reconnecting
// an address replaces its previous session.
type Manager struct {
	mu     sync.RWMutex
	byAddr map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{byAddr: make(map[string]*Session)}
}

// Connect opens (or replaces) a session for a wallet address.
func (m *Manager) Connect(address string, now time.Time) *Session {
	addr := normalize(address)
	s := &Session{
		ID:          uuid.New().String(),
		Address:     addr,
		ConnectedAt: now,
	}
	m.mu.Lock()
	m.byAddr[addr] = s
	m.mu.Unlock()
	return s
}

// Get returns the session for an address, or ErrNotConnected.
func (m *Manager) Get(address string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byAddr[normalize(address)]
	if !ok {
		return nil, ErrNotConnected
	}
	copy := *s
	return &copy, nil
}

// Disconnect tears down a session. Disconnecting an unknown address is
// a no-op.
func (m *Manager) Disconnect(address string) {
	m.mu.Lock()
	delete(m.byAddr, normalize(address))
	m.mu.Unlock()
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byAddr)
}

// normalize lower-cases hex wallet addresses so lookups are
// case-insensitive.
func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
