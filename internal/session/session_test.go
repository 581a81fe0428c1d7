package session

import (
	"testing"
	"time"
)

func TestConnectAndGet(t *testing.T) {
	m := NewManager()
	now := time.Unix(1000, 0)

	s := m.Connect("0xABCDEF", now)
	if s.ID == "" {
		t.Error("expected session id")
	}
	if s.Address != "0xabcdef" {
		t.Errorf("address should be normalized, got %s", s.Address)
	}

	// Lookups are case-insensitive.
	got, err := m.Get("0xAbCdEf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("expected session %s, got %s", s.ID, got.ID)
	}
}

func TestGet_NotConnected(t *testing.T) {
	m := NewManager()
	if _, err := m.Get("0xnobody"); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestReconnectReplacesSession(t *testing.T) {
	m := NewManager()

	first := m.Connect("0xabc", time.Unix(1000, 0))
	second := m.Connect("0xabc", time.Unix(2000, 0))
	if first.ID == second.ID {
		t.Error("reconnect should mint a new session id")
	}

	got, _ := m.Get("0xabc")
	if got.ID != second.ID {
		t.Errorf("expected latest session, got %s", got.ID)
	}
	if m.Count() != 1 {
		t.Errorf("expected 1 session, got %d", m.Count())
	}
}

func TestDisconnect(t *testing.T) {
	m := NewManager()
	m.Connect("0xabc", time.Unix(0, 0))
	m.Disconnect("0xABC")

	if _, err := m.Get("0xabc"); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected after disconnect, got %v", err)
	}

	// Unknown address is a no-op.
	m.Disconnect("0xunknown")
}
