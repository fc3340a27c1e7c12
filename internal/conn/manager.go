package conn

import (
	"log"
	"sync"

	"loomtrack-backend/internal/remote"
)

// State is the connection lifecycle status. Owned exclusively by the
// Manager; everything else only reads it.
type State string

const (
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
	StateConnected    State = "connected"
)

// Manager owns the remote connection and its realtime subscription. The
// reconciliation engine drives it: BeginAttempt before the initial fetch,
// then Established or Fail; Drop on a transport error; Teardown when the
// endpoint or credential changes, so the old subscription is fully
// released before a new one is set up and no events are delivered twice.
type Manager struct {
	mu          sync.Mutex
	state       State
	store       remote.Store
	unsubscribe func()
	onChange    func(State)
}

// NewManager creates a manager in the disconnected state. onChange, if
// non-nil, is invoked (outside the manager's lock) after every transition.
func NewManager(onChange func(State)) *Manager {
	return &Manager{state: StateDisconnected, onChange: onChange}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Store returns the connected remote store, or nil in any other state.
func (m *Manager) Store() remote.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return nil
	}
	return m.store
}

// BeginAttempt moves disconnected -> reconnecting. It refuses when an
// attempt is already running or a connection is established.
func (m *Manager) BeginAttempt() bool {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return false
	}
	m.state = StateReconnecting
	m.mu.Unlock()

	m.notify(StateReconnecting)
	return true
}

// Established moves reconnecting -> connected, recording the live store
// and the subscription teardown hook.
func (m *Manager) Established(store remote.Store, unsubscribe func()) {
	m.mu.Lock()
	if m.state != StateReconnecting {
		// The attempt was torn down while the handshake was in flight;
		// release the fresh subscription instead of leaking it.
		m.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return
	}
	m.state = StateConnected
	m.store = store
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	m.notify(StateConnected)
}

// Fail moves reconnecting -> disconnected. One failed fetch or subscribe
// is terminal for the attempt; the engine's timer decides when to try
// again, the manager never lingers in reconnecting.
func (m *Manager) Fail() {
	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.mu.Unlock()

	m.notify(StateDisconnected)
}

// Drop moves connected -> disconnected after a transport-level error or
// timeout, releasing the subscription.
func (m *Manager) Drop() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	unsub := m.unsubscribe
	m.state = StateDisconnected
	m.store = nil
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	m.notify(StateDisconnected)
}

// Teardown forces disconnected from any state, releasing the prior
// connection and subscription.
func (m *Manager) Teardown() {
	m.mu.Lock()
	prev := m.state
	unsub := m.unsubscribe
	m.state = StateDisconnected
	m.store = nil
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if prev != StateDisconnected {
		log.Printf("conn: connection torn down (was %s)", prev)
		m.notify(StateDisconnected)
	}
}

func (m *Manager) notify(s State) {
	if m.onChange != nil {
		m.onChange(s)
	}
}
