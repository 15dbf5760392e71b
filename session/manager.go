package session

import (
	"sync"
	"time"

	"justintune/fingerprint"
	"justintune/score"
)

// Manager owns the controllers for all connected performers and keeps
// disconnected sessions adoptable for a short grace period, so a flaky
// connection does not throw away an identified piece mid-performance.
type Manager struct {
	mu sync.Mutex

	cfg      Config
	index    *fingerprint.Index
	provider score.Provider
	aligners score.AlignerFactory
	now      func() time.Time

	active map[string]*Controller
	parked []parkedSession
}

type parkedSession struct {
	ctrl *Controller
	at   time.Time
}

func NewManager(cfg Config, index *fingerprint.Index, provider score.Provider, aligners score.AlignerFactory) *Manager {
	return &Manager{
		cfg:      cfg,
		index:    index,
		provider: provider,
		aligners: aligners,
		now:      time.Now,
		active:   make(map[string]*Controller),
	}
}

// Connect binds a controller to a new connection. The most recently
// parked session still inside the grace window is adopted instead of
// starting fresh, which survives a quick reconnect.
func (m *Manager) Connect(socketID string, emit Emitter) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctrl := m.adoptLocked(); ctrl != nil {
		ctrl.SetEmitter(emit)
		m.active[socketID] = ctrl
		return ctrl
	}

	ctrl := NewController(m.cfg, m.index, m.provider, m.aligners, emit)
	m.active[socketID] = ctrl
	return ctrl
}

// Get returns the controller bound to a connection, if any.
func (m *Manager) Get(socketID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctrl, ok := m.active[socketID]
	return ctrl, ok
}

// Disconnect parks the session instead of destroying it. After the
// grace period it is reaped for good.
func (m *Manager) Disconnect(socketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctrl, ok := m.active[socketID]
	if !ok {
		return
	}
	delete(m.active, socketID)
	ctrl.SetEmitter(nil)

	if m.cfg.GracePeriod <= 0 {
		return
	}
	m.parked = append(m.parked, parkedSession{ctrl: ctrl, at: m.now()})
	time.AfterFunc(m.cfg.GracePeriod, m.reap)
}

// ActiveCount reports how many connections currently hold a session.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// adoptLocked pops the most recently parked session still within the
// grace period. Expired entries found along the way are dropped.
func (m *Manager) adoptLocked() *Controller {
	cutoff := m.now().Add(-m.cfg.GracePeriod)
	for i := len(m.parked) - 1; i >= 0; i-- {
		p := m.parked[i]
		if p.at.Before(cutoff) {
			continue
		}
		m.parked = append(m.parked[:i], m.parked[i+1:]...)
		return p.ctrl
	}
	return nil
}

func (m *Manager) reap() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.cfg.GracePeriod)
	kept := m.parked[:0]
	for _, p := range m.parked {
		if p.at.Before(cutoff) {
			continue
		}
		kept = append(kept, p)
	}
	m.parked = kept
}
