package session

import (
	"testing"
	"time"

	"justintune/fingerprint"
)

func newTestManager(grace time.Duration) (*Manager, *fakeClock) {
	cfg := DefaultConfig()
	cfg.GracePeriod = grace

	clk := newFakeClock()
	m := NewManager(cfg, fingerprint.NewIndex(4), &fakeProvider{}, nil)
	m.now = clk.Now
	return m, clk
}

func TestManagerCreatesSessionPerConnection(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(5 * time.Second)

	a := m.Connect("sock-a", (&recorder{}).emit)
	b := m.Connect("sock-b", (&recorder{}).emit)
	if a == b {
		t.Fatal("distinct connections share a session")
	}
	if m.ActiveCount() != 2 {
		t.Errorf("expected 2 active sessions, got %d", m.ActiveCount())
	}

	got, ok := m.Get("sock-a")
	if !ok || got != a {
		t.Errorf("lookup returned the wrong session")
	}
}

func TestManagerAdoptsRecentSessionOnReconnect(t *testing.T) {
	t.Parallel()

	m, clk := newTestManager(5 * time.Second)

	orig := m.Connect("sock-1", (&recorder{}).emit)
	m.Disconnect("sock-1")

	clk.Advance(2 * time.Second)
	adopted := m.Connect("sock-2", (&recorder{}).emit)
	if adopted != orig {
		t.Fatal("reconnect inside the grace period did not adopt the parked session")
	}
	if m.ActiveCount() != 1 {
		t.Errorf("expected 1 active session, got %d", m.ActiveCount())
	}
}

func TestManagerExpiresParkedSessions(t *testing.T) {
	t.Parallel()

	m, clk := newTestManager(5 * time.Second)

	orig := m.Connect("sock-1", (&recorder{}).emit)
	m.Disconnect("sock-1")

	clk.Advance(6 * time.Second)
	fresh := m.Connect("sock-2", (&recorder{}).emit)
	if fresh == orig {
		t.Fatal("expired session was adopted")
	}
}

func TestManagerAdoptsMostRecentlyParked(t *testing.T) {
	t.Parallel()

	m, clk := newTestManager(10 * time.Second)

	first := m.Connect("sock-1", (&recorder{}).emit)
	second := m.Connect("sock-2", (&recorder{}).emit)
	m.Disconnect("sock-1")
	clk.Advance(time.Second)
	m.Disconnect("sock-2")

	adopted := m.Connect("sock-3", (&recorder{}).emit)
	if adopted != second {
		t.Fatal("expected the most recently parked session")
	}
	if again := m.Connect("sock-4", (&recorder{}).emit); again != first {
		t.Fatal("expected the older parked session next")
	}
}

func TestManagerRebindsEmitterOnAdoption(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(5 * time.Second)

	old := &recorder{}
	orig := m.Connect("sock-1", old.emit)
	m.Disconnect("sock-1")

	fresh := &recorder{}
	adopted := m.Connect("sock-2", fresh.emit)
	if adopted != orig {
		t.Fatal("expected adoption")
	}

	adopted.Reset()
	if fresh.count("system_status") == 0 {
		t.Errorf("events not routed to the new connection")
	}
	if old.count("system_status") != 0 {
		t.Errorf("events leaked to the stale connection")
	}
}

func TestManagerZeroGraceDropsSessions(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(0)

	orig := m.Connect("sock-1", (&recorder{}).emit)
	m.Disconnect("sock-1")

	if fresh := m.Connect("sock-2", (&recorder{}).emit); fresh == orig {
		t.Fatal("session survived despite zero grace period")
	}
}
