package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMonitorStartsOffline(t *testing.T) {
	m := NewMonitor(time.Millisecond, nil)
	defer m.Stop()
	if m.IsOnline() {
		t.Fatal("a monitor with no signal must report offline")
	}
}

func TestMonitorEdgeTriggeredListeners(t *testing.T) {
	m := NewMonitor(time.Millisecond, nil)
	defer m.Stop()

	var mu sync.Mutex
	var edges []bool
	m.OnChange(func(online bool) {
		mu.Lock()
		edges = append(edges, online)
		mu.Unlock()
	})

	m.SetOnline(true)
	m.SetOnline(true) // repeat: no edge
	m.SetOnline(false)
	m.SetOnline(false) // repeat: no edge
	m.SetOnline(true)

	mu.Lock()
	defer mu.Unlock()
	want := []bool{true, false, true}
	if len(edges) != len(want) {
		t.Fatalf("edges = %v, want %v", edges, want)
	}
	for i := range want {
		if edges[i] != want[i] {
			t.Fatalf("edges = %v, want %v", edges, want)
		}
	}
}

func TestMonitorRemoveOnChange(t *testing.T) {
	m := NewMonitor(time.Millisecond, nil)
	defer m.Stop()

	var calls atomic.Int32
	id := m.OnChange(func(bool) { calls.Add(1) })
	m.SetOnline(true)
	m.RemoveOnChange(id)
	m.SetOnline(false)

	if got := calls.Load(); got != 1 {
		t.Fatalf("removed listener still called: %d calls", got)
	}
}

func TestMonitorPanickingListenerIsIsolated(t *testing.T) {
	m := NewMonitor(time.Millisecond, nil)
	defer m.Stop()

	var called atomic.Bool
	m.OnChange(func(bool) { panic("bad listener") })
	m.OnChange(func(bool) { called.Store(true) })

	m.SetOnline(true)
	if !called.Load() {
		t.Fatal("well-behaved listener starved by panicking peer")
	}
}

// Flapping connectivity while a pass is already scheduled must not stack
// up extra passes: one reconnect, one pass.
func TestReconnectSchedulesExactlyOnePass(t *testing.T) {
	m := NewMonitor(20*time.Millisecond, nil)
	defer m.Stop()

	var triggers atomic.Int32
	m.SetPendingCounter(func(ctx context.Context) int { return 3 })
	m.SetSyncTrigger(func() { triggers.Add(1) })

	m.SetOnline(true)
	// Flap while the timer is armed.
	m.SetOnline(false)
	m.SetOnline(true)
	m.SetOnline(false)
	m.SetOnline(true)

	time.Sleep(100 * time.Millisecond)
	if got := triggers.Load(); got != 1 {
		t.Fatalf("expected exactly 1 scheduled pass, got %d", got)
	}
}

func TestReconnectSkipsWhenNothingPending(t *testing.T) {
	m := NewMonitor(5*time.Millisecond, nil)
	defer m.Stop()

	var triggers atomic.Int32
	m.SetPendingCounter(func(ctx context.Context) int { return 0 })
	m.SetSyncTrigger(func() { triggers.Add(1) })

	m.SetOnline(true)
	time.Sleep(30 * time.Millisecond)
	if got := triggers.Load(); got != 0 {
		t.Fatalf("no pending work, expected no pass, got %d", got)
	}
}

func TestReconnectPassCancelledByGoingOffline(t *testing.T) {
	m := NewMonitor(30*time.Millisecond, nil)
	defer m.Stop()

	var triggers atomic.Int32
	m.SetPendingCounter(func(ctx context.Context) int { return 1 })
	m.SetSyncTrigger(func() { triggers.Add(1) })

	m.SetOnline(true)
	m.SetOnline(false) // drop before the delay elapses

	time.Sleep(80 * time.Millisecond)
	if got := triggers.Load(); got != 0 {
		t.Fatalf("pass fired while offline: %d", got)
	}
}
