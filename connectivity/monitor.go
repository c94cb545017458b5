// Package connectivity tracks the online/offline signal for one shop
// instance. It is purely edge-triggered: transitions come from whatever
// transport layer notices connectivity change (a failed upload, a probe,
// an operator toggle), never from polling inside this package.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/printflowhq/printshop_backend/config"
)

// PendingCounter reports how many records are waiting to upload.
type PendingCounter func(ctx context.Context) int

// SyncTrigger kicks exactly one reconciliation pass.
type SyncTrigger func()

type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners map[int]func(online bool)
	nextID    int

	delay        time.Duration
	pendingCount PendingCounter
	trigger      SyncTrigger
	timer        *time.Timer

	logger *logrus.Logger
}

// NewMonitor starts offline. A monitor that never receives a signal keeps
// reporting offline rather than guessing.
func NewMonitor(delay time.Duration, logger *logrus.Logger) *Monitor {
	return &Monitor{
		listeners: map[int]func(bool){},
		delay:     delay,
		logger:    logger,
	}
}

// SetPendingCounter and SetSyncTrigger wire the monitor to the store and
// the reconciler after construction (the three services reference each
// other, so wiring happens in the runtime, not the constructors).
func (m *Monitor) SetPendingCounter(fn PendingCounter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingCount = fn
}

func (m *Monitor) SetSyncTrigger(fn SyncTrigger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trigger = fn
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers an edge-triggered callback and returns a token for
// RemoveOnChange.
func (m *Monitor) OnChange(fn func(online bool)) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	return id
}

func (m *Monitor) RemoveOnChange(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

// SetOnline feeds a connectivity signal. Repeating the current state is a
// no-op. On the offline->online edge, if dirty records are waiting, exactly
// one reconciliation pass is scheduled after the stabilization delay; an
// already-armed timer is left alone.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	pendingCount := m.pendingCount
	trigger := m.trigger
	shouldSchedule := online && trigger != nil && m.timer == nil
	m.mu.Unlock()

	for _, fn := range listeners {
		m.notify(fn, online)
	}

	if !shouldSchedule {
		return
	}
	if pendingCount != nil && pendingCount(context.Background()) == 0 {
		return
	}

	m.mu.Lock()
	if m.timer != nil {
		m.mu.Unlock()
		return
	}
	m.timer = time.AfterFunc(m.delay, func() {
		m.mu.Lock()
		m.timer = nil
		stillOnline := m.online
		fire := m.trigger
		m.mu.Unlock()
		if stillOnline && fire != nil {
			fire()
		}
	})
	m.mu.Unlock()
}

func (m *Monitor) notify(fn func(bool), online bool) {
	defer func() {
		if r := recover(); r != nil && m.logger != nil {
			m.logger.WithField("module", "connectivity/monitor.go").
				Errorf("connectivity listener panicked: %v", r)
		}
	}()
	fn(online)
}

// Stop cancels a pending reconnect pass. Used on shutdown.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// NewDefaultMonitor uses the env-configured stabilization delay.
func NewDefaultMonitor(logger *logrus.Logger) *Monitor {
	return NewMonitor(config.ReconnectDelay(), logger)
}
