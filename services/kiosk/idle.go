package kiosk

import (
	"sync"
	"time"
)

// activityDebounce coalesces rapid activity pulses so the deadline is
// not recomputed more than roughly twice per second. Because the
// inactivity timeout is orders of magnitude larger, skipping a
// coalesced pulse shifts the deadline by less than the debounce window
// and cannot change which idle period fires.
const activityDebounce = 500 * time.Millisecond

// IdleMonitor watches for user inactivity with a single cancellable
// deadline. It is Active while qualifying activity keeps arriving
// (state updates, outgoing actions) and fires onIdle once the
// configured timeout elapses without any. After every fire the
// countdown restarts, so a continuous idle period triggers onIdle at
// most once per timeout span.
type IdleMonitor struct {
	onIdle func()

	mu        sync.Mutex
	timeout   time.Duration
	debounce  time.Duration
	timer     *time.Timer
	lastReset time.Time
	stopped   bool
	now       func() time.Time
}

// NewIdleMonitor creates a monitor that calls onIdle on each idle
// deadline expiry. The countdown does not start until the first call
// to Activity.
func NewIdleMonitor(timeout time.Duration, onIdle func()) *IdleMonitor {
	return &IdleMonitor{
		onIdle:   onIdle,
		timeout:  timeout,
		debounce: activityDebounce,
		now:      time.Now,
	}
}

// SetTimeout replaces the inactivity timeout. The new value takes
// effect at the next activity-driven reschedule.
func (m *IdleMonitor) SetTimeout(timeout time.Duration) {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
}

// Activity records a qualifying activity signal, cancelling the
// pending deadline and restarting the countdown. Pulses arriving
// within the debounce window of the previous reset are coalesced.
func (m *IdleMonitor) Activity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.timeout <= 0 {
		return
	}
	now := m.now()
	if m.timer != nil && now.Sub(m.lastReset) < m.debounce {
		return
	}
	m.lastReset = now
	m.schedule()
}

// Stop cancels the pending deadline permanently.
func (m *IdleMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// schedule cancels and reschedules the deadline. Callers hold m.mu.
func (m *IdleMonitor) schedule() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.timeout, m.fire)
}

func (m *IdleMonitor) fire() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	// Restart the countdown before invoking the callback so the next
	// idle period is measured from this expiry, whatever the callback
	// decides to do.
	m.lastReset = m.now()
	m.schedule()
	fn := m.onIdle
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
}
