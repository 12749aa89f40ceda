package refresh

import (
	"sync"
	"time"
)

// Manual is a Timer whose ticks are fired explicitly, for runtimes that own
// their scheduling loop.
type Manual struct {
	mu      sync.Mutex
	fn      func()
	period  time.Duration
	stopped bool
}

func (m *Manual) Start(period time.Duration, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.stopped:
		return ErrStopped
	case m.fn != nil:
		return ErrArmed
	case period <= 0:
		return ErrPeriod
	}
	m.fn = fn
	m.period = period
	return nil
}

func (m *Manual) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

// Period returns the period requested at Start, or 0 when unarmed.
func (m *Manual) Period() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.period
}

// Fire runs one tick synchronously. It reports false when the timer is not
// armed or already stopped.
func (m *Manual) Fire() bool {
	m.mu.Lock()
	fn := m.fn
	if m.stopped {
		fn = nil
	}
	m.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}
