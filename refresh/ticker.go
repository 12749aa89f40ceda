package refresh

import (
	"context"
	"sync"
	"time"
)

// Ticker is a Timer backed by a goroutine and a time.Ticker.
//
// Ticks are never queued: when fn runs longer than the period, the ticks
// missed in the meantime are dropped by time.Ticker.
type Ticker struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	armed   bool
	stopped bool
}

func NewTicker() *Ticker {
	return &Ticker{}
}

func (t *Ticker) Start(period time.Duration, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.stopped:
		return ErrStopped
	case t.armed:
		return ErrArmed
	case period <= 0:
		return ErrPeriod
	}

	var ctx context.Context
	ctx, t.cancel = context.WithCancel(context.Background())
	t.armed = true
	t.wg.Add(1)
	go t.loop(ctx, period, fn)
	return nil
}

func (t *Ticker) loop(ctx context.Context, period time.Duration, fn func()) {
	defer t.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

func (t *Ticker) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}
