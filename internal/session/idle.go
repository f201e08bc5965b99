package session

import (
	"sync"
	"time"
)

// idleTimer fires onExpire once after timeout unless reset or stopped. A
// generation counter discards callbacks that were already running when the
// timer was reset.
type idleTimer struct {
	mu       sync.Mutex
	timeout  time.Duration
	timer    *time.Timer
	gen      uint64
	onExpire func()
}

func newIdleTimer(timeout time.Duration, onExpire func()) *idleTimer {
	return &idleTimer{timeout: timeout, onExpire: onExpire}
}

func (t *idleTimer) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.timeout, func() { t.fire(gen) })
}

func (t *idleTimer) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

func (t *idleTimer) armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

func (t *idleTimer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire()
	}
}
