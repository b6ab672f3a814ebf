package session

import (
	"sync"
	"time"
)

// idleTimer calls onIdle once duration passes without a Touch. If onIdle
// returns false the countdown starts over.
type idleTimer struct {
	duration time.Duration
	debounce time.Duration
	onIdle   func() bool

	mu        sync.Mutex
	timer     *time.Timer
	lastReset time.Time
	stopped   bool
}

func newIdleTimer(duration time.Duration, onIdle func() bool) *idleTimer {
	debounce := 500 * time.Millisecond
	if debounce > duration/4 {
		debounce = duration / 4
	}
	t := &idleTimer{
		duration: duration,
		debounce: debounce,
		onIdle:   onIdle,
	}
	t.mu.Lock()
	t.arm()
	t.mu.Unlock()
	return t
}

func (t *idleTimer) arm() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.lastReset = time.Now()
	t.timer = time.AfterFunc(t.duration, t.fire)
}

func (t *idleTimer) fire() {
	t.mu.Lock()
	if t.stopped || time.Since(t.lastReset) < t.duration {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if t.onIdle() {
		t.Stop()
		return
	}
	t.mu.Lock()
	if !t.stopped {
		t.arm()
	}
	t.mu.Unlock()
}

// Touch restarts the countdown. Touches closer together than the debounce
// interval are ignored.
func (t *idleTimer) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || time.Since(t.lastReset) < t.debounce {
		return
	}
	t.arm()
}

func (t *idleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
