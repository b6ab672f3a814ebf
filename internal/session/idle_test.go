package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestIdleTimerFires(t *testing.T) {
	var calls atomic.Int32
	it := newIdleTimer(20*time.Millisecond, func() bool {
		calls.Add(1)
		return true
	})
	defer it.Stop()

	eventually(t, func() bool { return calls.Load() == 1 })
	time.Sleep(60 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("onIdle called %d times, want 1", n)
	}
}

func TestIdleTimerRearmsWhenDeclined(t *testing.T) {
	var calls atomic.Int32
	it := newIdleTimer(10*time.Millisecond, func() bool {
		return calls.Add(1) >= 3
	})
	defer it.Stop()

	eventually(t, func() bool { return calls.Load() >= 3 })
	time.Sleep(40 * time.Millisecond)
	if n := calls.Load(); n != 3 {
		t.Errorf("onIdle called %d times, want 3", n)
	}
}

func TestIdleTimerTouchDelays(t *testing.T) {
	var calls atomic.Int32
	it := newIdleTimer(80*time.Millisecond, func() bool {
		calls.Add(1)
		return true
	})
	it.debounce = 0
	defer it.Stop()

	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		it.Touch()
	}
	if n := calls.Load(); n != 0 {
		t.Fatalf("onIdle fired after touches: %d", n)
	}
	eventually(t, func() bool { return calls.Load() == 1 })
}

func TestIdleTimerStop(t *testing.T) {
	var calls atomic.Int32
	it := newIdleTimer(20*time.Millisecond, func() bool {
		calls.Add(1)
		return true
	})
	it.Stop()
	it.Touch()

	time.Sleep(60 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("stopped timer fired %d times", n)
	}
}
