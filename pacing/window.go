package pacing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teranos/lpharvest/errors"
)

// Window enforces max calls per minute using a sliding window
type Window struct {
	maxCallsPerMinute int
	window            time.Duration
	mu                sync.Mutex
	callTimes         []time.Time
	timeNow           func() time.Time // Injectable for testing
}

// NewWindow creates a sliding window with real time
func NewWindow(maxCallsPerMinute int) *Window {
	return NewWindowWithClock(maxCallsPerMinute, time.Now)
}

// NewWindowWithClock creates a sliding window with an injectable clock (for testing)
func NewWindowWithClock(maxCallsPerMinute int, timeNow func() time.Time) *Window {
	return &Window{
		maxCallsPerMinute: maxCallsPerMinute,
		window:            time.Minute,
		callTimes:         make([]time.Time, 0, maxCallsPerMinute),
		timeNow:           timeNow,
	}
}

// Allow records a call if the window has room.
// Returns error if the per-minute limit is reached.
func (w *Window) Allow() error {
	if d := w.reserve(); d > 0 {
		w.mu.Lock()
		inWindow := len(w.callTimes)
		w.mu.Unlock()
		err := errors.Newf("call window full: %d calls in the last minute (limit: %d)",
			inWindow, w.maxCallsPerMinute)
		return errors.WithDetail(err, fmt.Sprintf("Next slot in %s", d.Round(time.Millisecond)))
	}
	return nil
}

// Wait blocks until the window has room, then records the call.
// Returns error if context is cancelled.
func (w *Window) Wait(ctx context.Context) error {
	for {
		d := w.reserve()
		if d <= 0 {
			return nil
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records a call and returns 0, or returns how long until the oldest
// call leaves the window.
func (w *Window) reserve() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.timeNow()
	w.removeExpiredCalls(now)

	if len(w.callTimes) >= w.maxCallsPerMinute {
		d := w.callTimes[0].Add(w.window).Sub(now)
		if d <= 0 {
			d = time.Millisecond
		}
		return d
	}

	w.callTimes = append(w.callTimes, now)
	return 0
}

// removeExpiredCalls removes call timestamps that are outside the sliding window
// Must be called with lock held
func (w *Window) removeExpiredCalls(now time.Time) {
	cutoff := now.Add(-w.window)

	// timestamps are ordered
	expired := 0
	for _, callTime := range w.callTimes {
		if !callTime.After(cutoff) {
			expired++
		} else {
			break
		}
	}

	w.callTimes = w.callTimes[expired:]
}

// Reset clears the window
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.callTimes = w.callTimes[:0]
}

// Stats returns current window statistics
func (w *Window) Stats() (callsInWindow int, remaining int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.removeExpiredCalls(w.timeNow())

	callsInWindow = len(w.callTimes)
	remaining = w.maxCallsPerMinute - callsInWindow
	if remaining < 0 {
		remaining = 0
	}

	return callsInWindow, remaining
}
