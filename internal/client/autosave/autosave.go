// Package autosave provides the debounced trigger that persists canvas
// state after a quiet period following mutation.
package autosave

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period after the last mutation before a
// save fires.
const DefaultDelay = 2 * time.Second

// Scheduler is a trailing-edge debouncer. Each Touch cancels and
// restarts the pending timer, so a burst of rapid mutations collapses
// to a single save after the quiet period. The fire callback decides
// what to persist by reading current state at fire time, never from a
// payload captured at schedule time.
type Scheduler struct {
	mu     sync.Mutex
	delay  time.Duration
	timer  *time.Timer
	closed bool
	fire   func()
}

// New creates a scheduler that invokes fire after delay has elapsed
// without a Touch. A non-positive delay falls back to DefaultDelay.
func New(delay time.Duration, fire func()) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Scheduler{delay: delay, fire: fire}
}

// Touch restarts the quiet-period timer. Calling Touch on a closed
// scheduler is a no-op: a torn-down view must not produce a stale save.
func (s *Scheduler) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.run)
}

// Flush cancels any pending timer and fires synchronously. Used for
// explicit saves so the manual and timer-triggered paths share one
// save routine. A closed scheduler does not fire.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.fire()
}

// Cancel stops any pending timer without disabling the scheduler.
// Used on space switch so a save scheduled against the outgoing space
// cannot fire against the incoming one.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Close cancels any pending timer and disables the scheduler. Safe to
// call multiple times.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) run() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	s.fire()
}
