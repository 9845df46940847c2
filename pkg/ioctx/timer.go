package ioctx

import (
	"sync/atomic"
	"time"
)

// Timer runs a function on a Context after a delay.
// A stopped Timer never runs its function, even if it already fired and the
// task is still queued.
type Timer struct {
	t         *time.Timer
	cancelled atomic.Bool
}

// AfterFunc arranges for fn to run on c after d has elapsed. If c is
// stopped by then, fn never runs.
func (c *Context) AfterFunc(d time.Duration, fn func()) *Timer {
	return AfterFunc(d, func(task func()) { c.Post(task) }, fn)
}

// AfterFunc arranges for fn to be handed to post after d has elapsed. It
// lets owners with their own dispatch rules, such as a fallback for a
// stopped context, schedule timers the same way they schedule other work.
func AfterFunc(d time.Duration, post func(func()), fn func()) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() {
		post(func() {
			if tm.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return tm
}

// Stop prevents the timer from running its function. It reports whether
// the call stopped the timer before the function ran or was queued.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	t.cancelled.Store(true)
	return t.t.Stop()
}
