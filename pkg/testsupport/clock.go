package testsupport

import (
	"sort"
	"sync"
	"time"
)

// Clock is a manually advanced time source. Timers created through AfterFunc fire
// synchronously inside Advance, in deadline order.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers map[int]*ManualTimer
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start, timers: make(map[int]*ManualTimer)}
}

// Now returns the current manual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set jumps to t without firing timers.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d and fires every timer that became due.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		timer := c.nextDue(target)
		if timer == nil {
			break
		}
		timer.fn()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// nextDue pops the earliest timer due at or before target and moves the clock to it.
func (c *Clock) nextDue(target time.Time) *ManualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	due := make([]*ManualTimer, 0, len(c.timers))
	for _, timer := range c.timers {
		if !timer.deadline.After(target) {
			due = append(due, timer)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].id < due[j].id
		}
		return due[i].deadline.Before(due[j].deadline)
	})

	next := due[0]
	delete(c.timers, next.id)
	if next.deadline.After(c.now) {
		c.now = next.deadline
	}
	return next
}

// AfterFunc schedules fn to run once the clock has advanced by d.
func (c *Clock) AfterFunc(d time.Duration, fn func()) *ManualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	timer := &ManualTimer{clock: c, id: c.seq, deadline: c.now.Add(d), fn: fn}
	c.timers[timer.id] = timer
	return timer
}

// PendingTimers reports how many timers have not fired or been stopped.
func (c *Clock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// ManualTimer is a timer driven by Clock.
type ManualTimer struct {
	clock    *Clock
	id       int
	deadline time.Time
	fn       func()
}

// Stop cancels the timer. It reports whether the timer was still pending.
func (t *ManualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if _, ok := t.clock.timers[t.id]; !ok {
		return false
	}
	delete(t.clock.timers, t.id)
	return true
}

// Deadline returns when the timer fires.
func (t *ManualTimer) Deadline() time.Time {
	return t.deadline
}
