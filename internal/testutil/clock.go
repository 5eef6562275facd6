package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a Clock.
var Epoch = time.Date(2025, time.November, 1, 9, 0, 0, 0, time.UTC)

// Clock is a deterministic wall clock for tests. Each call to Now advances
// it by a fixed step, so successive solves get distinct, predictable
// timestamps.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	ticks int64
}

// NewClock creates a clock whose first Now returns start. A zero start
// means Epoch; a zero step means one second.
func NewClock(start time.Time, step time.Duration) *Clock {
	if start.IsZero() {
		start = Epoch
	}
	if step == 0 {
		step = time.Second
	}
	return &Clock{start: start, step: step}
}

// Now returns the current time and advances the clock by one step.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.ticks) * c.step)
	c.ticks++
	return t
}

// Peek returns what the next Now will return, without advancing.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(c.ticks) * c.step)
}

// Ticks returns how many times Now has been called.
func (c *Clock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock to its start.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
