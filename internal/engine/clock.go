package engine

import "sync/atomic"

// Clock is a monotonic counter stamped on every rendered View.
//
// Renderers can use View.Seq to drop frames that arrive out of order, and
// tests use it to assert that a refresh happened after a given mutation.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
