package testutil

import "sync"

// Sequence is a resettable monotonic counter for trace ordering.
// The first call to Next returns 1.
type Sequence struct {
	mu sync.Mutex
	n  int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next increments and returns the sequence number.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n
}

// Current returns the last number handed out.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Reset rewinds the sequence so the next call to Next returns 1.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}
