package testutil

import "sync"

// Clock is a thread-safe logical timestamp source for tests. Recordings
// stamped from the same Clock get distinct, monotonically increasing
// started_at values, so multi-bundle scenarios stay deterministic and
// reproducible across runs.
type Clock struct {
	mu   sync.Mutex
	base uint64
	seq  uint64
}

// NewClock creates a clock whose first Next() returns base.
func NewClock(base uint64) *Clock {
	return &Clock{base: base}
}

// Next returns the next timestamp. Monotonic: each call returns one more
// than the previous.
func (c *Clock) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.base + c.seq
	c.seq++
	return ts
}

// Current returns the last timestamp handed out, or base when Next has
// never been called.
func (c *Clock) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq == 0 {
		return c.base
	}
	return c.base + c.seq - 1
}

// Reset rewinds the clock so the next call to Next() returns base again.
// Used for scenario reuse.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
