package testutil

import (
	"sync"
	"time"
)

// DefaultStart is the instant a FixedClock starts at unless told otherwise.
var DefaultStart = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

// FixedClock is a deterministic wall clock for tests. Every call to Now
// returns the current instant and then advances by Step.
//
// Thread-safety: all methods are safe for concurrent use.
type FixedClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewFixedClock creates a clock at start advancing one second per call.
func NewFixedClock(start time.Time) *FixedClock {
	return &FixedClock{now: start.UTC(), Step: time.Second}
}

// NewDefaultClock creates a clock at DefaultStart.
func NewDefaultClock() *FixedClock {
	return NewFixedClock(DefaultStart)
}

// Now returns the current instant and advances the clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Peek returns the current instant without advancing.
func (c *FixedClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
