package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a FakeClock: 2000-01-01T00:00:00Z.
var Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// FakeClock provides a thread-safe controllable wall clock for tests.
//
// With a non-zero step, every Now() call advances the clock by step after
// reading it, so successive transactions get distinct, increasing times
// (like a logical clock with a fixed tick).
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	step  time.Duration
	start time.Time
}

// NewFakeClock creates a clock reading start that advances by step per
// Now() call.
//
// The first call to Now() returns start.
func NewFakeClock(start time.Time, step time.Duration) *FakeClock {
	start = start.Round(0).UTC()
	return &FakeClock{now: start, step: step, start: start}
}

// Now returns the current time, then advances by the step.
//
// Implements engine.Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Peek returns the current time without advancing.
func (c *FakeClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is allowed: the store clamps
// reservation times so transaction times still never decrease.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.Round(0).UTC()
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Reset moves the clock back to its start.
//
// Used for test reuse. After Reset(), the next call to Now() returns start.
func (c *FakeClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
