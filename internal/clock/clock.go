// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package clock provides a mockable time source.
// In production it simply wraps time.Now(); tests use MockClock.
//
// Nanos returns a monotonic nanosecond reading for the packet fast path,
// where constructing a time.Time per packet would be wasteful.
package clock

import (
	"sync"
	"time"
)

// Clock is the interface for time operations.
// Use package-level functions for convenience, or inject a Clock for testing.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// Nanos returns monotonic nanoseconds since an arbitrary fixed point.
	Nanos() int64
}

// --- Real clock ---

// RealClock provides the actual system time.
type RealClock struct{}

var processBase = time.Now()

// Now returns the current system time.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Nanos returns monotonic nanoseconds since process start.
func (c *RealClock) Nanos() int64 {
	return int64(time.Since(processBase))
}

// --- Mock clock (for testing) ---

// MockClock is a test clock with controllable time.
type MockClock struct {
	mu      sync.RWMutex
	current time.Time
	nanos   int64
}

// NewMockClock creates a mock clock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: t}
}

// Now returns the mock time.
func (c *MockClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Nanos returns the mock monotonic reading.
func (c *MockClock) Nanos() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nanos
}

// Set sets the mock time. The monotonic reading is unaffected.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Advance advances both the wall and monotonic readings by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	c.nanos += int64(d)
}

// --- Package-level convenience functions ---

// Now returns the current system time.
func Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Nanos returns monotonic nanoseconds since process start.
func Nanos() int64 {
	return int64(time.Since(processBase))
}
