// Package clock abstracts the current time so that rate limiting, token
// validation and signature freshness can be tested deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System is a Clock backed by time.Now.
type System struct{}

// Now returns the current system time.
func (System) Now() time.Time {
	return time.Now()
}

// Default returns c, or System when c is nil.
func Default(c Clock) Clock {
	if c == nil {
		return System{}
	}

	return c
}

// Fixture is a controllable Clock for tests. It is safe for concurrent use.
type Fixture struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixture returns a Fixture starting at start. A zero start uses
// time.Now truncated to the second.
func NewFixture(start time.Time) *Fixture {
	if start.IsZero() {
		start = time.Now().Truncate(time.Second)
	}

	return &Fixture{now: start}
}

// Now returns the fixture time.
func (f *Fixture) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.now
}

// Set moves the fixture to t.
func (f *Fixture) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the fixture forward by d. A negative d rewinds it.
func (f *Fixture) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
