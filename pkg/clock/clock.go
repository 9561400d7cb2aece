// Package clock supplies the current time to session components so tests can
// control it.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Millis returns the clock's current time as epoch milliseconds, the unit
// used by session timestamps.
func Millis(c Clock) int64 {
	return c.Now().UnixMilli()
}

// Mock is a manually driven clock. It is safe for concurrent use.
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMock returns a Mock frozen at t.
func NewMock(t time.Time) *Mock {
	return &Mock{now: t}
}

// NewMockMillis returns a Mock frozen at the given epoch milliseconds.
func NewMockMillis(ms int64) *Mock {
	return NewMock(time.UnixMilli(ms))
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// SetMillis moves the clock to the given epoch milliseconds.
func (m *Mock) SetMillis(ms int64) {
	m.Set(time.UnixMilli(ms))
}

// Advance moves the clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
