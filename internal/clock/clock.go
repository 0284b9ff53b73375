// Package clock supplies wall-clock time to the auction core so that time
// boundaries can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"

	"go.uber.org/fx"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Module provides the system clock to Fx.
var Module = fx.Provide(func() Clock { return System{} })

// System reads the host clock, normalised to UTC.
type System struct{}

// Now implements Clock.
func (System) Now() time.Time { return time.Now().UTC() }

// Fake is a manually advanced clock.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake starts a Fake at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC()}
}

// Now implements Clock.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t, forwards or backwards.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
