// core/clock.go
package core

import "time"

// Clock is the time source components reach for when they need "now"
// outside of an already-parameterized tick call. Taking a Clock rather than
// calling time.Now() directly lets tests substitute a fixed instant.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall-clock Clock used in production.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a Clock that always returns the same instant, for
// deterministic tests.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (f FixedClock) Now() time.Time { return f.At }
