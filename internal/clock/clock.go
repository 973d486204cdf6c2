// Package clock abstracts monotonic time so the scheduler and its tests
// can agree on what "now" means without sleeping.
package clock

import "time"

// Clock hands out monotonic instants. The engine never reads wall-clock
// time directly; every delay and timer deadline is computed against a
// Clock so tests can drive the engine without real sleeps.
type Clock interface {
	Now() time.Time
}

// Real implements Clock using the system's monotonic clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }
