//go:build debug

package check

import "fmt"

// Package check guards the engine's own invariants (I2's single pending
// timer, I6's terminal-state no-outgoing-transitions) — violations here
// mean the dispatcher itself is wrong, not that a caller passed bad
// input. Caller-facing errors (a bad MachineSpec, an unknown slot) still
// return an error; Assert/Assertf are for bugs the engine should never
// let a caller trigger.

// Assert panics if cond is false. Only active in debug builds.
func Assert(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// Assertf panics if cond is false with a formatted message. Only active in debug builds.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(format, args...))
	}
}
