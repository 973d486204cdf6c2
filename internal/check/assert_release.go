//go:build !debug

package check

// A release build trusts the dispatcher's own invariants (I2, I6) rather
// than paying for the check on every transition; build with -tags debug
// to have them enforced instead.

// Assert is a no-op in release builds.
func Assert(_ bool, _ string) {}

// Assertf is a no-op in release builds.
func Assertf(_ bool, _ string, _ ...any) {}
