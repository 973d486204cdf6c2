// Package condition implements the conditions evaluator (component F):
// cheap, referentially transparent predicates over a circuit snapshot
// that gate whether a machine spec may be installed on a slot.
//
// Grounded on the supervisor phase-transition table's explicit
// boolean/bitmask checks elsewhere in this stack — no reflection, no
// generic rule engine, just a fixed AND over a handful of named fields.
package condition

import "circpad"

// Evaluate returns the boolean AND over every predicate spec.Conditions
// specifies against snap.
func Evaluate(spec circpad.MachineSpec, snap circpad.CircuitSnapshot) bool {
	return spec.Conditions.Evaluate(snap)
}
