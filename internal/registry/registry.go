// Package registry owns the immutable catalog of machine specifications
// (component B). Registration happens once at process start; lookup by
// (side, machine number) scans that side's list linearly, and iteration for activation
// proceeds in reverse registration order (I5: later-registered machines
// win ties).
//
// Modeled on the convergence loop's small-interface-plus-slice shape
// elsewhere in this stack — a registry here is nothing more than two
// plain slices behind a thin accessor, read-only after startup.
package registry

import (
	"fmt"

	"circpad"
)

// Registry is the process-global catalog of compiled-in machine specs,
// split by side the way a circuit's origin and relay hop each consult
// only their own side's machines.
type Registry struct {
	origin []circpad.MachineSpec
	relay  []circpad.MachineSpec
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register validates and appends spec to its side's list. Returns a
// specification error (category 1) if spec is malformed or its number
// is already registered on that side.
func (r *Registry) Register(spec circpad.MachineSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	list := r.listFor(spec.Side)
	for _, existing := range *list {
		if existing.Number == spec.Number {
			return fmt.Errorf("circpad: machine number %d already registered on %s side", spec.Number, spec.Side)
		}
	}
	*list = append(*list, spec)
	return nil
}

// Lookup finds a spec by (side, machine number).
func (r *Registry) Lookup(side circpad.Side, number uint8) (circpad.MachineSpec, bool) {
	for _, spec := range *r.listFor(side) {
		if spec.Number == number {
			return spec, true
		}
	}
	return circpad.MachineSpec{}, false
}

// ReverseEach calls fn for every registered spec on side, in reverse
// registration order, stopping early if fn returns false.
func (r *Registry) ReverseEach(side circpad.Side, fn func(circpad.MachineSpec) bool) {
	list := *r.listFor(side)
	for i := len(list) - 1; i >= 0; i-- {
		if !fn(list[i]) {
			return
		}
	}
}

func (r *Registry) listFor(side circpad.Side) *[]circpad.MachineSpec {
	if side == circpad.RelaySide {
		return &r.relay
	}
	return &r.origin
}
