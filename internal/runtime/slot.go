package runtime

import "circpad"

// Slot is one of a circuit's (at most two) machine slots. It pairs an
// immutable spec reference with an optional runtime Instance. The spec
// reference outlives the Instance during shutdown grace (I1): stray
// incoming padding cells on a slot whose Spec is nil are a protocol
// violation, but while Spec is set and Instance is nil, such cells are
// still attributable to a known machine winding down.
type Slot struct {
	Spec     *circpad.MachineSpec
	Instance *Instance

	// MachineCtr is this slot's current negotiation counter (§4.H),
	// incremented on every install so NEGOTIATED responses can be
	// matched to the request that produced them across rapid
	// replacement (S5).
	MachineCtr uint32
}

// Empty reports whether the slot has neither a spec nor an instance.
func (s *Slot) Empty() bool {
	return s.Spec == nil && s.Instance == nil
}

// Install attaches spec and a fresh Instance, bumping MachineCtr. The
// caller still must perform initial-state entry actions via the
// dispatcher.
func (s *Slot) Install(spec *circpad.MachineSpec) *Instance {
	s.Spec = spec
	s.Instance = New(spec)
	s.MachineCtr++
	return s.Instance
}

// BeginShutdown drops the Instance but keeps the Spec reference, per I1
// and the slot state machine's ACTIVE→WAITING_STOP edge.
func (s *Slot) BeginShutdown() {
	s.Instance = nil
}

// Clear drops both the Instance and the Spec reference, returning the
// slot to EMPTY.
func (s *Slot) Clear() {
	s.Spec = nil
	s.Instance = nil
}

// WaitingStop reports whether the slot is in the WAITING_STOP state:
// spec still set, instance already gone.
func (s *Slot) WaitingStop() bool {
	return s.Spec != nil && s.Instance == nil
}
