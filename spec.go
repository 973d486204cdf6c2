package circpad

import "fmt"

// MachineType tags the kind of circuit-setup role a machine targets in
// the negotiation payload (§6.1 machine_type field).
type MachineType uint8

const (
	MachineTypeCircuitSetupClient MachineType = 0
	MachineTypeRelay              MachineType = 1
	// MachineTypeCustom and above are reserved for custom deployments.
	MachineTypeCustom MachineType = 2
)

// MachineSpec is an immutable, process-global description of a padding
// machine: a state machine whose transitions are triggered by cell
// events, with per-state timing, token-removal policy, and an overhead
// budget. Specs are compiled-in at startup and never mutated
// afterward — they are not loaded from configuration or consensus.
type MachineSpec struct {
	// Number identifies this spec within its side's registry.
	Number uint8
	// Name is a human-readable label for logs and diagnostics.
	Name string

	// TargetHop is the hop index (counted from the originating endpoint)
	// this machine addresses its padding cells to.
	TargetHop int
	// Side is which endpoint runs this machine.
	Side Side
	// Type is the machine_type advertised in negotiation.
	Type MachineType

	// Conditions gate installation against a circuit's attributes.
	Conditions Conditions

	// States is the ordered state graph. By convention the last state
	// is the terminal state (I6): it has no outgoing transitions, and
	// entering it causes shutdown.
	States []State

	// ShouldNegotiateEnd, if true, means the origin sends an explicit
	// STOP when this machine ends rather than letting the relay infer
	// shutdown from its own terminal-state entry.
	ShouldNegotiateEnd bool
	// KeepCircuitAlive prevents idle-circuit teardown while this
	// machine is active, independent of its own conditions.
	KeepCircuitAlive bool

	// OverheadBurst is the absolute number of this machine's own padding
	// cells allowed before its percentage cap applies.
	OverheadBurst uint64
	// OverheadMaxPercent is this machine's own padding cells as a
	// fraction (0-1) of its own total cells, enforced above OverheadBurst.
	OverheadMaxPercent float64
}

// TerminalState returns the index of the terminal state (by convention
// the last state).
func (m MachineSpec) TerminalState() int {
	return len(m.States) - 1
}

// IsTerminal reports whether stateIndex is the terminal state.
func (m MachineSpec) IsTerminal(stateIndex int) bool {
	return stateIndex == m.TerminalState()
}

// Validate reports a specification error (category 1, detected at
// registration) if m is malformed.
func (m MachineSpec) Validate() error {
	if len(m.States) == 0 {
		return fmt.Errorf("circpad: machine %q (number %d) has no states", m.Name, m.Number)
	}
	for i, s := range m.States {
		if err := s.Validate(len(m.States)); err != nil {
			return fmt.Errorf("circpad: machine %q state %d: %w", m.Name, i, err)
		}
	}
	terminal := m.States[m.TerminalState()]
	for event, target := range terminal.NextState {
		if target != NoTransition {
			return fmt.Errorf("circpad: machine %q: terminal state has an outgoing transition on %s", m.Name, event)
		}
	}
	if m.OverheadMaxPercent < 0 || m.OverheadMaxPercent > 1 {
		return fmt.Errorf("circpad: machine %q: overhead max percent %v out of [0,1]", m.Name, m.OverheadMaxPercent)
	}
	return nil
}
