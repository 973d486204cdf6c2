package circpad

import "testing"

func twoStateSpec() MachineSpec {
	return MachineSpec{
		Number: 1,
		Name:   "test",
		Side:   OriginSide,
		States: []State{
			{
				Dist:      &Distribution{Family: Uniform, P1: 1000, P2: 1000},
				NextState: map[Event]int{PaddingSent: 1},
			},
			{
				Dist:      &Distribution{Family: Uniform, P1: 0, P2: 0},
				NextState: map[Event]int{},
			},
		},
	}
}

func TestMachineSpecValidateOK(t *testing.T) {
	if err := twoStateSpec().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestMachineSpecValidateNoStates(t *testing.T) {
	m := MachineSpec{Name: "empty"}
	if err := m.Validate(); err == nil {
		t.Fatal("expected an error for a machine with no states")
	}
}

// I6: the terminal state must have no outgoing transitions.
func TestMachineSpecValidateTerminalHasNoTransitions(t *testing.T) {
	m := twoStateSpec()
	m.States[1].NextState[PaddingSent] = 0
	if err := m.Validate(); err == nil {
		t.Fatal("expected an error for a terminal state with an outgoing transition")
	}
}

func TestMachineSpecValidateOverheadPercentRange(t *testing.T) {
	m := twoStateSpec()
	m.OverheadMaxPercent = 1.5
	if err := m.Validate(); err == nil {
		t.Fatal("expected an error for an overhead max percent outside [0,1]")
	}
}

func TestMachineSpecValidateRejectsOutOfRangeTransitionTarget(t *testing.T) {
	m := twoStateSpec()
	m.States[0].NextState[PaddingSent] = 5
	if err := m.Validate(); err == nil {
		t.Fatal("expected an error for a transition targeting an out-of-range state")
	}
}

func TestMachineSpecTerminalState(t *testing.T) {
	m := twoStateSpec()
	if m.TerminalState() != 1 {
		t.Fatalf("TerminalState() = %d, want 1", m.TerminalState())
	}
	if !m.IsTerminal(1) || m.IsTerminal(0) {
		t.Fatal("IsTerminal did not correctly identify the terminal state")
	}
}
