package condition

import (
	"testing"

	"circpad"
)

func TestEvaluateDelegatesToSpecConditions(t *testing.T) {
	spec := circpad.MachineSpec{Conditions: circpad.Conditions{MinHops: 3}}
	if Evaluate(spec, circpad.CircuitSnapshot{HopCount: 2}) {
		t.Fatal("expected a 2-hop circuit to fail a min_hops=3 condition")
	}
	if !Evaluate(spec, circpad.CircuitSnapshot{HopCount: 3}) {
		t.Fatal("expected a 3-hop circuit to satisfy a min_hops=3 condition")
	}
}
