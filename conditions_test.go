package circpad

import "testing"

func TestConditionsEvaluateMinHops(t *testing.T) {
	c := Conditions{MinHops: 3}
	if c.Evaluate(CircuitSnapshot{HopCount: 2}) {
		t.Fatal("expected a 2-hop circuit to fail a min_hops=3 condition")
	}
	if !c.Evaluate(CircuitSnapshot{HopCount: 3}) {
		t.Fatal("expected a 3-hop circuit to satisfy a min_hops=3 condition")
	}
}

func TestConditionsEvaluateStateMask(t *testing.T) {
	c := Conditions{StateMask: HasStreams}
	if c.Evaluate(CircuitSnapshot{StateMask: NoStreams}) {
		t.Fatal("expected has-streams condition to fail against a no-streams snapshot")
	}
	if !c.Evaluate(CircuitSnapshot{StateMask: HasStreams | Opened}) {
		t.Fatal("expected has-streams condition to pass when any required bit is set")
	}
}

func TestConditionsEvaluateUnsetMaskAlwaysMatches(t *testing.T) {
	c := Conditions{}
	if !c.Evaluate(CircuitSnapshot{}) {
		t.Fatal("an all-zero Conditions must match any snapshot")
	}
}

func TestConditionsEvaluateBooleanFlags(t *testing.T) {
	c := Conditions{RequiresVanguards: true, ReducedExitPolicy: true, RequiresExit: true}
	if c.Evaluate(CircuitSnapshot{}) {
		t.Fatal("expected failure when none of the required booleans are satisfied")
	}
	if !c.Evaluate(CircuitSnapshot{HasVanguards: true, IsReducedExit: true, IsExit: true}) {
		t.Fatal("expected success when every required boolean is satisfied")
	}
}

func TestConditionsEvaluateIsConjunctive(t *testing.T) {
	c := Conditions{MinHops: 3, StateMask: HasStreams, RequiresExit: true}
	// Satisfies two of three predicates: still must fail overall.
	if c.Evaluate(CircuitSnapshot{HopCount: 3, StateMask: HasStreams, IsExit: false}) {
		t.Fatal("expected AND semantics: one failing predicate fails the whole evaluation")
	}
}
