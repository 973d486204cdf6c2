package circpad

import "fmt"

// NoTransition is the next-state sentinel meaning "no change": the
// runtime stays in its current state. It is also the value returned for
// any event with no entry in a state's NextState table.
const NoTransition = -1

// State is one node of a machine's state graph. Its timing source is
// exactly one of a parameterized Distribution or a Histogram — never
// both, never neither.
type State struct {
	// Dist is the parametric timing source. Exactly one of Dist/Hist is set.
	Dist *Distribution
	// Hist is the histogram timing source. Exactly one of Dist/Hist is set.
	Hist *Histogram

	// LengthDist, if set, is sampled on entry to yield this state's
	// per-visit padding budget. Unset means unlimited.
	LengthDist *Distribution

	// TokenRemoval is only meaningful when Hist is set.
	TokenRemoval TokenRemoval

	// NextState maps an event to a target state index, or NoTransition.
	// An event with no entry behaves as NoTransition.
	NextState map[Event]int
}

// HasHistogram reports whether this state's timing source is a histogram.
func (s State) HasHistogram() bool {
	return s.Hist != nil
}

// Next returns the transition target for event, or NoTransition if none
// is configured.
func (s State) Next(event Event) int {
	if s.NextState == nil {
		return NoTransition
	}
	target, ok := s.NextState[event]
	if !ok {
		return NoTransition
	}
	return target
}

// Validate reports a specification error if s is malformed.
func (s State) Validate(stateCount int) error {
	if s.Dist == nil && s.Hist == nil {
		return fmt.Errorf("circpad: state has neither a distribution nor a histogram timing source")
	}
	if s.Dist != nil && s.Hist != nil {
		return fmt.Errorf("circpad: state has contradictory timing sources (both distribution and histogram)")
	}
	if s.Dist != nil {
		if err := s.Dist.Validate(); err != nil {
			return err
		}
	}
	if s.Hist != nil {
		if err := s.Hist.Validate(); err != nil {
			return err
		}
	}
	if s.LengthDist != nil {
		if err := s.LengthDist.Validate(); err != nil {
			return fmt.Errorf("circpad: length distribution: %w", err)
		}
	}
	for event, target := range s.NextState {
		if target == NoTransition {
			continue
		}
		if target < 0 || target >= stateCount {
			return fmt.Errorf("circpad: state transition for event %s targets out-of-range state %d (machine has %d states)", event, target, stateCount)
		}
	}
	return nil
}
