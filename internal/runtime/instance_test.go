package runtime

import (
	"testing"
	"time"

	"circpad"
)

func twoStateSpec() *circpad.MachineSpec {
	return &circpad.MachineSpec{
		Number: 1,
		Side:   circpad.OriginSide,
		States: []circpad.State{
			{Dist: &circpad.Distribution{Family: circpad.Uniform, P1: 0, P2: 0}, NextState: map[circpad.Event]int{}},
			{Dist: &circpad.Distribution{Family: circpad.Uniform, P1: 0, P2: 0}, NextState: map[circpad.Event]int{}},
		},
	}
}

func TestNewInstanceStartsAtStateZeroActive(t *testing.T) {
	inst := New(twoStateSpec())
	if inst.StateIndex != 0 {
		t.Fatalf("StateIndex = %d, want 0", inst.StateIndex)
	}
	if inst.Phase != Active {
		t.Fatalf("Phase = %v, want Active", inst.Phase)
	}
}

func TestEnterStateCopiesHistogramOnlyWhenTokenRemovalIsSet(t *testing.T) {
	h, err := circpad.NewHistogram([]uint64{0, 1000}, []uint64{2, 0})
	if err != nil {
		t.Fatalf("NewHistogram: %v", err)
	}

	spec := &circpad.MachineSpec{
		Number: 1,
		Side:   circpad.OriginSide,
		States: []circpad.State{
			{Hist: &h, TokenRemoval: circpad.RemoveExact, NextState: map[circpad.Event]int{}},
			{Hist: &h, TokenRemoval: circpad.RemoveNone, NextState: map[circpad.Event]int{}},
		},
	}
	inst := New(spec)
	inst.EnterState(0)
	if inst.Hist == nil {
		t.Fatal("expected a mutable histogram copy for a state with non-null token removal")
	}
	inst.Hist.Tokens[0] = 0
	if spec.States[0].Hist.Tokens[0] != 2 {
		t.Fatal("mutating the instance's histogram copy must not affect the spec's template")
	}

	inst.EnterState(1)
	if inst.Hist != nil {
		t.Fatal("expected no mutable histogram copy for a state with RemoveNone")
	}
}

func TestConsumeLengthExhaustion(t *testing.T) {
	inst := New(twoStateSpec())
	inst.SetLengthBudget(2)

	if exhausted := inst.ConsumeLength(); exhausted {
		t.Fatal("expected not exhausted after the first consume of a budget of 2")
	}
	if exhausted := inst.ConsumeLength(); !exhausted {
		t.Fatal("expected exhausted after the second consume of a budget of 2")
	}
}

func TestConsumeLengthZeroBudgetExhaustedImmediately(t *testing.T) {
	inst := New(twoStateSpec())
	inst.SetLengthBudget(0)
	if exhausted := inst.ConsumeLength(); !exhausted {
		t.Fatal("a zero-length budget must report exhausted on its first consume")
	}
}

func TestConsumeLengthUnlimitedNeverExhausts(t *testing.T) {
	inst := New(twoStateSpec())
	inst.SetUnlimitedLength()
	for i := 0; i < 5; i++ {
		if exhausted := inst.ConsumeLength(); exhausted {
			t.Fatal("an unlimited length budget must never report exhausted")
		}
	}
}

func TestRecordCellFirstCellHasNoInterArrival(t *testing.T) {
	inst := New(twoStateSpec())
	_, has := inst.RecordCell(circpad.Padding, time.Unix(0, 0))
	if has {
		t.Fatal("the first recorded cell must report no inter-arrival")
	}
	if inst.PaddingCount != 1 {
		t.Fatalf("PaddingCount = %d, want 1", inst.PaddingCount)
	}
}

func TestRecordCellInterArrival(t *testing.T) {
	inst := New(twoStateSpec())
	t0 := time.Unix(0, 0)
	inst.RecordCell(circpad.NonPadding, t0)
	d, has := inst.RecordCell(circpad.NonPadding, t0.Add(500*time.Microsecond))
	if !has || d != 500*time.Microsecond {
		t.Fatalf("inter-arrival = %v, has=%v; want 500µs, true", d, has)
	}
	if inst.NonPaddingCount != 2 {
		t.Fatalf("NonPaddingCount = %d, want 2", inst.NonPaddingCount)
	}
}

func TestRTTEstimateClosesOutOnFirstRoundTrip(t *testing.T) {
	inst := New(twoStateSpec())
	t0 := time.Unix(0, 0)
	inst.NoteNonPaddingSent(t0)
	inst.NoteNonPaddingRecv(t0.Add(10 * time.Millisecond))
	if inst.RTTEstimate != 10*time.Millisecond {
		t.Fatalf("RTTEstimate = %v, want 10ms", inst.RTTEstimate)
	}

	// A further recv with no send outstanding updates nothing; only a
	// new send restarts tracking.
	inst.NoteNonPaddingRecv(t0.Add(time.Second))
	if inst.RTTEstimate != 10*time.Millisecond {
		t.Fatalf("RTTEstimate changed on a recv with nothing outstanding: %v", inst.RTTEstimate)
	}
}

// I2: arming always bumps the generation, so a fire for a stale
// generation is recognized as invalid even after cancellation.
func TestTimerGenerationAndValidity(t *testing.T) {
	inst := New(twoStateSpec())
	gen1 := inst.ArmTimer()
	if !inst.TimerStillValid(gen1) {
		t.Fatal("expected the just-armed generation to be valid")
	}

	gen2 := inst.ArmTimer()
	if gen2 == gen1 {
		t.Fatal("expected ArmTimer to bump the generation on every call")
	}
	if inst.TimerStillValid(gen1) {
		t.Fatal("a stale generation must no longer be valid after re-arming")
	}
	if !inst.TimerStillValid(gen2) {
		t.Fatal("the current generation must be valid")
	}

	inst.CancelTimer()
	if inst.TimerStillValid(gen2) {
		t.Fatal("no generation should be valid once the timer is cancelled")
	}
}
