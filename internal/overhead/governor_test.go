package overhead

import (
	"testing"

	"circpad"
)

func machineSpec(burst uint64, maxPercent float64) *circpad.MachineSpec {
	return &circpad.MachineSpec{
		Number:             1,
		Side:               circpad.OriginSide,
		OverheadBurst:      burst,
		OverheadMaxPercent: maxPercent,
	}
}

// I4/P5: below the burst allowance the percentage cap is ignored; once
// padding_cells >= allowed_burst, the percentage cap takes over.
func TestAllowEnforcesBurstThenPercent(t *testing.T) {
	g := New()
	g.SetGlobalCaps(1000, 1) // keep the global cap out of the way.
	spec := machineSpec(3, 0.5)

	// First three sends: below burst, always allowed regardless of ratio.
	for i := 0; i < 3; i++ {
		if !g.Allow(spec) {
			t.Fatalf("send %d: expected allow within burst allowance", i)
		}
		g.RecordPadding(spec)
	}

	// Now padding=3 >= burst=3: the percentage cap (50%) applies.
	// total=3, padding=3 -> ratio 100% > 50%: must be suppressed.
	if g.Allow(spec) {
		t.Fatal("expected suppression once padding ratio exceeds max percent past the burst")
	}

	// Bring in enough non-padding traffic to bring the ratio back under 50%.
	g.RecordNonPadding(spec)
	g.RecordNonPadding(spec)
	g.RecordNonPadding(spec)
	// total=6, padding=3 -> ratio 50% <= 50%: allowed again.
	if !g.Allow(spec) {
		t.Fatal("expected padding to resume once the ratio is back within the cap")
	}
}

// A machine's very first send is always allowed: the per-machine cap
// only starts being enforced once a counter entry exists for it.
func TestAllowGrantsFreeFirstSendPerMachine(t *testing.T) {
	g := New()
	g.SetGlobalCaps(1000, 1)
	spec := machineSpec(0, 0)

	if !g.Allow(spec) {
		t.Fatal("expected the first-ever send for a machine to be allowed regardless of its own zero caps")
	}
	g.RecordPadding(spec)
	if g.Allow(spec) {
		t.Fatal("expected the second send to be suppressed by a zero burst/percent cap")
	}
}

func TestAllowEnforcesGlobalCapIndependentlyOfPerMachine(t *testing.T) {
	g := New()
	g.SetGlobalCaps(2, 0.01)
	// A loose per-machine cap so only the global cap binds.
	spec := machineSpec(1000, 1)

	for i := 0; i < 2; i++ {
		if !g.Allow(spec) {
			t.Fatalf("send %d: expected allow within the global burst", i)
		}
		g.RecordPadding(spec)
	}
	if g.Allow(spec) {
		t.Fatal("expected suppression once the global burst is exhausted and the tight percent cap binds")
	}
}

func TestRecordNonPaddingContributesOnlyToTotal(t *testing.T) {
	g := New()
	spec := machineSpec(10, 1)
	g.RecordNonPadding(spec)
	g.RecordNonPadding(spec)

	snap := g.SnapshotMachine(spec)
	if snap.Padding != 0 || snap.Total != 2 {
		t.Fatalf("machine snapshot = %+v, want padding=0 total=2", snap)
	}
	global := g.Snapshot()
	if global.Padding != 0 || global.Total != 2 {
		t.Fatalf("global snapshot = %+v, want padding=0 total=2", global)
	}
}

func TestResetClearsAllCounters(t *testing.T) {
	g := New()
	spec := machineSpec(10, 1)
	g.RecordPadding(spec)
	g.RecordNonPadding(spec)
	g.Reset()

	if snap := g.Snapshot(); snap != (Counts{}) {
		t.Fatalf("global snapshot after Reset = %+v, want zero value", snap)
	}
	if snap := g.SnapshotMachine(spec); snap != (Counts{}) {
		t.Fatalf("per-machine snapshot after Reset = %+v, want zero value", snap)
	}
}

func TestSnapshotMachineDistinguishesBySideAndNumber(t *testing.T) {
	g := New()
	originSpec := machineSpec(10, 1)
	relaySpec := &circpad.MachineSpec{Number: 1, Side: circpad.RelaySide, OverheadBurst: 10, OverheadMaxPercent: 1}

	g.RecordPadding(originSpec)
	if snap := g.SnapshotMachine(relaySpec); snap.Padding != 0 {
		t.Fatalf("relay-side snapshot = %+v, want untouched by an origin-side record", snap)
	}
}
