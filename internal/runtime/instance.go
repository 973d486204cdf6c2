// Package runtime holds the per-circuit runtime state for an installed
// machine (component C): current state index, a lazily-copied mutable
// histogram, cell counters, the pending timer handle, the RTT estimate,
// and the shutdown phase. It is allocated from a spec plus a slot and
// exposes read-only accessors for counters/state plus mutators reserved
// for the dispatcher and scheduler.
//
// Modeled on the mutex-guarded struct-with-accessors shape used for a
// machine's network stack elsewhere in this stack, and on the per-peer
// mutable-state-map pattern used by the freshness tracker for its own
// per-peer bookkeeping.
package runtime

import (
	"time"

	"circpad"
)

// ShutdownPhase tracks whether an active runtime is still serving
// events or has sent STOP and is only waiting out the NEGOTIATED
// handshake before its spec reference is cleared too.
type ShutdownPhase uint8

const (
	Active ShutdownPhase = iota
	AwaitingNegotiated
)

func (p ShutdownPhase) String() string {
	if p == AwaitingNegotiated {
		return "awaiting_negotiated"
	}
	return "active"
}

// Instance is the mutable state attached to one machine slot on one
// circuit (§3 "Runtime instance"). Its Spec pointer is never nil while
// the Instance exists; on shutdown the owning Slot drops the Instance
// but may keep the Spec reference alone during the grace period (I1).
type Instance struct {
	Spec *circpad.MachineSpec

	StateIndex int

	// RemainingLength is this state visit's padding budget. nil means
	// unlimited (no LengthDist was configured for the current state).
	RemainingLength *uint64

	PaddingCount    uint64
	NonPaddingCount uint64

	// Hist is the mutable per-state-entry histogram copy. Present only
	// while the current state has a histogram with non-null token
	// removal; absent (nil) otherwise, per §4.A "none: no mutation (no
	// mutable copy is allocated)".
	Hist *circpad.Histogram

	LastCellTime      time.Time
	HasLastCellTime   bool

	// TimerArmed and TimerGen implement I2 (at most one pending timer)
	// and the cancellation-is-idempotent rule from §5: a fire callback
	// compares its captured generation against TimerGen before acting,
	// so a fire racing a cancellation is a silent no-op.
	TimerArmed bool
	TimerGen   uint64

	// RTTEstimate is updated on the first NonpaddingSent→NonpaddingRecv
	// round trip observed on this slot (§4.E).
	RTTEstimate    time.Duration
	rttAwaitingRTT bool
	rttSentAt      time.Time

	Phase ShutdownPhase
}

// New creates a fresh Instance for spec, entering its initial state (0).
// The caller (the dispatcher, on installation) still must perform the
// state-entry actions — sampling length and arming the first timer —
// since those require the sampler and scheduler.
func New(spec *circpad.MachineSpec) *Instance {
	return &Instance{
		Spec:       spec,
		StateIndex: 0,
		Phase:      Active,
	}
}

// CurrentState returns the spec's State value for the instance's
// current index.
func (inst *Instance) CurrentState() circpad.State {
	return inst.Spec.States[inst.StateIndex]
}

// EnterState resets per-visit state on entry to stateIndex: a fresh
// histogram copy if the target state uses token removal, and clears any
// stale length budget (the caller sets the new budget separately via
// SetLengthBudget once it samples LengthDist).
func (inst *Instance) EnterState(stateIndex int) {
	inst.StateIndex = stateIndex
	inst.RemainingLength = nil
	state := inst.CurrentState()
	if state.HasHistogram() && state.TokenRemoval != circpad.RemoveNone {
		clone := state.Hist.Clone()
		inst.Hist = &clone
	} else {
		inst.Hist = nil
	}
}

// SetLengthBudget records a freshly-sampled per-visit padding budget.
func (inst *Instance) SetLengthBudget(n uint64) {
	inst.RemainingLength = &n
}

// SetUnlimitedLength marks the current state visit as having no length
// budget.
func (inst *Instance) SetUnlimitedLength() {
	inst.RemainingLength = nil
}

// ConsumeLength decrements the remaining length budget by one, if one
// is set, and reports whether it has now reached zero (LengthCount
// should fire).
func (inst *Instance) ConsumeLength() (exhausted bool) {
	if inst.RemainingLength == nil {
		return false
	}
	if *inst.RemainingLength == 0 {
		return true
	}
	*inst.RemainingLength--
	return *inst.RemainingLength == 0
}

// RecordCell updates the cell counters and the inter-arrival clock,
// returning the observed inter-arrival delay and whether one exists: it
// does not when no earlier cell time is recorded (the dispatcher records
// the install time as the first reference point).
func (inst *Instance) RecordCell(kind circpad.CellKind, now time.Time) (interArrival time.Duration, hasInterArrival bool) {
	if kind == circpad.Padding {
		inst.PaddingCount++
	} else {
		inst.NonPaddingCount++
	}
	if inst.HasLastCellTime {
		interArrival = now.Sub(inst.LastCellTime)
		hasInterArrival = true
	}
	inst.LastCellTime = now
	inst.HasLastCellTime = true
	return interArrival, hasInterArrival
}

// NoteNonPaddingSent starts RTT tracking: the next NonpaddingRecv on this
// slot will close out the estimate.
func (inst *Instance) NoteNonPaddingSent(now time.Time) {
	if inst.rttAwaitingRTT {
		return
	}
	inst.rttAwaitingRTT = true
	inst.rttSentAt = now
}

// NoteNonPaddingRecv closes out RTT tracking if a send is outstanding.
func (inst *Instance) NoteNonPaddingRecv(now time.Time) {
	if !inst.rttAwaitingRTT {
		return
	}
	inst.RTTEstimate = now.Sub(inst.rttSentAt)
	inst.rttAwaitingRTT = false
}

// ArmTimer records that a new timer generation is pending, cancelling
// any previous one (I2: at most one pending timer).
func (inst *Instance) ArmTimer() (generation uint64) {
	inst.TimerGen++
	inst.TimerArmed = true
	return inst.TimerGen
}

// CancelTimer marks no timer as pending. Idempotent.
func (inst *Instance) CancelTimer() {
	inst.TimerArmed = false
}

// TimerStillValid reports whether a fire for the given generation
// should still be honored — it must match the instance's current
// generation and the timer must still be armed.
func (inst *Instance) TimerStillValid(generation uint64) bool {
	return inst.TimerArmed && inst.TimerGen == generation
}
