// Package dispatch implements the event dispatcher (component D) and the
// scheduler's fire handling that closes the loop back into it: counter
// updates, histogram token removal, transition lookup, and state-entry
// actions, run in the strict order the design requires, plus the
// bounded-cascade guard for internal events that chain into more
// internal events.
//
// Grounded on the single-goroutine worker-loop shape used elsewhere in
// this stack for per-resource event processing (one mailbox channel,
// one owning goroutine, a Run that returns when its ctx is cancelled),
// generalized from a
// poll-and-reconcile loop to a fire-and-transition loop.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"circpad"
	"circpad/internal/check"
	"circpad/internal/clock"
	"circpad/internal/logging"
	"circpad/internal/overhead"
	"circpad/internal/runtime"
	"circpad/internal/sampler"
	"circpad/internal/schedule"
)

var log = logging.Component("dispatch")

// Engine is the event dispatcher. One Engine serves every slot on every
// circuit; slots are looked up by key through the injected SlotProvider
// rather than owned here, since slot lifecycle belongs to the
// activation controller.
type Engine struct {
	slots     SlotProvider
	sampler   *sampler.Sampler
	scheduler *schedule.Scheduler
	governor  *overhead.Governor
	transport circpad.Transport
	clock     clock.Clock

	onTerminal  TerminalHook
	onViolation ViolationLogger
}

// New creates an Engine. onTerminal and onViolation may be nil.
func New(
	slots SlotProvider,
	samp *sampler.Sampler,
	sched *schedule.Scheduler,
	gov *overhead.Governor,
	transport circpad.Transport,
	clk clock.Clock,
	onTerminal TerminalHook,
	onViolation ViolationLogger,
) *Engine {
	return &Engine{
		slots:       slots,
		sampler:     samp,
		scheduler:   sched,
		governor:    gov,
		transport:   transport,
		clock:       clk,
		onTerminal:  onTerminal,
		onViolation: onViolation,
	}
}

// Run drains fire events from the scheduler's mailbox until ctx is
// cancelled. It is the only goroutine that may call HandleFire; OnCell
// and OnInternal are expected to run on the same logical task loop as
// Run, serialized by the caller (a single goroutine, or a mailbox of
// its own upstream of this one).
func (e *Engine) Run(ctx context.Context, fires <-chan schedule.FireEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fire := <-fires:
			if err := e.HandleFire(ctx, fire); err != nil {
				log.Error("circpad: fire handling failed", "circuit", fire.Key.CircuitID, "side", fire.Key.Side, "error", err)
			}
		}
	}
}

// EnterInitialState performs the state-entry actions for a slot's
// freshly installed instance: sampling its length budget and arming its
// first timer. It also records the install time as the instance's last
// cell time, so the first observed cell's inter-arrival is measured from
// installation. The activation controller calls this once, immediately
// after Slot.Install.
func (e *Engine) EnterInitialState(key schedule.SlotKey) error {
	slot, ok := e.slots.Slot(key)
	if !ok || slot.Instance == nil {
		return fmt.Errorf("circpad: cannot enter initial state for %s/%s: no installed instance", key.CircuitID, key.Side)
	}
	now := e.clock.Now()
	if !slot.Instance.HasLastCellTime {
		slot.Instance.LastCellTime = now
		slot.Instance.HasLastCellTime = true
	}
	return e.enterState(key, slot, slot.Instance.StateIndex, now, 0)
}

// OnCell is the cell-observation entry point (§4.D): it updates
// counters, applies histogram token removal, and looks up a transition
// for the resulting cell event.
func (e *Engine) OnCell(key schedule.SlotKey, dir circpad.Direction, kind circpad.CellKind, now time.Time) error {
	slot, ok := e.slots.Slot(key)
	if !ok {
		return fmt.Errorf("circpad: unknown slot %s/%s", key.CircuitID, key.Side)
	}
	if slot.Spec == nil {
		if kind == circpad.Padding && e.onViolation != nil {
			e.onViolation(key, "padding cell observed on a slot with no spec reference")
		}
		return nil
	}
	if slot.Instance == nil {
		// WAITING_STOP: the slot is still attributable to a winding-down
		// machine, so a stray cell here is not a violation, but there is
		// no runtime left to drive.
		return nil
	}
	return e.dispatchCell(key, slot, dir, kind, now, 0)
}

// OnInternal is the machine-internal event entry point (§4.D) for
// Infinity, BinsEmpty, and LengthCount.
func (e *Engine) OnInternal(key schedule.SlotKey, event circpad.Event, now time.Time) error {
	slot, ok := e.slots.Slot(key)
	if !ok {
		return fmt.Errorf("circpad: unknown slot %s/%s", key.CircuitID, key.Side)
	}
	if slot.Instance == nil {
		return nil
	}
	return e.dispatchTransition(key, slot, event, now, 0)
}

// HandleFire processes a scheduler fire: a stale generation or a slot
// that has since been torn down is a silent no-op (§5's
// idempotent-cancellation rule). Otherwise it consults the overhead
// governor, emits the padding cell if allowed, and always resamples the
// next delay from whatever state the instance ends up in.
func (e *Engine) HandleFire(ctx context.Context, fire schedule.FireEvent) error {
	slot, ok := e.slots.Slot(fire.Key)
	if !ok || slot.Instance == nil {
		return nil
	}
	inst := slot.Instance
	if !inst.TimerStillValid(fire.Generation) {
		return nil
	}
	now := e.clock.Now()

	if !e.governor.Allow(slot.Spec) {
		// Suppressed: the timer fired but no cell is emitted and no
		// PADDING_SENT is raised. The cadence continues regardless (I4).
		return e.armDelay(fire.Key, slot, now, 0)
	}

	if err := e.transport.SendPadding(ctx, fire.Key.CircuitID, slot.Spec.TargetHop); err != nil {
		return fmt.Errorf("circpad: send padding on circuit %s hop %d: %w", fire.Key.CircuitID, slot.Spec.TargetHop, err)
	}
	e.governor.RecordPadding(slot.Spec)

	if err := e.dispatchCell(fire.Key, slot, circpad.Sent, circpad.Padding, now, 0); err != nil {
		return err
	}
	if slot.Instance == nil {
		// The emitted cell's own transition reached the terminal state.
		return nil
	}
	return e.armDelay(fire.Key, slot, now, 0)
}

// dispatchCell runs the counter-update / token-removal / transition
// sequence for an observed cell event, then separately consumes the
// per-visit length budget when the event is PaddingSent, raising
// LengthCount as a follow-on internal event if it has just run out.
func (e *Engine) dispatchCell(key schedule.SlotKey, slot *runtime.Slot, dir circpad.Direction, kind circpad.CellKind, now time.Time, depth int) error {
	inst := slot.Instance
	event := circpad.EventFor(dir, kind)

	switch event {
	case circpad.NonpaddingSent:
		inst.NoteNonPaddingSent(now)
	case circpad.NonpaddingRecv:
		inst.NoteNonPaddingRecv(now)
	}
	if dir == circpad.Sent && kind == circpad.NonPadding {
		e.governor.RecordNonPadding(slot.Spec)
	}

	interArrival, hasInterArrival := inst.RecordCell(kind, now)
	state := inst.CurrentState()
	if hasInterArrival && state.HasHistogram() && state.TokenRemoval != circpad.RemoveNone && inst.Hist != nil {
		sampler.RemoveToken(inst.Hist, uint64(interArrival.Microseconds()), state.TokenRemoval)
	}

	var lengthExhausted bool
	if event == circpad.PaddingSent {
		lengthExhausted = inst.ConsumeLength()
	}

	if err := e.dispatchTransition(key, slot, event, now, depth); err != nil {
		return err
	}

	if lengthExhausted && slot.Instance != nil {
		return e.dispatchTransition(key, slot, circpad.LengthCount, now, depth+1)
	}
	return nil
}

// dispatchTransition looks up event against the instance's current
// state and, if it names a different state, runs state-entry actions.
// depth bounds internal-event cascades (an internal event whose
// state-entry immediately samples another internal event): beyond
// len(states)+1 the engine treats it as a specification bug and forces
// shutdown rather than looping.
func (e *Engine) dispatchTransition(key schedule.SlotKey, slot *runtime.Slot, event circpad.Event, now time.Time, depth int) error {
	inst := slot.Instance
	if inst == nil {
		return nil
	}
	bound := len(inst.Spec.States) + 1
	if depth > bound {
		detail := fmt.Sprintf("transition cascade for circuit %s exceeded bound of %d on event %s", key.CircuitID, bound, event)
		check.Assertf(false, "circpad: %s", detail)
		e.forceShutdown(key, slot, detail)
		return fmt.Errorf("circpad: %s", detail)
	}

	state := inst.CurrentState()
	target := state.Next(event)
	if target == circpad.NoTransition {
		return nil
	}
	return e.enterState(key, slot, target, now, depth+1)
}

// enterState runs the three state-entry actions named in §4.D: a fresh
// histogram copy (via Instance.EnterState), a length-budget sample (or
// unlimited), and either shutdown (terminal state) or a new armed
// delay.
func (e *Engine) enterState(key schedule.SlotKey, slot *runtime.Slot, target int, now time.Time, depth int) error {
	inst := slot.Instance
	inst.EnterState(target)
	state := inst.CurrentState()

	if state.LengthDist != nil {
		// A length budget is a sampled count, not a delay, so it never
		// takes the RTT-derived shift (§4.E) even if UseRTTShift were
		// mistakenly set on it.
		n := e.sampler.SampleDistribution(*state.LengthDist, 0)
		inst.SetLengthBudget(n)
		if n == 0 {
			// A zero-length sample raises LengthCount immediately without
			// emitting padding or arming a timer for this visit.
			return e.dispatchTransition(key, slot, circpad.LengthCount, now, depth+1)
		}
	} else {
		inst.SetUnlimitedLength()
	}

	if slot.Spec.IsTerminal(target) {
		// I6: registration-time Validate already rejects a terminal state
		// with outgoing transitions; this is the runtime's own check that
		// the state it is actually entering agrees.
		check.Assertf(len(state.NextState) == 0, "circpad: entering terminal state %d with %d outgoing transitions", target, len(state.NextState))
		e.scheduler.Cancel(key)
		inst.CancelTimer()
		// I2: no timer may survive past shutdown, since a fire on a
		// dropped Instance would have nothing to compare its generation
		// against.
		check.Assertf(!inst.TimerArmed, "circpad: timer still armed after CancelTimer on terminal entry")
		slot.BeginShutdown()
		if e.onTerminal != nil {
			e.onTerminal(key, false)
		}
		return nil
	}

	return e.armDelay(key, slot, now, depth)
}

// armDelay samples the current state's timing source and either arms a
// new timer or, for a histogram that selects its infinity bin or is
// entirely empty, recurses into the corresponding internal event.
func (e *Engine) armDelay(key schedule.SlotKey, slot *runtime.Slot, now time.Time, depth int) error {
	inst := slot.Instance
	state := inst.CurrentState()

	if state.HasHistogram() {
		h := *state.Hist
		if inst.Hist != nil {
			h = *inst.Hist
		}
		_, delay, empty := e.sampler.SampleHistogram(h)
		switch {
		case empty:
			return e.dispatchTransition(key, slot, circpad.BinsEmpty, now, depth+1)
		case delay == circpad.InfinityDelay:
			return e.dispatchTransition(key, slot, circpad.Infinity, now, depth+1)
		default:
			generation := inst.ArmTimer()
			e.scheduler.Schedule(key, generation, time.Duration(delay)*time.Microsecond)
			return nil
		}
	}

	delay := e.sampler.SampleDistribution(*state.Dist, inst.RTTEstimate)
	if delay == circpad.InfinityDelay {
		return e.dispatchTransition(key, slot, circpad.Infinity, now, depth+1)
	}
	generation := inst.ArmTimer()
	e.scheduler.Schedule(key, generation, time.Duration(delay)*time.Microsecond)
	return nil
}

// forceShutdown is the bug-guard path: it cancels any pending timer and
// fully clears the slot rather than leaving it in an inconsistent
// WAITING_STOP, since a runaway cascade means the spec's own transition
// table is untrustworthy for this instance.
func (e *Engine) forceShutdown(key schedule.SlotKey, slot *runtime.Slot, detail string) {
	e.scheduler.Cancel(key)
	slot.Clear()
	if e.onViolation != nil {
		e.onViolation(key, detail)
	}
	if e.onTerminal != nil {
		e.onTerminal(key, true)
	}
}
