// Package activation implements the activation controller (component
// G): one entry point per circuit lifecycle event, each re-evaluating
// active slots' conditions and, on the origin side, walking the
// registry in reverse registration order to fill empty slots. It also
// owns the negotiation handshake (component H) bound to a slot's
// lifecycle: sending NEGOTIATE on install, handling an incoming
// NEGOTIATE on the relay side, and the STOP/NEGOTIATED grace period on
// the origin side.
//
// Grounded on the supervisor's phase-transition-plus-reconcile shape
// elsewhere in this stack: lifecycle notifications drive a reconcile
// pass over owned state, generalized here from "one phase per machine"
// to "one slot pair per circuit per side."
package activation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"circpad"
	"circpad/config"
	"circpad/internal/logging"
	"circpad/internal/negotiate"
	"circpad/internal/registry"
	"circpad/internal/runtime"
	"circpad/internal/schedule"
)

var log = logging.Component("activation")

type pairKey struct {
	circuitID string
	side      circpad.Side
}

// slotPair is a circuit's (at most two) machine slots on one side.
type slotPair struct {
	slots [2]runtime.Slot
}

// Controller owns every circuit's slot pairs for both sides it is
// configured to serve, and drives installation, condition-triggered
// teardown, and the negotiation handshake for each.
type Controller struct {
	registry  *registry.Registry
	engine    EngineActivator
	scheduler SchedulerCanceller
	transport circpad.Transport
	hops      circpad.HopDirectory
	after     schedule.AfterFunc
	stopGrace time.Duration

	mu          sync.Mutex
	pairs       map[pairKey]*slotPair
	graceTimers map[schedule.SlotKey]schedule.StopFunc
	overrides   *config.Overrides
}

// New creates a Controller. stopGrace is the origin-side NEGOTIATED(STOP)
// timeout (§9's recommended default is negotiate.DefaultStopGrace).
func New(
	reg *registry.Registry,
	engine EngineActivator,
	scheduler SchedulerCanceller,
	transport circpad.Transport,
	hops circpad.HopDirectory,
	after schedule.AfterFunc,
	stopGrace time.Duration,
) *Controller {
	return &Controller{
		registry:    reg,
		engine:      engine,
		scheduler:   scheduler,
		transport:   transport,
		hops:        hops,
		after:       after,
		stopGrace:   stopGrace,
		pairs:       make(map[pairKey]*slotPair),
		graceTimers: make(map[schedule.SlotKey]schedule.StopFunc),
	}
}

// SetEngine wires the dispatcher after construction. The dispatcher's
// own constructor takes the controller as its SlotProvider, so the two
// are necessarily built in two steps; callers should set this before
// any lifecycle method runs.
func (c *Controller) SetEngine(engine EngineActivator) {
	c.engine = engine
}

// SetOverrides wires the §6.3 developer-override switches. A nil
// overrides (the default, if this is never called) means no restricted
// middle nodes bypass the §6.2 subprotocol support check.
func (c *Controller) SetOverrides(overrides *config.Overrides) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides = overrides
}

// Slot implements dispatch.SlotProvider.
func (c *Controller) Slot(key schedule.SlotKey) (*runtime.Slot, bool) {
	if key.Index < 0 || key.Index > 1 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pair, ok := c.pairs[pairKey{circuitID: key.CircuitID, side: key.Side}]
	if !ok {
		return nil, false
	}
	return &pair.slots[key.Index], true
}

// The six lifecycle entry points (§4.G). Each runs the identical
// reconcile pass; they are kept as distinct methods so a caller's site
// names the event it observed, and so logging attributes it correctly.

func (c *Controller) HopAdded(circuitID string, side circpad.Side, snap circpad.CircuitSnapshot) {
	c.reconcile("hop_added", circuitID, side, snap)
}

func (c *Controller) Built(circuitID string, side circpad.Side, snap circpad.CircuitSnapshot) {
	c.reconcile("built", circuitID, side, snap)
}

func (c *Controller) PurposeChanged(circuitID string, side circpad.Side, snap circpad.CircuitSnapshot) {
	c.reconcile("purpose_changed", circuitID, side, snap)
}

func (c *Controller) RelayEarlyExhausted(circuitID string, side circpad.Side, snap circpad.CircuitSnapshot) {
	c.reconcile("relay_early_exhausted", circuitID, side, snap)
}

func (c *Controller) StreamsAttached(circuitID string, side circpad.Side, snap circpad.CircuitSnapshot) {
	c.reconcile("streams_attached", circuitID, side, snap)
}

func (c *Controller) StreamsDetached(circuitID string, side circpad.Side, snap circpad.CircuitSnapshot) {
	c.reconcile("streams_detached", circuitID, side, snap)
}

// CircuitClosed releases every slot and pending grace timer for
// circuitID on side. The runtime data model lists circuit close
// alongside condition failure and terminal-state entry as a runtime
// destruction trigger; unlike those two it never negotiates a STOP,
// since the circuit itself is already gone.
func (c *Controller) CircuitClosed(circuitID string, side circpad.Side) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < 2; i++ {
		key := schedule.SlotKey{CircuitID: circuitID, Side: side, Index: i}
		if stop, ok := c.graceTimers[key]; ok {
			stop()
			delete(c.graceTimers, key)
		}
		c.scheduler.Cancel(key)
	}
	delete(c.pairs, pairKey{circuitID: circuitID, side: side})
}

func (c *Controller) reconcile(eventName, circuitID string, side circpad.Side, snap circpad.CircuitSnapshot) {
	c.mu.Lock()
	pair, ok := c.pairs[pairKey{circuitID: circuitID, side: side}]
	if !ok {
		pair = &slotPair{}
		c.pairs[pairKey{circuitID: circuitID, side: side}] = pair
	}

	type shutdownTask struct {
		key  schedule.SlotKey
		slot *runtime.Slot
	}
	var toShutdown []shutdownTask

	for i := 0; i < 2; i++ {
		slot := &pair.slots[i]
		if slot.Instance == nil {
			continue
		}
		if !slot.Spec.Conditions.Evaluate(snap) {
			toShutdown = append(toShutdown, shutdownTask{
				key:  schedule.SlotKey{CircuitID: circuitID, Side: side, Index: i},
				slot: slot,
			})
		}
	}
	c.mu.Unlock()

	for _, task := range toShutdown {
		c.teardownActive(task.key, task.slot)
	}

	if side != circpad.OriginSide {
		return
	}

	type installTask struct {
		key  schedule.SlotKey
		slot *runtime.Slot
		spec *circpad.MachineSpec
	}
	var toInstall []installTask

	c.mu.Lock()
	for i := 0; i < 2; i++ {
		slot := &pair.slots[i]
		if !slot.Empty() {
			continue
		}
		key := schedule.SlotKey{CircuitID: circuitID, Side: side, Index: i}
		if spec := c.pickAndInstallLocked(key, slot, snap); spec != nil {
			toInstall = append(toInstall, installTask{key: key, slot: slot, spec: spec})
		}
	}
	c.mu.Unlock()

	// Negotiation and state entry run without the map lock held: both
	// may call back into the controller (EnterInitialState reads the
	// slot via Slot, which locks itself), and Controller.mu is not
	// reentrant.
	for _, task := range toInstall {
		c.negotiateAndEnter(eventName, task.key, task.slot, task.spec)
	}
}

// pickAndInstallLocked walks the registry in reverse registration order
// (I5) and installs the first candidate whose conditions match, whose
// target hop supports it, and which the circuit's other slot does not
// already carry. Must be called with c.mu held.
func (c *Controller) pickAndInstallLocked(key schedule.SlotKey, slot *runtime.Slot, snap circpad.CircuitSnapshot) *circpad.MachineSpec {
	var installed *circpad.MachineSpec
	pair := c.pairs[pairKey{circuitID: key.CircuitID, side: key.Side}]
	c.registry.ReverseEach(key.Side, func(spec circpad.MachineSpec) bool {
		if !spec.Conditions.Evaluate(snap) {
			return true
		}
		if pair != nil && key.Index >= 0 && key.Index <= 1 {
			if other := pair.slots[1-key.Index].Spec; other != nil && other.Number == spec.Number {
				return true
			}
		}
		if !c.supportsOrBypassed(key.CircuitID, spec.TargetHop, spec.Number) {
			return true
		}
		specCopy := spec
		slot.Install(&specCopy)
		installed = &specCopy
		return false
	})
	return installed
}

// supportsOrBypassed reports whether hop on circuitID may carry number:
// either it genuinely advertised support (§6.2), or it's listed in the
// §6.3 RestrictedMiddleNodes testing override, which skips the probe
// entirely. overrides is read under c.mu, matching every other access
// to controller-owned state.
func (c *Controller) supportsOrBypassed(circuitID string, hop int, number uint8) bool {
	if c.overrides != nil && c.overrides.BypassesSupportCheck(c.hops.Fingerprint(circuitID, hop)) {
		return true
	}
	return c.hops.SupportsMachine(circuitID, hop, number)
}

// negotiateAndEnter sends the optimistic NEGOTIATE(START) and performs
// the freshly installed instance's state-entry actions. The origin
// proceeds regardless of whether (or how quickly) NEGOTIATED arrives.
func (c *Controller) negotiateAndEnter(eventName string, key schedule.SlotKey, slot *runtime.Slot, installed *circpad.MachineSpec) {
	msg := circpad.Negotiate{
		Version:     circpad.NegotiationVersion,
		Command:     circpad.CommandStart,
		MachineType: installed.Type,
		Number:      installed.Number,
		Ctr:         slot.MachineCtr,
	}
	if err := c.transport.SendNegotiate(context.Background(), key.CircuitID, installed.TargetHop, negotiate.EncodeNegotiate(msg)); err != nil {
		log.Warn("circpad: negotiate send failed, proceeding optimistically", "circuit", key.CircuitID, "machine", installed.Number, "event", eventName, "error", err)
	}

	if err := c.engine.EnterInitialState(key); err != nil {
		log.Error("circpad: failed to enter initial state after install", "circuit", key.CircuitID, "machine", installed.Number, "error", err)
	}
}

// OnTerminal is registered as the dispatcher's TerminalHook. forced
// means the dispatcher's own cascade guard already fully cleared the
// slot as a bug-guard measure, so there is nothing left to negotiate.
func (c *Controller) OnTerminal(key schedule.SlotKey, forced bool) {
	if forced {
		return
	}
	slot, ok := c.Slot(key)
	if !ok || slot.Spec == nil {
		return
	}
	c.finishTerminalShutdown(key, slot)
}

// OnViolation is registered as the dispatcher's ViolationLogger.
func (c *Controller) OnViolation(key schedule.SlotKey, detail string) {
	log.Warn("circpad: protocol violation", "circuit", key.CircuitID, "side", key.Side, "slot", key.Index, "detail", detail)
}

// teardownActive handles a condition-triggered shutdown of a still-running
// instance (§4.H: "when conditions fail for an active origin-side
// machine, the origin sends STOP and tears down the runtime immediately
// ... but retains the spec reference until it receives NEGOTIATED(STOP)
// or a timeout"). The dispatcher never saw this, so the controller
// itself cancels the pending timer and begins shutdown before running
// the unconditional negotiate-and-await sequence §4.H requires.
func (c *Controller) teardownActive(key schedule.SlotKey, slot *runtime.Slot) {
	c.scheduler.Cancel(key)
	slot.BeginShutdown()
	c.finishConditionFailureShutdown(key, slot)
}

// finishTerminalShutdown runs the shutdown sequence for a slot that just
// reached its terminal state (I6), already in WAITING_STOP (spec set,
// instance gone): on the origin side, only a machine whose spec opted
// into ShouldNegotiateEnd sends an explicit STOP and waits out the grace
// period; everything else clears immediately, trusting the peer's own
// FSM to reach its terminal state symmetrically without an explicit
// message. ShouldNegotiateEnd only gates this path, not condition-
// failure teardown (see finishConditionFailureShutdown).
func (c *Controller) finishTerminalShutdown(key schedule.SlotKey, slot *runtime.Slot) {
	if key.Side == circpad.OriginSide && slot.Spec.ShouldNegotiateEnd {
		c.sendStopAndAwait(key, slot)
		return
	}
	c.mu.Lock()
	slot.Clear()
	c.mu.Unlock()
}

// finishConditionFailureShutdown runs the shutdown sequence for a slot
// whose conditions just stopped holding. Per §4.H this is unconditional
// on the origin side regardless of ShouldNegotiateEnd: the relay's
// independent instance has no other way to learn the conditions changed
// out from under it, unlike terminal-state shutdown where both sides'
// FSMs can infer shutdown symmetrically.
func (c *Controller) finishConditionFailureShutdown(key schedule.SlotKey, slot *runtime.Slot) {
	if key.Side == circpad.OriginSide {
		c.sendStopAndAwait(key, slot)
		return
	}
	c.mu.Lock()
	slot.Clear()
	c.mu.Unlock()
}

func (c *Controller) sendStopAndAwait(key schedule.SlotKey, slot *runtime.Slot) {
	ctr := slot.MachineCtr
	msg := circpad.Negotiate{
		Version:     circpad.NegotiationVersion,
		Command:     circpad.CommandStop,
		MachineType: slot.Spec.Type,
		Number:      slot.Spec.Number,
		Ctr:         ctr,
	}
	if err := c.transport.SendNegotiate(context.Background(), key.CircuitID, slot.Spec.TargetHop, negotiate.EncodeNegotiate(msg)); err != nil {
		log.Warn("circpad: stop negotiate send failed", "circuit", key.CircuitID, "machine", slot.Spec.Number, "error", err)
	}

	// c.after is called without c.mu held: its callback takes c.mu, and an
	// after func may run it synchronously.
	stop := c.after(c.stopGrace, func() {
		c.completeGraceTimeout(key, ctr)
	})
	c.mu.Lock()
	if slot.Spec != nil && slot.MachineCtr == ctr {
		c.graceTimers[key] = stop
	}
	c.mu.Unlock()
}

func (c *Controller) completeGraceTimeout(key schedule.SlotKey, ctr uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.graceTimers, key)
	pair, ok := c.pairs[pairKey{circuitID: key.CircuitID, side: key.Side}]
	if !ok || key.Index < 0 || key.Index > 1 {
		return
	}
	slot := &pair.slots[key.Index]
	if slot.Spec == nil || slot.MachineCtr != ctr {
		// Already cleared, or replaced by a newer install (S5).
		return
	}
	slot.Clear()
}

// HandleNegotiate processes an incoming NEGOTIATE control cell on the
// relay side: a relay never walks its own registry proactively, only in
// response to a request (§4.G).
func (c *Controller) HandleNegotiate(circuitID string, payload []byte, snap circpad.CircuitSnapshot) ([]byte, error) {
	msg, err := negotiate.DecodeNegotiate(payload)
	if err != nil {
		return nil, fmt.Errorf("circpad: decode negotiate on circuit %s: %w", circuitID, err)
	}

	if msg.Command == circpad.CommandStop {
		c.handleIncomingStop(circuitID, msg)
		return negotiate.EncodeNegotiated(circpad.Negotiated{
			Version:      circpad.NegotiationVersion,
			Command:      msg.Command,
			MachineType:  msg.MachineType,
			Number:       msg.Number,
			Ctr:          msg.Ctr,
			ResponseCode: circpad.Success,
		}), nil
	}

	code := c.installRelaySide(circuitID, msg, snap)
	return negotiate.EncodeNegotiated(circpad.Negotiated{
		Version:      circpad.NegotiationVersion,
		Command:      msg.Command,
		MachineType:  msg.MachineType,
		Number:       msg.Number,
		Ctr:          msg.Ctr,
		ResponseCode: code,
	}), nil
}

func (c *Controller) installRelaySide(circuitID string, msg circpad.Negotiate, snap circpad.CircuitSnapshot) circpad.ResponseCode {
	if msg.Version != circpad.NegotiationVersion {
		return circpad.ErrUnsupportedVersion
	}
	spec, found := c.registry.Lookup(circpad.RelaySide, msg.Number)
	if !found {
		return circpad.ErrUnknownMachine
	}
	if !spec.Conditions.Evaluate(snap) {
		return circpad.ErrNotApplicable
	}

	c.mu.Lock()
	pair, ok := c.pairs[pairKey{circuitID: circuitID, side: circpad.RelaySide}]
	if !ok {
		pair = &slotPair{}
		c.pairs[pairKey{circuitID: circuitID, side: circpad.RelaySide}] = pair
	}
	slotIndex := -1
	for i := 0; i < 2; i++ {
		if pair.slots[i].Empty() {
			slotIndex = i
			break
		}
	}
	if slotIndex == -1 {
		c.mu.Unlock()
		return circpad.ErrInternal
	}
	specCopy := spec
	pair.slots[slotIndex].Install(&specCopy)
	key := schedule.SlotKey{CircuitID: circuitID, Side: circpad.RelaySide, Index: slotIndex}
	c.mu.Unlock()

	if err := c.engine.EnterInitialState(key); err != nil {
		log.Error("circpad: failed to enter initial state on relay install", "circuit", circuitID, "machine", spec.Number, "error", err)
		return circpad.ErrInternal
	}
	return circpad.Success
}

func (c *Controller) handleIncomingStop(circuitID string, msg circpad.Negotiate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pair, ok := c.pairs[pairKey{circuitID: circuitID, side: circpad.RelaySide}]
	if !ok {
		return
	}
	for i := 0; i < 2; i++ {
		slot := &pair.slots[i]
		if slot.Spec == nil || slot.Spec.Number != msg.Number {
			continue
		}
		key := schedule.SlotKey{CircuitID: circuitID, Side: circpad.RelaySide, Index: i}
		c.scheduler.Cancel(key)
		slot.Clear()
		return
	}
}

// HandleNegotiated processes an incoming NEGOTIATED response on the
// origin side. A response whose (machine_number, machine_ctr) no longer
// matches the slot's current state is stale and is dropped silently
// (S5); a START ack is otherwise ignored (the origin was already
// padding optimistically); a STOP ack cancels the grace timer and
// clears the slot immediately rather than waiting it out.
func (c *Controller) HandleNegotiated(circuitID string, slotIndex int, payload []byte) error {
	msg, err := negotiate.DecodeNegotiated(payload)
	if err != nil {
		return fmt.Errorf("circpad: decode negotiated on circuit %s: %w", circuitID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	pair, ok := c.pairs[pairKey{circuitID: circuitID, side: circpad.OriginSide}]
	if !ok || slotIndex < 0 || slotIndex > 1 {
		return nil
	}
	slot := &pair.slots[slotIndex]
	if slot.Spec == nil || !negotiate.MatchesCtr(slot.Spec.Number, slot.MachineCtr, msg.Number, msg.Ctr) {
		return nil
	}

	if msg.Command != circpad.CommandStop {
		return nil
	}
	key := schedule.SlotKey{CircuitID: circuitID, Side: circpad.OriginSide, Index: slotIndex}
	if stop, ok := c.graceTimers[key]; ok {
		stop()
		delete(c.graceTimers, key)
	}
	slot.Clear()
	return nil
}
