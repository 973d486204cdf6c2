package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"circpad"
	"circpad/internal/activation"
	"circpad/internal/negotiate"
)

// simTransport is an in-memory circpad.Transport: it records every
// padding cell sent (with the wall-clock time it was sent at) and,
// for NEGOTIATE control cells, simulates a peer response 1ms later by
// calling back into the controller it is paired with via attachPeer.
// There is no real wire and no real peer circuit — this stands in for
// both in a single process, the way the reference CLI drives its own
// in-process daemon manager for local commands.
type simTransport struct {
	mu      sync.Mutex
	sent    []time.Time
	started time.Time

	ctrl      *activation.Controller
	slotIndex int
	inject    chan<- func()
}

func newSimTransport(started time.Time) *simTransport {
	return &simTransport{started: started}
}

// attachPeer wires the controller whose incoming-negotiation handlers
// should receive this transport's NEGOTIATE sends, simulating a peer
// that always replies successfully, 1ms after the send. inject is the run
// loop's own channel: the simulated reply is posted there rather than
// run on the timer's goroutine directly, preserving the single-loop
// invariant the rest of the engine depends on.
func (t *simTransport) attachPeer(ctrl *activation.Controller, slotIndex int, inject chan<- func()) {
	t.ctrl = ctrl
	t.slotIndex = slotIndex
	t.inject = inject
}

func (t *simTransport) SendPadding(_ context.Context, _ string, _ int) error {
	t.mu.Lock()
	t.sent = append(t.sent, time.Now())
	t.mu.Unlock()
	return nil
}

func (t *simTransport) SendNegotiate(_ context.Context, circuitID string, _ int, payload []byte) error {
	msg, err := negotiate.DecodeNegotiate(payload)
	if err != nil {
		return err
	}
	if t.ctrl == nil || t.inject == nil {
		return nil
	}
	resp := negotiate.EncodeNegotiated(circpad.Negotiated{
		Version:      msg.Version,
		Command:      msg.Command,
		MachineType:  msg.MachineType,
		Number:       msg.Number,
		Ctr:          msg.Ctr,
		ResponseCode: circpad.Success,
	})
	ctrl := t.ctrl
	slotIndex := t.slotIndex
	inject := t.inject
	// A real peer's response would cross the wire and arrive later; this
	// simulation delivers it a tick after the send rather than inline,
	// and only ever touches controller state from the run loop's own
	// goroutine via inject, preserving the single-loop invariant.
	time.AfterFunc(time.Millisecond, func() {
		inject <- func() { _ = ctrl.HandleNegotiated(circuitID, slotIndex, resp) }
	})
	return nil
}

func (t *simTransport) SendNegotiated(_ context.Context, _ string, _ int, _ []byte) error {
	return nil
}

func (t *simTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func (t *simTransport) offsets() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Duration, len(t.sent))
	for i, ts := range t.sent {
		out[i] = ts.Sub(t.started)
	}
	return out
}

func (t *simTransport) summary(label string) string {
	offsets := t.offsets()
	return fmt.Sprintf("%s: %d padding cell(s) sent, offsets=%v", label, len(offsets), offsets)
}

// allowAllHops is a circpad.HopDirectory that reports every hop as
// supporting every machine — there is no real subprotocol negotiation
// to probe in a single-process simulation.
type allowAllHops struct{}

func (allowAllHops) SupportsMachine(string, int, uint8) bool { return true }

func (allowAllHops) Fingerprint(circuitID string, hop int) string {
	return fmt.Sprintf("%s/%d", circuitID, hop)
}
