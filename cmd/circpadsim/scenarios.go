package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"circpad"
	"circpad/config"
	"circpad/internal/activation"
	"circpad/internal/clock"
	"circpad/internal/dispatch"
	"circpad/internal/negotiate"
	"circpad/internal/overhead"
	"circpad/internal/registry"
	"circpad/internal/sampler"
	"circpad/internal/schedule"
)

// scenario is one of the §8 replay scenarios: a name, a machine spec to
// install, and the sequence of lifecycle/cell events to drive once it's
// installed.
type scenario struct {
	name    string
	spec    circpad.MachineSpec
	timeout time.Duration
	// drive runs in its own goroutine after installation and posts
	// further events to inject, so every mutation still happens on the
	// run loop.
	drive func(env *scenarioEnv, inject chan<- func())
	// configureGovernor, if set, overrides the overhead governor's
	// compiled-in caps before installation (S6's §6.3 global overrides).
	configureGovernor func(*overhead.Governor)
}

// scenarioEnv bundles the wiring a running scenario needs to report its
// own outcome.
type scenarioEnv struct {
	eng       *dispatch.Engine
	ctrl      *activation.Controller
	transport *simTransport
	key       schedule.SlotKey
}

const circuitID = "circuit-sim"

// runScenario wires a fresh registry/controller/engine/transport set,
// installs spec on the origin side, runs drive (if any), and blocks
// until either the runtime reaches its terminal state or the timeout
// elapses — whichever comes first, since §4.I's S6 intentionally never
// reaches one on its own. cfg's global overrides (§6.3) are applied to
// the governor before any scenario-specific configureGovernor hook, so
// a scenario that deliberately wants a tighter cap (S6) still wins.
func runScenario(s scenario, cfg *config.Overrides) string {
	reg := registry.New()
	if err := reg.Register(s.spec); err != nil {
		return fmt.Sprintf("%s: FAILED to register spec: %v", s.name, err)
	}

	started := time.Now()
	transport := newSimTransport(started)
	hops := allowAllHops{}
	mailbox := make(chan schedule.FireEvent, 4096)
	sched := schedule.New(schedule.RealAfterFunc, mailbox)
	samp := sampler.New(rand.New(rand.NewSource(1)))
	gov := overhead.New()
	if cfg != nil && (cfg.GlobalAllowedBurst != nil || cfg.GlobalMaxPercent != nil) {
		burst, maxPercent := overhead.DefaultGlobalBurst, overhead.DefaultGlobalMaxPercent
		if cfg.GlobalAllowedBurst != nil {
			burst = *cfg.GlobalAllowedBurst
		}
		if cfg.GlobalMaxPercent != nil {
			maxPercent = *cfg.GlobalMaxPercent
		}
		gov.SetGlobalCaps(burst, maxPercent)
	}
	if s.configureGovernor != nil {
		s.configureGovernor(gov)
	}
	clk := clock.Real{}

	done := make(chan struct{})
	var closedDone bool
	closeDone := func() {
		if !closedDone {
			closedDone = true
			close(done)
		}
	}

	ctrl := activation.New(reg, nil, sched, transport, hops, schedule.RealAfterFunc, 200*time.Millisecond)
	ctrl.SetOverrides(cfg)
	eng := dispatch.New(ctrl, samp, sched, gov, transport, clk,
		func(key schedule.SlotKey, forced bool) {
			ctrl.OnTerminal(key, forced)
			closeDone()
		},
		func(key schedule.SlotKey, detail string) {
			ctrl.OnViolation(key, detail)
		},
	)
	ctrl.SetEngine(eng)

	inject := make(chan func(), 64)
	transport.attachPeer(ctrl, 0, inject)

	key := schedule.SlotKey{CircuitID: circuitID, Side: circpad.OriginSide, Index: 0}
	env := &scenarioEnv{eng: eng, ctrl: ctrl, transport: transport, key: key}

	timeout := s.timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.drive != nil {
		go s.drive(env, inject)
	}

	ctrl.Built(circuitID, circpad.OriginSide, circpad.CircuitSnapshot{HopCount: 3, StateMask: circpad.HasStreams})

loop:
	for {
		select {
		case fire := <-mailbox:
			if err := eng.HandleFire(ctx, fire); err != nil {
				return fmt.Sprintf("%s: fire handling error: %v", s.name, err)
			}
		case task := <-inject:
			task()
		case <-done:
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	outcome := "runtime reached its terminal state"
	if ctx.Err() != nil {
		outcome = "stopped at the replay deadline (no terminal state, or shutdown completed asynchronously)"
	}
	return fmt.Sprintf("%s: %s — %s", s.name, outcome, transport.summary("padding"))
}

// allScenarios returns the replayable S1-S6 scenarios (spec §8).
func allScenarios() []scenario {
	return []scenario{scenarioS1(), scenarioS2(), scenarioS3(), scenarioS4(), scenarioS5(), scenarioS6()}
}

// S1 — single-cell ping.
func scenarioS1() scenario {
	return scenario{
		name: "S1 single-cell ping",
		spec: circpad.MachineSpec{
			Number: 1,
			Name:   "s1-ping",
			Side:   circpad.OriginSide,
			States: []circpad.State{
				{
					Dist:      &circpad.Distribution{Family: circpad.Uniform, P1: 5000, P2: 5000},
					NextState: map[circpad.Event]int{circpad.PaddingSent: 1},
				},
				{
					Dist:      &circpad.Distribution{Family: circpad.Uniform, P1: 0, P2: 0},
					NextState: map[circpad.Event]int{},
				},
			},
		},
	}
}

// S2 — burst of three, ended by the length budget.
func scenarioS2() scenario {
	three := circpad.Distribution{Family: circpad.Uniform, P1: 3, P2: 3}
	return scenario{
		name: "S2 burst of 3",
		spec: circpad.MachineSpec{
			Number:             2,
			Name:               "s2-burst",
			Side:               circpad.OriginSide,
			OverheadBurst:      10,
			OverheadMaxPercent: 1,
			States: []circpad.State{
				{
					Dist:       &circpad.Distribution{Family: circpad.Uniform, P1: 1000, P2: 1000},
					LengthDist: &three,
					NextState:  map[circpad.Event]int{circpad.LengthCount: 1},
				},
				{
					Dist:      &circpad.Distribution{Family: circpad.Uniform, P1: 0, P2: 0},
					NextState: map[circpad.Event]int{},
				},
			},
		},
	}
}

// S3 — token removal with a non-padding cell injected mid-flight.
func scenarioS3() scenario {
	hist, err := circpad.NewHistogram(
		[]uint64{0, 2000, 4000},
		[]uint64{2, 2, 0},
	)
	if err != nil {
		panic(err)
	}
	return scenario{
		name: "S3 token removal with traffic",
		spec: circpad.MachineSpec{
			Number:             3,
			Name:               "s3-tokens",
			Side:               circpad.OriginSide,
			OverheadBurst:      10,
			OverheadMaxPercent: 1,
			States: []circpad.State{
				{
					Hist:         &hist,
					TokenRemoval: circpad.RemoveExact,
					NextState:    map[circpad.Event]int{circpad.BinsEmpty: 1},
				},
				{
					Dist:      &circpad.Distribution{Family: circpad.Uniform, P1: 0, P2: 0},
					NextState: map[circpad.Event]int{},
				},
			},
		},
		timeout: 3 * time.Second,
		drive: func(env *scenarioEnv, inject chan<- func()) {
			time.AfterFunc(500*time.Microsecond, func() {
				inject <- func() {
					_ = env.eng.OnCell(env.key, circpad.Sent, circpad.NonPadding, time.Now())
				}
			})
		},
	}
}

// S4 — conditions failure during operation: detaching the stream
// triggers condition-failure teardown, which unconditionally sends STOP
// and awaits NEGOTIATED/timeout regardless of ShouldNegotiateEnd (§4.H)
// — left false here to demonstrate that the general case, not just a
// machine that opts into it, negotiates the stop.
func scenarioS4() scenario {
	return scenario{
		name: "S4 conditions failure during operation",
		spec: circpad.MachineSpec{
			Number:             4,
			Name:               "s4-streams",
			Side:               circpad.OriginSide,
			Conditions:         circpad.Conditions{MinHops: 3, StateMask: circpad.HasStreams},
			OverheadBurst:      10,
			OverheadMaxPercent: 1,
			States: []circpad.State{
				{
					Dist:      &circpad.Distribution{Family: circpad.Uniform, P1: 2000, P2: 2000},
					NextState: map[circpad.Event]int{},
				},
				// Unreachable terminal state: the last state is terminal.
				{
					Dist:      &circpad.Distribution{Family: circpad.Uniform, P1: 0, P2: 0},
					NextState: map[circpad.Event]int{},
				},
			},
		},
		timeout: 200 * time.Millisecond,
		drive: func(env *scenarioEnv, inject chan<- func()) {
			time.AfterFunc(20*time.Millisecond, func() {
				inject <- func() {
					env.ctrl.StreamsDetached(circuitID, circpad.OriginSide, circpad.CircuitSnapshot{HopCount: 3, StateMask: circpad.NoStreams})
				}
			})
		},
	}
}

// S5 — rapid replacement: a NEGOTIATED(STOP) carrying an older
// negotiation counter than the slot's current install must be dropped
// silently rather than tearing down the instance that replaced it.
func scenarioS5() scenario {
	return scenario{
		name: "S5 rapid replacement",
		spec: circpad.MachineSpec{
			Number:             5,
			Name:               "s5-a",
			Side:               circpad.OriginSide,
			ShouldNegotiateEnd: true,
			OverheadBurst:      10,
			OverheadMaxPercent: 1,
			States: []circpad.State{
				{
					Dist:      &circpad.Distribution{Family: circpad.Uniform, P1: 2000, P2: 2000},
					NextState: map[circpad.Event]int{},
				},
				// Unreachable terminal state: the last state is terminal.
				{
					Dist:      &circpad.Distribution{Family: circpad.Uniform, P1: 0, P2: 0},
					NextState: map[circpad.Event]int{},
				},
			},
		},
		timeout: 200 * time.Millisecond,
		drive: func(env *scenarioEnv, inject chan<- func()) {
			time.AfterFunc(5*time.Millisecond, func() {
				inject <- func() {
					// Simulate a NEGOTIATED(STOP, ctr=0) arriving for a
					// negotiation round that predates the slot's current
					// install (whose counter starts at 1): it must be
					// dropped rather than tearing down the active instance.
					stale := negotiate.EncodeNegotiated(circpad.Negotiated{
						Version:      circpad.NegotiationVersion,
						Command:      circpad.CommandStop,
						Number:       5,
						Ctr:          0,
						ResponseCode: circpad.Success,
					})
					_ = env.ctrl.HandleNegotiated(circuitID, 0, stale)
				}
			})
		},
	}
}

// S6 — overhead cap enforcement: a fast-firing machine against a tight
// global cap; expect exactly the configured burst, then suppression.
func scenarioS6() scenario {
	return scenario{
		name: "S6 overhead cap enforcement",
		spec: circpad.MachineSpec{
			Number: 6,
			Name:   "s6-fast",
			Side:   circpad.OriginSide,
			// Deliberately looser than the global cap configured below,
			// so the global cap is the one actually exercised.
			OverheadBurst:      1000,
			OverheadMaxPercent: 1,
			States: []circpad.State{
				{
					Dist:      &circpad.Distribution{Family: circpad.Uniform, P1: 1, P2: 1},
					NextState: map[circpad.Event]int{},
				},
				// Unreachable terminal state: the last state is terminal.
				{
					Dist:      &circpad.Distribution{Family: circpad.Uniform, P1: 0, P2: 0},
					NextState: map[circpad.Event]int{},
				},
			},
		},
		timeout: 20 * time.Millisecond,
		configureGovernor: func(gov *overhead.Governor) {
			gov.SetGlobalCaps(10, 0.05)
		},
	}
}
