// Package overhead implements the overhead governor (component I): it
// tracks padding vs. total cells globally and per-machine, and decides
// whether a scheduled padding send should be suppressed to keep
// overhead within the configured caps (I4).
//
// Counters live in a Governor value created by New, with a clear Reset
// lifecycle rather than package-level state; the host creates one per
// process (the simulator, one per scenario). Modeled on the
// mutex-guarded snapshot-map pattern the freshness/ping trackers use
// for their own per-peer bookkeeping elsewhere in this stack.
package overhead

import (
	"sync"

	"circpad"
)

// Defaults for the global cap, per §4.I. MaxPercent is expressed as a
// fraction (0-1), not a 0-100 percentage.
const (
	DefaultGlobalBurst      uint64  = 5000
	DefaultGlobalMaxPercent float64 = 0.01
)

// Counts is a padding/total cell counter pair.
type Counts struct {
	Padding uint64
	Total   uint64
}

// MachineKey identifies a machine for per-machine accounting.
type MachineKey struct {
	Side   circpad.Side
	Number uint8
}

func keyFor(spec *circpad.MachineSpec) MachineKey {
	return MachineKey{Side: spec.Side, Number: spec.Number}
}

// Governor holds the global and per-machine counter pairs and decides
// admission for scheduled padding sends.
type Governor struct {
	mu sync.Mutex

	globalBurst      uint64
	globalMaxPercent float64

	global     Counts
	perMachine map[MachineKey]*Counts
}

// New creates a Governor with the compiled-in defaults. Use
// SetGlobalCaps to apply the §6.3 developer overrides.
func New() *Governor {
	return &Governor{
		globalBurst:      DefaultGlobalBurst,
		globalMaxPercent: DefaultGlobalMaxPercent,
		perMachine:       make(map[MachineKey]*Counts),
	}
}

// SetGlobalCaps overrides the global burst/percent caps.
func (g *Governor) SetGlobalCaps(burst uint64, maxPercent float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.globalBurst = burst
	g.globalMaxPercent = maxPercent
}

// Allow reports whether a padding cell may be sent for spec right now,
// given the current global and per-machine counts (I4). It does not
// mutate any counter — call RecordPadding after the cell is actually
// emitted.
func (g *Governor) Allow(spec *circpad.MachineSpec) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !withinCap(g.global.Padding, g.global.Total, g.globalBurst, g.globalMaxPercent) {
		return false
	}
	pm := g.perMachine[keyFor(spec)]
	if pm == nil {
		return true
	}
	return withinCap(pm.Padding, pm.Total, spec.OverheadBurst, spec.OverheadMaxPercent)
}

// withinCap implements I4: a send is allowed unless padding has reached
// the burst allowance AND the padding percentage of total exceeds the
// cap. Below the burst allowance the percentage cap is ignored.
func withinCap(padding, total uint64, burst uint64, maxPercent float64) bool {
	if padding < burst {
		return true
	}
	return float64(padding) <= maxPercent*float64(total)
}

// RecordPadding accounts for a padding cell actually emitted for spec.
func (g *Governor) RecordPadding(spec *circpad.MachineSpec) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.global.Padding++
	g.global.Total++
	pm := g.machineCounts(spec)
	pm.Padding++
	pm.Total++
}

// RecordNonPadding accounts for a non-padding cell observed on spec's
// slot — it contributes to the total but never the padding count.
func (g *Governor) RecordNonPadding(spec *circpad.MachineSpec) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.global.Total++
	pm := g.machineCounts(spec)
	pm.Total++
}

func (g *Governor) machineCounts(spec *circpad.MachineSpec) *Counts {
	key := keyFor(spec)
	pm, ok := g.perMachine[key]
	if !ok {
		pm = &Counts{}
		g.perMachine[key] = pm
	}
	return pm
}

// Snapshot returns the current global counts. A host's telemetry system
// polls this; the core never pushes to a metrics backend itself.
func (g *Governor) Snapshot() Counts {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.global
}

// SnapshotMachine returns the current per-machine counts for spec.
func (g *Governor) SnapshotMachine(spec *circpad.MachineSpec) Counts {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pm, ok := g.perMachine[keyFor(spec)]; ok {
		return *pm
	}
	return Counts{}
}

// Reset clears every counter. Used between tests and on process
// restart — counters are never persisted (§6.4).
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.global = Counts{}
	g.perMachine = make(map[MachineKey]*Counts)
}
