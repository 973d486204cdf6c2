package dispatch

import (
	"circpad/internal/runtime"
	"circpad/internal/schedule"
)

// SlotProvider resolves a circuit's machine slot by key. Owned by the
// activation controller, which is the only component that creates and
// destroys slots.
type SlotProvider interface {
	Slot(key schedule.SlotKey) (*runtime.Slot, bool)
}

// TerminalHook is invoked synchronously when a runtime enters its
// terminal state (I6) or when the dispatcher's cascade guard forces a
// shutdown. The activation controller registers this to run the
// negotiation shutdown sequence (component H) and release the slot.
type TerminalHook func(key schedule.SlotKey, forced bool)

// ViolationLogger receives protocol-violation reports (§7 category 3).
// The core never closes a circuit itself on a violation — it only
// reports one so the host can decide.
type ViolationLogger func(key schedule.SlotKey, detail string)
