// Package schedule implements the scheduler (component E): one
// non-overlapping timer per runtime instance, armed from a sampled
// delay and, on fire, posting a FireEvent back onto the dispatcher's
// single-threaded mailbox rather than invoking a transition directly.
//
// This preserves §5's suspension-point contract: arming a timer is the
// only place a runtime "yields," and the actual fire handling — the
// overhead check, emitting the cell, raising PaddingSent, resampling —
// always runs on the one logical task loop, never on the OS timer's own
// goroutine. Grounded on the reference stack's single-owner
// ticker/timer pattern in its peer ping tracker, generalized from one
// ticker-per-tracker to one timer-per-runtime-instance.
package schedule

import (
	"sync"
	"time"

	"circpad"
)

// SlotKey identifies one of a circuit's (at most two) machine slots for
// timer bookkeeping. Index distinguishes the two slots a circuit may
// carry on the same side; it is not a machine number.
type SlotKey struct {
	CircuitID string
	Side      circpad.Side
	Index     int
}

// FireEvent is posted to the dispatcher's mailbox when a runtime's timer
// fires. Generation must be checked by the receiver against the
// instance's current timer generation before acting — a fire can race a
// cancellation (§5's idempotent-cancellation rule).
type FireEvent struct {
	Key        SlotKey
	Generation uint64
}

// StopFunc cancels a pending timer. Returns false if the timer already
// fired or was already stopped.
type StopFunc func() bool

// AfterFunc arranges for f to run after d elapses. Production code uses
// RealAfterFunc; tests inject a fake that runs synchronously or queues
// fires for manual triggering against a fake clock.
type AfterFunc func(d time.Duration, f func()) StopFunc

// RealAfterFunc wraps time.AfterFunc.
func RealAfterFunc(d time.Duration, f func()) StopFunc {
	t := time.AfterFunc(d, f)
	return t.Stop
}

// Scheduler owns the one-timer-per-slot bookkeeping and posts fires to
// a mailbox channel owned by the dispatcher.
type Scheduler struct {
	after   AfterFunc
	mailbox chan<- FireEvent

	mu     sync.Mutex
	timers map[SlotKey]StopFunc
}

// New creates a Scheduler. after is usually RealAfterFunc; mailbox is
// the dispatcher's event channel.
func New(after AfterFunc, mailbox chan<- FireEvent) *Scheduler {
	return &Scheduler{
		after:   after,
		mailbox: mailbox,
		timers:  make(map[SlotKey]StopFunc),
	}
}

// Schedule cancels any existing timer for key and arms a new one for
// delay; the eventual fire carries the caller-supplied generation.
// A zero delay still fires on the next loop tick rather than
// synchronously, per §4.E, by going through the same AfterFunc path
// with a minimal delay.
func (s *Scheduler) Schedule(key SlotKey, generation uint64, delay time.Duration) {
	s.mu.Lock()
	if stop, ok := s.timers[key]; ok {
		stop()
	}
	fireDelay := delay
	if fireDelay == 0 {
		fireDelay = time.Nanosecond
	}
	s.timers[key] = s.after(fireDelay, func() {
		s.mailbox <- FireEvent{Key: key, Generation: generation}
	})
	s.mu.Unlock()
}

// Cancel stops any pending timer for key. Idempotent.
func (s *Scheduler) Cancel(key SlotKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.timers[key]; ok {
		stop()
		delete(s.timers, key)
	}
}
