package activation

import "circpad/internal/schedule"

// EngineActivator is the subset of internal/dispatch.Engine the
// activation controller drives directly: performing the state-entry
// actions for a freshly installed runtime.
type EngineActivator interface {
	EnterInitialState(key schedule.SlotKey) error
}

// SchedulerCanceller is the subset of internal/schedule.Scheduler the
// controller needs when it tears down a runtime itself (condition
// failure), rather than via a transition the dispatcher already
// cancelled the timer for.
type SchedulerCanceller interface {
	Cancel(key schedule.SlotKey)
}
