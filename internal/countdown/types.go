package countdown

import (
	"errors"
	"time"
)

// TickInterval is the fixed period between two ticks.
const TickInterval = time.Second

var (
	// ErrRunning is returned when a running timer is reconfigured or started again.
	ErrRunning = errors.New("countdown: timer is running")
	// ErrNotIdle is returned by Start after a run ended without a new SetDuration.
	ErrNotIdle = errors.New("countdown: timer is not idle (call SetDuration first)")
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateFinished
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool { return s == StateFinished || s == StateCancelled }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Listener receives timer notifications.
//
// Callbacks are invoked on the trigger goroutine while the timer is locked,
// so they must not block and must not call back into the Timer.
type Listener interface {
	OnTimerUpdate(remaining int)
	OnTimerFinished()
	OnTimerCancelled()
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Update    func(remaining int)
	Finished  func()
	Cancelled func()
}

func (f ListenerFuncs) OnTimerUpdate(remaining int) {
	if f.Update != nil {
		f.Update(remaining)
	}
}

func (f ListenerFuncs) OnTimerFinished() {
	if f.Finished != nil {
		f.Finished()
	}
}

func (f ListenerFuncs) OnTimerCancelled() {
	if f.Cancelled != nil {
		f.Cancelled()
	}
}

// Snapshot is a point-in-time view of a Timer.
type Snapshot struct {
	State     State     `json:"state"`
	Duration  int       `json:"duration_seconds"`
	Remaining int       `json:"remaining_seconds"`
	Run       uint64    `json:"run"`
	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
}
