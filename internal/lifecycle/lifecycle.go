// Package lifecycle coordinates shutdown. The process moves through three
// states, forward only: Running accepts new work, Draining refuses new work
// while in-flight jobs finish, Stopped means everything is torn down.
package lifecycle

import "sync/atomic"

// Process states.
const (
	Running int32 = iota
	Draining
	Stopped
)

// Lifecycle is a forward-only state machine shared between the inbound
// surfaces and the shutdown path. Transitions are compare-and-swap, so a
// second signal arriving mid-drain cannot restart the sequence.
type Lifecycle struct {
	state atomic.Int32
}

// New creates a lifecycle in Running state.
func New() *Lifecycle {
	return &Lifecycle{}
}

// State returns the current state.
func (l *Lifecycle) State() int32 {
	return l.state.Load()
}

// Accepting reports whether new work may be admitted.
func (l *Lifecycle) Accepting() bool {
	return l.state.Load() == Running
}

// BeginDrain moves Running to Draining. Returns false if the process already
// left Running, in which case the caller must not start a second drain.
func (l *Lifecycle) BeginDrain() bool {
	return l.state.CompareAndSwap(Running, Draining)
}

// FinishStop moves Draining to Stopped. Returns false if the process was not
// draining.
func (l *Lifecycle) FinishStop() bool {
	return l.state.CompareAndSwap(Draining, Stopped)
}
