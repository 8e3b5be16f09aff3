// Package execution tracks a session's single remote execution slot.
package execution

import (
	"sync"

	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

// Phase is the slot's position in idle → running → (succeeded|failed).
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is the externally visible slot state. In a terminal phase exactly
// one of Result and Err is set.
type Snapshot struct {
	Running    bool
	Phase      Phase
	ExecutedBy string
	Result     *protocol.RunOutput
	Err        *protocol.ExecutionError
}

// State is the rolling single most-recent execution for a session. There is
// no queueing: concurrent run requests race at the server and the slot
// reflects whichever outcome arrives.
type State struct {
	mu   sync.Mutex
	snap Snapshot
}

func New() *State {
	return &State{}
}

// Start transitions to running and resets the slot, whether triggered
// locally or by observing another participant's execution-started event.
// Starting while already running simply resets the slot.
func (s *State) Start(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{Running: true, Phase: PhaseRunning, ExecutedBy: username}
}

// Finish records a successful result and clears running.
func (s *State) Finish(res *protocol.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := res.Result
	s.snap = Snapshot{
		Phase:      PhaseSucceeded,
		ExecutedBy: s.executedByOr(res.ExecutedBy),
		Result:     &out,
	}
}

// Fail records a failed execution and clears running.
func (s *State) Fail(e *protocol.ExecutionError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errCopy := *e
	s.snap = Snapshot{
		Phase:      PhaseFailed,
		ExecutedBy: s.executedByOr(e.ExecutedBy),
		Err:        &errCopy,
	}
}

// executedByOr prefers the terminal event's attribution, falling back to
// whoever started the run. Callers must hold s.mu.
func (s *State) executedByOr(name string) string {
	if name != "" {
		return name
	}
	return s.snap.ExecutedBy
}

// Reset returns the slot to idle.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{}
}

// Snapshot returns a copy of the slot state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
