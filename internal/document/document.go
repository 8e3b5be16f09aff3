// Package document holds the shared code buffer and the echo-suppression
// logic. The conflict policy is last-writer-wins: a remote change always
// replaces the whole buffer, with no merge or diffing.
package document

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

// Snapshot is a point-in-time view of the buffer.
type Snapshot struct {
	Code      string
	Origin    protocol.Origin
	UpdatedAt time.Time
}

// State is the single shared text buffer for one session.
//
// Echo suppression uses a queue of correlation tokens rather than a boolean
// flag: each outgoing edit arms one token, and only the inbound echo carrying
// the oldest outstanding token is skipped. Overlapping rapid edits therefore
// suppress exactly as many echoes as were sent.
type State struct {
	mu        sync.Mutex
	code      string
	origin    protocol.Origin
	updatedAt time.Time
	pending   []string // outstanding correlation tokens, oldest first
}

func New() *State {
	return &State{}
}

// SetLocal records a locally originated edit. The network send is the
// caller's job; Arm must be called at send time.
func (s *State) SetLocal(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	s.origin = protocol.OriginSelf
	s.updatedAt = time.Now()
}

// Arm generates a correlation token for an outgoing change and pushes it
// onto the outstanding queue. The token must accompany the outbound
// code-change; its echo will be suppressed.
func (s *State) Arm() string {
	token := uuid.NewString()
	s.mu.Lock()
	s.pending = append(s.pending, token)
	s.mu.Unlock()
	return token
}

// ApplyRemote applies an inbound code-change. It returns false when the
// event was the echo of a local edit and was suppressed. Suppression matches
// the oldest outstanding token (or, for servers that only tag the sender,
// a from=="self" marker) and disarms after exactly one skip.
func (s *State) ApplyRemote(change *protocol.CodeChange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 && (change.Token == s.pending[0] || change.From == "self") {
		s.pending = s.pending[1:]
		return false
	}

	s.code = change.Code
	s.origin = protocol.OriginRemote
	s.updatedAt = time.Now()
	return true
}

// ApplySync applies a full-document snapshot. Sync always wins, regardless
// of suppression state; any outstanding tokens predate the snapshot and are
// dropped.
func (s *State) ApplySync(sync *protocol.CodeSync) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = sync.Code
	s.origin = protocol.OriginServerSync
	s.updatedAt = time.Now()
	s.pending = nil
}

// Code returns the current buffer contents.
func (s *State) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Snapshot returns the buffer with its last-applied change metadata.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Code: s.code, Origin: s.origin, UpdatedAt: s.updatedAt}
}

// PendingEchoes reports how many sent edits still await their echo.
func (s *State) PendingEchoes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
