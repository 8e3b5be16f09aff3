// Package session tracks membership in a single collaborative session: the
// join/leave state machine and the participant roster.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

// Phase is the membership state for one (connection, session id) pair.
type Phase int

const (
	PhaseNotJoined Phase = iota
	PhaseJoining
	PhaseJoined
)

func (p Phase) String() string {
	switch p {
	case PhaseNotJoined:
		return "not-joined"
	case PhaseJoining:
		return "joining"
	case PhaseJoined:
		return "joined"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected = errors.New("session: transport not connected")
	ErrNoSession    = errors.New("session: no session id")
)

// Sender is the outbound half of the connection the controller joins on.
type Sender interface {
	Send(msg protocol.ClientMessage) error
}

// Controller drives the not-joined → joining → joined machine for one
// session id, keeps the roster, and re-joins automatically after reconnects.
type Controller struct {
	sessionID string
	self      protocol.User
	sender    Sender
	connected func() bool

	mu     sync.Mutex
	phase  Phase
	roster map[string]protocol.Participant // keyed by socket id
	count  int                             // server-reported participant count
}

func NewController(sessionID string, self protocol.User, sender Sender, connected func() bool) *Controller {
	return &Controller{
		sessionID: sessionID,
		self:      self,
		sender:    sender,
		connected: connected,
		roster:    make(map[string]protocol.Participant),
	}
}

// Phase returns the current membership phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SessionID returns the session this controller is bound to.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Join sends the join request. It fails without side effects when the
// transport is not connected.
func (c *Controller) Join() error {
	if c.sessionID == "" {
		return ErrNoSession
	}
	if !c.connected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	if c.phase == PhaseJoined {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseJoining
	c.mu.Unlock()

	if err := c.sender.Send(protocol.JoinSession{SessionID: c.sessionID, User: c.self}); err != nil {
		c.mu.Lock()
		c.phase = PhaseNotJoined
		c.mu.Unlock()
		return fmt.Errorf("session: join %s: %w", c.sessionID, err)
	}
	return nil
}

// Leave sends the leave request exactly once and clears local state. Leaving
// is fire-and-forget: the local transition does not wait for the server, and
// repeated calls are no-ops under the not-joined guard.
func (c *Controller) Leave() {
	c.mu.Lock()
	if c.phase == PhaseNotJoined {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseNotJoined
	c.roster = make(map[string]protocol.Participant)
	c.count = 0
	c.mu.Unlock()

	// Best effort; the server's user-left broadcast is the source of truth
	// for roster removal.
	_ = c.sender.Send(protocol.LeaveSession{SessionID: c.sessionID})
}

// OnConnected handles a transport (re)connect. If the controller believes it
// is still a member, the join request is re-sent before any further document
// or presence events for the session are trusted.
func (c *Controller) OnConnected() {
	c.mu.Lock()
	rejoin := c.phase == PhaseJoining || c.phase == PhaseJoined
	if rejoin {
		c.phase = PhaseJoining
	}
	c.mu.Unlock()

	if rejoin {
		_ = c.sender.Send(protocol.JoinSession{SessionID: c.sessionID, User: c.self})
	}
}

// ReplaceRoster applies a wholesale participants-list snapshot. Receiving
// the snapshot is the join acknowledgement: a joining controller becomes
// joined.
func (c *Controller) ReplaceRoster(list []protocol.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseNotJoined {
		return // stale event after leave
	}
	c.phase = PhaseJoined
	c.roster = make(map[string]protocol.Participant, len(list))
	for _, p := range list {
		c.roster[p.SocketID] = p
	}
	c.count = len(c.roster)
}

// AddParticipant patches the roster with a newly joined member.
func (c *Controller) AddParticipant(p protocol.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseNotJoined {
		return
	}
	c.roster[p.SocketID] = p
	c.count = len(c.roster)
}

// RemoveParticipant drops the member with the given socket id.
func (c *Controller) RemoveParticipant(socketID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.roster, socketID)
	c.count = len(c.roster)
}

// SetCount records a server-reported participant count.
func (c *Controller) SetCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = n
}

// Count returns the roster size (including self).
func (c *Controller) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Participants returns the full roster, self included.
func (c *Controller) Participants() []protocol.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Participant, 0, len(c.roster))
	for _, p := range c.roster {
		out = append(out, p)
	}
	return out
}

// Others returns the roster excluding the local user's own entries.
func (c *Controller) Others() []protocol.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Participant, 0, len(c.roster))
	for _, p := range c.roster {
		if p.UserID == c.self.ID {
			continue
		}
		out = append(out, p)
	}
	return out
}
