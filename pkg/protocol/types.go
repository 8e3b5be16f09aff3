// Package protocol defines the CodeCollab wire contract: the closed set of
// messages exchanged over the realtime channel, their payload schemas, and
// the envelope codec. Event names are part of the contract and must match
// the server verbatim.
package protocol

import "time"

// Outbound event names (client → server).
const (
	EventAuthenticate   = "authenticate"
	EventJoinSession    = "join-session"
	EventCodeChange     = "code-change"
	EventCursorPosition = "cursor-position"
	EventExecuteCode    = "execute-code"
	EventChatSend       = "chat-message"
	EventTypingStatus   = "typing-status-update"

	// leaveSessionPrefix is special: the session id is carried in the event
	// name itself ("leave-session:<sessionId>") with an empty payload.
	leaveSessionPrefix = "leave-session:"
)

// Inbound event names (server → client).
const (
	EventAuthSuccess            = "auth-success"
	EventAuthError              = "auth-error"
	EventUserJoined             = "user-joined"
	EventUserLeft               = "user-left"
	EventSessionParticipants    = "session-participants"
	EventParticipantCountUpdate = "participant-count-update"
	EventCodeSync               = "code-sync"
	EventCursorUpdate           = "cursor-update"
	EventTypingStatusUpdate     = "typing-status-update"
	EventExecutionStarted       = "execution-started"
	EventExecutionResult        = "execution-result"
	EventExecutionError         = "execution-error"
	EventChatMessage            = "chat-message"
)

// Transport-level pseudo-events. These are never decoded off the wire; the
// connection manager synthesizes them so consumers observe connection
// lifecycle through the same dispatch mechanism as protocol events.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventConnectError    = "connect_error"
	EventReconnect       = "reconnect"
	EventReconnectFailed = "reconnect_failed"
	EventError           = "error"
)

// Role is a participant's capability level within a session.
type Role string

const (
	RoleCreator Role = "creator"
	RoleEditor  Role = "editor"
	RoleViewer  Role = "viewer"
)

// Origin tags where a document mutation came from.
type Origin int

const (
	OriginSelf Origin = iota
	OriginRemote
	OriginServerSync
)

func (o Origin) String() string {
	switch o {
	case OriginSelf:
		return "self"
	case OriginRemote:
		return "remote"
	case OriginServerSync:
		return "server-sync"
	default:
		return "unknown"
	}
}

// User identifies an authenticated identity (stable across connections).
type User struct {
	ID       string         `json:"id"`
	Username string         `json:"username"`
	Profile  map[string]any `json:"profile,omitempty"`
}

// Participant is a connected session member. SocketID is the addressing key
// for presence; the same UserID may appear under multiple socket ids.
type Participant struct {
	SocketID     string `json:"socketId"`
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	Role         Role   `json:"role"`
	Active       bool   `json:"active"`
	LastActivity int64  `json:"lastActivity,omitempty"` // unix millis
}

// Position is a zero-based cursor location in the shared buffer.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Now returns the wire timestamp for the current instant (unix millis).
func Now() int64 {
	return time.Now().UnixMilli()
}
