package protocol

// ClientMessage is the closed union of messages a client may send. Each
// concrete type fixes its payload schema; Event returns the wire name.
type ClientMessage interface {
	Event() string
}

// Authenticate is the handshake sent on every successful connect, including
// reconnects. The server treats it as idempotent.
type Authenticate struct {
	ID       string         `json:"id"`
	Username string         `json:"username"`
	Profile  map[string]any `json:"profile,omitempty"`
}

func (Authenticate) Event() string { return EventAuthenticate }

// JoinSession requests membership in a session.
type JoinSession struct {
	SessionID string `json:"sessionId"`
	User      User   `json:"user"`
}

func (JoinSession) Event() string { return EventJoinSession }

// LeaveSession leaves a session. Fire-and-forget: no acknowledgement is
// expected. The session id rides in the event name.
type LeaveSession struct {
	SessionID string `json:"-"`
}

func (m LeaveSession) Event() string { return leaveSessionPrefix + m.SessionID }

// CodeChange carries a full-buffer replacement. Outbound it includes the
// correlation token used for echo suppression; inbound the server echoes the
// token back to the sender and sets From for everyone else.
type CodeChange struct {
	SessionID string `json:"sessionId,omitempty"`
	Code      string `json:"code"`
	Operation string `json:"operation,omitempty"`
	Token     string `json:"token,omitempty"`
	From      string `json:"from,omitempty"` // inbound only: "self" or sender socket id
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (CodeChange) Event() string { return EventCodeChange }

// CursorPosition broadcasts the local cursor location.
type CursorPosition struct {
	SessionID string   `json:"sessionId"`
	Position  Position `json:"position"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

func (CursorPosition) Event() string { return EventCursorPosition }

// ExecuteCode requests a remote execution of the session's buffer.
type ExecuteCode struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	Language  string `json:"language"`
	Input     string `json:"input,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (ExecuteCode) Event() string { return EventExecuteCode }

// ChatSend posts a chat message. The server assigns the id and canonical
// timestamp before rebroadcasting.
type ChatSend struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (ChatSend) Event() string { return EventChatSend }

// TypingStatus signals that the local user started or stopped typing.
type TypingStatus struct {
	SessionID string `json:"sessionId,omitempty"`
	Username  string `json:"username"`
	IsTyping  bool   `json:"isTyping"`
}

func (TypingStatus) Event() string { return EventTypingStatus }

// ServerMessage is the closed union of messages a client may receive.
type ServerMessage interface {
	Event() string
}

// AuthSuccess acknowledges the authenticate handshake.
type AuthSuccess struct {
	SocketID string `json:"socketId,omitempty"`
}

func (AuthSuccess) Event() string { return EventAuthSuccess }

// AuthError rejects the authenticate handshake. Not retried automatically.
type AuthError struct {
	Message string `json:"message"`
}

func (AuthError) Event() string { return EventAuthError }

// UserJoined announces a new session member.
type UserJoined struct {
	User Participant `json:"user"`
}

func (UserJoined) Event() string { return EventUserJoined }

// UserLeft announces a member's departure. The server is the source of truth
// for roster removal.
type UserLeft struct {
	SocketID string      `json:"socketId"`
	User     Participant `json:"user"`
}

func (UserLeft) Event() string { return EventUserLeft }

// SessionParticipants replaces the roster wholesale.
type SessionParticipants struct {
	Participants []Participant `json:"participants"`
}

func (SessionParticipants) Event() string { return EventSessionParticipants }

// ParticipantCount is a lightweight roster-size update.
type ParticipantCount struct {
	Count int `json:"count"`
}

func (ParticipantCount) Event() string { return EventParticipantCountUpdate }

// CodeSync is a full-document snapshot, typically delivered on join. It
// always replaces local content.
type CodeSync struct {
	Code string `json:"code"`
}

func (CodeSync) Event() string { return EventCodeSync }

// CursorUpdate reports a peer's cursor location.
type CursorUpdate struct {
	SocketID  string   `json:"socketId"`
	Username  string   `json:"username"`
	Position  Position `json:"position"`
	Color     string   `json:"color,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

func (CursorUpdate) Event() string { return EventCursorUpdate }

// TypingUpdate reports a peer's typing state.
type TypingUpdate struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

func (TypingUpdate) Event() string { return EventTypingStatusUpdate }

// ExecutionStarted marks the session's single execution slot as running.
type ExecutionStarted struct {
	Username string `json:"username"`
}

func (ExecutionStarted) Event() string { return EventExecutionStarted }

// ExecutionResult carries a completed execution's output.
type ExecutionResult struct {
	Result     RunOutput `json:"result"`
	ExecutedBy string    `json:"executedBy"`
}

func (ExecutionResult) Event() string { return EventExecutionResult }

// RunOutput is the payload of a successful execution.
type RunOutput struct {
	Output     string `json:"output"`
	Stderr     string `json:"stderr,omitempty"`
	ExitCode   int    `json:"exitCode,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// ExecutionError carries a failed execution.
type ExecutionError struct {
	Error      string `json:"error"`
	ExecutedBy string `json:"executedBy,omitempty"`
}

func (ExecutionError) Event() string { return EventExecutionError }

// ChatMessage is a chat log entry. ID is the de-duplication key; Timestamp
// is the display ordering key.
type ChatMessage struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

func (ChatMessage) Event() string { return EventChatMessage }

// Transport-level pseudo-messages, synthesized locally by the connection
// manager (never decoded off the wire).

// Connected is emitted after a successful connect and handshake.
type Connected struct{}

func (Connected) Event() string { return EventConnect }

// Disconnected is emitted when the connection drops.
type Disconnected struct {
	Reason string `json:"reason"`
}

func (Disconnected) Event() string { return EventDisconnect }

// ConnectFailed is emitted per failed connection attempt.
type ConnectFailed struct {
	Message string `json:"message"`
}

func (ConnectFailed) Event() string { return EventConnectError }

// Reconnected is emitted when an automatic reconnect succeeds.
type Reconnected struct {
	Attempt int `json:"attemptNumber"`
}

func (Reconnected) Event() string { return EventReconnect }

// ReconnectFailed is terminal: the attempt ceiling was exhausted and no
// further automatic reconnects are scheduled.
type ReconnectFailed struct{}

func (ReconnectFailed) Event() string { return EventReconnectFailed }
