package client

import (
	"sync"
	"time"

	"github.com/Harris-py/codecollab-go/internal/chat"
	"github.com/Harris-py/codecollab-go/internal/document"
	"github.com/Harris-py/codecollab-go/internal/execution"
	"github.com/Harris-py/codecollab-go/internal/presence"
	"github.com/Harris-py/codecollab-go/internal/session"
	"github.com/Harris-py/codecollab-go/internal/transport"
	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

// SessionClient is the session facade: membership, shared document, peer
// presence, the execution slot, and the chat log for one session id. All
// state updates happen synchronously on the connection's read loop; reads
// return copies and are safe from any goroutine.
type SessionClient struct {
	client    *Client
	sessionID string

	membership *session.Controller
	doc        *document.State
	presence   *presence.Tracker
	exec       *execution.State
	chat       *chat.Log

	mu     sync.Mutex
	closed bool
	offs   []func()

	debounce    *time.Timer
	pendingCode string
	havePending bool

	cursorTimer   *time.Timer
	pendingCursor protocol.Position
	haveCursor    bool
}

func newSessionClient(c *Client, sessionID string) *SessionClient {
	sc := &SessionClient{
		client:    c,
		sessionID: sessionID,
		doc:       document.New(),
		presence:  presence.NewTracker(c.cfg.TypingTTL),
		exec:      execution.New(),
		chat:      chat.NewLog(),
	}
	sc.membership = session.NewController(sessionID, c.cfg.Identity, c.transport, func() bool {
		return c.transport.Status() == transport.StatusConnected
	})
	sc.wire()
	return sc
}

// wire registers every dispatcher subscription this session needs. The
// closed check makes each handler a stale-event guard: after Close, frames
// still in flight for this session are dropped.
func (sc *SessionClient) wire() {
	d := sc.client.dispatcher

	sub := func(event string, fn func(msg any)) {
		sc.offs = append(sc.offs, d.On(event, fn))
	}

	sub(protocol.EventConnect, func(msg any) {
		if sc.isClosed() {
			return
		}
		sc.membership.OnConnected()
	})
	sub(protocol.EventSessionParticipants, func(msg any) {
		if sc.isClosed() {
			return
		}
		list := msg.(*protocol.SessionParticipants).Participants
		sc.membership.ReplaceRoster(list)
		// The snapshot supersedes any user-left events lost while
		// disconnected: cursors of absent owners go with them.
		ids := make([]string, 0, len(list))
		for _, p := range list {
			ids = append(ids, p.SocketID)
		}
		sc.presence.Retain(ids)
	})
	sub(protocol.EventUserJoined, func(msg any) {
		if sc.dropEvent() {
			return
		}
		sc.membership.AddParticipant(msg.(*protocol.UserJoined).User)
	})
	sub(protocol.EventUserLeft, func(msg any) {
		if sc.dropEvent() {
			return
		}
		left := msg.(*protocol.UserLeft)
		sc.membership.RemoveParticipant(left.SocketID)
		sc.presence.RemoveParticipant(left.SocketID)
	})
	sub(protocol.EventParticipantCountUpdate, func(msg any) {
		if sc.dropEvent() {
			return
		}
		sc.membership.SetCount(msg.(*protocol.ParticipantCount).Count)
	})
	sub(protocol.EventCodeSync, func(msg any) {
		if sc.dropEvent() {
			return
		}
		sc.doc.ApplySync(msg.(*protocol.CodeSync))
	})
	sub(protocol.EventCodeChange, func(msg any) {
		if sc.dropEvent() {
			return
		}
		sc.doc.ApplyRemote(msg.(*protocol.CodeChange))
	})
	sub(protocol.EventCursorUpdate, func(msg any) {
		if sc.dropEvent() {
			return
		}
		sc.presence.UpdateCursor(msg.(*protocol.CursorUpdate))
	})
	sub(protocol.EventTypingStatusUpdate, func(msg any) {
		if sc.dropEvent() {
			return
		}
		tu := msg.(*protocol.TypingUpdate)
		sc.presence.SetTyping(tu.Username, tu.IsTyping)
	})
	sub(protocol.EventExecutionStarted, func(msg any) {
		if sc.dropEvent() {
			return
		}
		sc.exec.Start(msg.(*protocol.ExecutionStarted).Username)
	})
	sub(protocol.EventExecutionResult, func(msg any) {
		if sc.dropEvent() {
			return
		}
		sc.exec.Finish(msg.(*protocol.ExecutionResult))
	})
	sub(protocol.EventExecutionError, func(msg any) {
		if sc.dropEvent() {
			return
		}
		sc.exec.Fail(msg.(*protocol.ExecutionError))
	})
	sub(protocol.EventChatMessage, func(msg any) {
		if sc.dropEvent() {
			return
		}
		sc.chat.Append(msg.(*protocol.ChatMessage))
	})
}

func (sc *SessionClient) isClosed() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.closed
}

// dropEvent reports whether an inbound session event should be ignored:
// after Close, or before the session has been joined.
func (sc *SessionClient) dropEvent() bool {
	if sc.isClosed() {
		return true
	}
	return sc.membership.Phase() == session.PhaseNotJoined
}

// SessionID returns the bound session id.
func (sc *SessionClient) SessionID() string { return sc.sessionID }

// Join requests membership. It fails when the connection is down.
func (sc *SessionClient) Join() error {
	if sc.isClosed() {
		return session.ErrNotConnected
	}
	sc.presence.Resume()
	return sc.membership.Join()
}

// Leave leaves the session but keeps the facade alive for a later re-join.
// Timers are invalidated and buffered sends dropped.
func (sc *SessionClient) Leave() {
	sc.stopTimers()
	sc.presence.Stop()
	sc.membership.Leave()
}

// Close leaves the session and permanently detaches the facade from the
// event stream.
func (sc *SessionClient) Close() {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	sc.closed = true
	offs := sc.offs
	sc.offs = nil
	sc.mu.Unlock()

	sc.Leave()
	for _, off := range offs {
		off()
	}
	sc.client.releaseSession(sc)
}

// Phase returns the membership phase.
func (sc *SessionClient) Phase() session.Phase { return sc.membership.Phase() }

// SetCode records a local edit. The edit is visible locally at once; the
// network send is debounced to bound message rate, and its echo will be
// suppressed.
func (sc *SessionClient) SetCode(code string) {
	sc.doc.SetLocal(code)

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	sc.pendingCode = code
	sc.havePending = true
	if sc.debounce == nil {
		sc.debounce = time.AfterFunc(sc.client.cfg.CodeDebounce, sc.flushCode)
	} else {
		sc.debounce.Reset(sc.client.cfg.CodeDebounce)
	}
}

// Flush sends any debounced edit immediately.
func (sc *SessionClient) Flush() {
	sc.mu.Lock()
	if sc.debounce != nil {
		sc.debounce.Stop()
	}
	sc.mu.Unlock()
	sc.flushCode()
}

// flushCode arms the echo-suppression token at send time and transmits the
// newest pending buffer.
func (sc *SessionClient) flushCode() {
	sc.mu.Lock()
	if sc.closed || !sc.havePending {
		sc.mu.Unlock()
		return
	}
	code := sc.pendingCode
	sc.havePending = false
	sc.mu.Unlock()

	token := sc.doc.Arm()
	_ = sc.client.transport.Send(protocol.CodeChange{
		SessionID: sc.sessionID,
		Code:      code,
		Operation: "replace",
		Token:     token,
		Timestamp: protocol.Now(),
	})
}

// SendCursor broadcasts the local cursor position, throttled to one send per
// throttle window with a trailing-edge send for the latest position.
func (sc *SessionClient) SendCursor(pos protocol.Position) {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	if sc.cursorTimer != nil {
		sc.pendingCursor = pos
		sc.haveCursor = true
		sc.mu.Unlock()
		return
	}
	sc.cursorTimer = time.AfterFunc(sc.client.cfg.CursorThrottle, sc.cursorTick)
	sc.mu.Unlock()

	sc.sendCursor(pos)
}

func (sc *SessionClient) cursorTick() {
	sc.mu.Lock()
	if sc.closed {
		sc.cursorTimer = nil
		sc.mu.Unlock()
		return
	}
	if !sc.haveCursor {
		sc.cursorTimer = nil
		sc.mu.Unlock()
		return
	}
	pos := sc.pendingCursor
	sc.haveCursor = false
	sc.cursorTimer.Reset(sc.client.cfg.CursorThrottle)
	sc.mu.Unlock()

	sc.sendCursor(pos)
}

func (sc *SessionClient) sendCursor(pos protocol.Position) {
	_ = sc.client.transport.Send(protocol.CursorPosition{
		SessionID: sc.sessionID,
		Position:  pos,
		Timestamp: protocol.Now(),
	})
}

// SetTyping signals the local user's typing state to peers.
func (sc *SessionClient) SetTyping(isTyping bool) {
	if sc.isClosed() {
		return
	}
	_ = sc.client.transport.Send(protocol.TypingStatus{
		SessionID: sc.sessionID,
		Username:  sc.client.cfg.Identity.Username,
		IsTyping:  isTyping,
	})
}

// Run requests a remote execution of code. The resulting state transitions
// arrive as execution events shared by all session members.
func (sc *SessionClient) Run(code, language, input string) error {
	if sc.isClosed() {
		return session.ErrNotConnected
	}
	return sc.client.transport.Send(protocol.ExecuteCode{
		SessionID: sc.sessionID,
		Code:      code,
		Language:  language,
		Input:     input,
		Timestamp: protocol.Now(),
	})
}

// SendChat posts a chat message. The server assigns its id and timestamp.
func (sc *SessionClient) SendChat(content string) error {
	if sc.isClosed() {
		return session.ErrNotConnected
	}
	return sc.client.transport.Send(protocol.ChatSend{
		SessionID: sc.sessionID,
		Message:   content,
		Timestamp: protocol.Now(),
	})
}

// stopTimers synchronously invalidates the debounce and throttle timers.
func (sc *SessionClient) stopTimers() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.debounce != nil {
		sc.debounce.Stop()
	}
	sc.havePending = false
	if sc.cursorTimer != nil {
		sc.cursorTimer.Stop()
		sc.cursorTimer = nil
	}
	sc.haveCursor = false
}

// Code returns the shared buffer contents.
func (sc *SessionClient) Code() string { return sc.doc.Code() }

// Document returns the buffer with its last-applied change metadata.
func (sc *SessionClient) Document() document.Snapshot { return sc.doc.Snapshot() }

// Participants returns the roster, self included.
func (sc *SessionClient) Participants() []protocol.Participant { return sc.membership.Participants() }

// Others returns the roster without the local user's entries.
func (sc *SessionClient) Others() []protocol.Participant { return sc.membership.Others() }

// ParticipantCount returns the roster size.
func (sc *SessionClient) ParticipantCount() int { return sc.membership.Count() }

// Cursors returns all known peer cursors.
func (sc *SessionClient) Cursors() []presence.Cursor { return sc.presence.Cursors() }

// TypingUsers returns usernames currently typing.
func (sc *SessionClient) TypingUsers() []string { return sc.presence.TypingUsers() }

// Execution returns the session's execution slot.
func (sc *SessionClient) Execution() execution.Snapshot { return sc.exec.Snapshot() }

// Messages returns the chat log sorted by timestamp for display.
func (sc *SessionClient) Messages() []protocol.ChatMessage { return sc.chat.Sorted() }
