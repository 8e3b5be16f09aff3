package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Envelope frames every wire message as {"event": <name>, "data": <payload>}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrBadPayload   = errors.New("malformed payload")
)

// Marshal frames msg into an envelope and encodes it.
func Marshal(msg ClientMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Event(), err)
	}
	return json.Marshal(Envelope{Event: msg.Event(), Data: data})
}

// MarshalServer frames a server-side message for transmission to a client.
func MarshalServer(msg ServerMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Event(), err)
	}
	return json.Marshal(Envelope{Event: msg.Event(), Data: data})
}

// DecodeServer validates and decodes one inbound (server → client) message.
// The returned message is a pointer to one of the ServerMessage union types.
// Unknown event names and malformed payloads are errors; reducers never see
// raw JSON.
func DecodeServer(raw []byte) (ServerMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	var msg ServerMessage
	switch env.Event {
	case EventAuthSuccess:
		msg = &AuthSuccess{}
	case EventAuthError:
		msg = &AuthError{}
	case EventUserJoined:
		msg = &UserJoined{}
	case EventUserLeft:
		msg = &UserLeft{}
	case EventSessionParticipants:
		msg = &SessionParticipants{}
	case EventParticipantCountUpdate:
		msg = &ParticipantCount{}
	case EventCodeChange:
		msg = &CodeChange{}
	case EventCodeSync:
		msg = &CodeSync{}
	case EventCursorUpdate:
		msg = &CursorUpdate{}
	case EventTypingStatusUpdate:
		msg = &TypingUpdate{}
	case EventExecutionStarted:
		msg = &ExecutionStarted{}
	case EventExecutionResult:
		msg = &ExecutionResult{}
	case EventExecutionError:
		msg = &ExecutionError{}
	case EventChatMessage:
		msg = &ChatMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, msg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Event, err)
		}
	}
	return msg, nil
}

// DecodeClient validates and decodes one inbound (client → server) message.
// Used by the server side of the contract. The returned message is a pointer
// except for LeaveSession, which has no payload.
func DecodeClient(raw []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	if id, ok := strings.CutPrefix(env.Event, leaveSessionPrefix); ok {
		if id == "" {
			return nil, fmt.Errorf("%w: leave-session without session id", ErrBadPayload)
		}
		return LeaveSession{SessionID: id}, nil
	}

	var msg ClientMessage
	switch env.Event {
	case EventAuthenticate:
		msg = &Authenticate{}
	case EventJoinSession:
		msg = &JoinSession{}
	case EventCodeChange:
		msg = &CodeChange{}
	case EventCursorPosition:
		msg = &CursorPosition{}
	case EventExecuteCode:
		msg = &ExecuteCode{}
	case EventChatSend:
		msg = &ChatSend{}
	case EventTypingStatus:
		msg = &TypingStatus{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, msg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Event, err)
		}
	}

	switch m := msg.(type) {
	case *Authenticate:
		if m.ID == "" || m.Username == "" {
			return nil, fmt.Errorf("%w: authenticate requires id and username", ErrBadPayload)
		}
	case *JoinSession:
		if m.SessionID == "" {
			return nil, fmt.Errorf("%w: join-session requires sessionId", ErrBadPayload)
		}
	}
	return msg, nil
}
