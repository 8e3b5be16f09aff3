package devserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/Harris-py/codecollab-go/pkg/api"
	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connState is the per-connection protocol state.
type connState struct {
	client *wsClient
	user   *protocol.User
	room   *room
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := newWSClient(uuid.NewString(), conn)
	go client.WriteLoop()

	st := &connState{client: client}
	defer s.teardown(st)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, derr := protocol.DecodeClient(raw)
		if derr != nil {
			// A broken authenticate is an auth failure, everything else is
			// dropped with a note.
			var env protocol.Envelope
			if json.Unmarshal(raw, &env) == nil && env.Event == protocol.EventAuthenticate {
				client.Queue(&protocol.AuthError{Message: "missing id or username"})
				return
			}
			log.Printf("devserver: dropping frame from %s: %v", client.socketID, derr)
			continue
		}
		s.handleMessage(st, msg)
	}
}

func (s *Server) handleMessage(st *connState, msg protocol.ClientMessage) {
	switch m := msg.(type) {
	case *protocol.Authenticate:
		st.user = &protocol.User{ID: m.ID, Username: m.Username, Profile: m.Profile}
		st.client.Queue(&protocol.AuthSuccess{SocketID: st.client.socketID})

	case *protocol.JoinSession:
		if st.user == nil {
			st.client.Queue(&protocol.AuthError{Message: "authenticate first"})
			return
		}
		if st.room != nil && st.room.id != m.SessionID {
			s.leaveRoom(st)
		}
		r := s.hub.room(m.SessionID)
		joined := r.join(st.client, *st.user)
		st.room = r

		// The joiner gets the full roster and the current buffer; everyone
		// else gets an incremental patch.
		r.sendTo(st.client.socketID, &protocol.SessionParticipants{Participants: r.participants()})
		r.sendTo(st.client.socketID, &protocol.CodeSync{Code: r.currentCode()})
		r.broadcast(st.client.socketID, &protocol.UserJoined{User: joined})
		r.broadcast(st.client.socketID, &protocol.ParticipantCount{Count: r.size()})

	case protocol.LeaveSession:
		if st.room != nil && st.room.id == m.SessionID {
			s.leaveRoom(st)
		}

	case *protocol.CodeChange:
		if st.room == nil {
			return
		}
		st.room.setCode(m.Code)
		// Echo back to the sender with its correlation token so the client
		// can suppress the self-apply; peers get the sender's socket id.
		st.room.sendTo(st.client.socketID, &protocol.CodeChange{
			Code: m.Code, Operation: m.Operation, Token: m.Token, From: "self", Timestamp: m.Timestamp,
		})
		st.room.broadcast(st.client.socketID, &protocol.CodeChange{
			Code: m.Code, Operation: m.Operation, From: st.client.socketID, Timestamp: m.Timestamp,
		})

	case *protocol.CursorPosition:
		if st.room == nil || st.user == nil {
			return
		}
		st.room.broadcast(st.client.socketID, &protocol.CursorUpdate{
			SocketID:  st.client.socketID,
			Username:  st.user.Username,
			Position:  m.Position,
			Timestamp: m.Timestamp,
		})

	case *protocol.TypingStatus:
		if st.room == nil || st.user == nil {
			return
		}
		st.room.broadcast(st.client.socketID, &protocol.TypingUpdate{
			Username: st.user.Username,
			IsTyping: m.IsTyping,
		})

	case *protocol.ExecuteCode:
		if st.room == nil || st.user == nil {
			return
		}
		s.startExecution(st.room, st.user.Username, m)

	case *protocol.ChatSend:
		if st.room == nil || st.user == nil {
			return
		}
		st.room.broadcast("", &protocol.ChatMessage{
			ID:        ulid.Make().String(),
			Username:  st.user.Username,
			Content:   m.Message,
			Timestamp: protocol.Now(),
		})
	}
}

// startExecution broadcasts the started event to every member (including
// the requester) and runs the code asynchronously. A run that begins while
// another is in flight simply overwrites the slot; whichever terminal event
// arrives last wins, mirroring the race at a real backend.
func (s *Server) startExecution(r *room, username string, req *protocol.ExecuteCode) {
	r.broadcast("", &protocol.ExecutionStarted{Username: username})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		out, err := s.runner.Run(ctx, req.Code, req.Language, req.Input)
		entry := api.HistoryEntry{
			ExecutedBy: username,
			Language:   req.Language,
			Code:       req.Code,
			ExecutedAt: time.Now().UTC(),
		}
		if err != nil {
			entry.Error = err.Error()
			r.broadcast("", &protocol.ExecutionError{Error: err.Error(), ExecutedBy: username})
		} else {
			entry.Output = out.Output
			r.broadcast("", &protocol.ExecutionResult{Result: out, ExecutedBy: username})
		}
		s.store.AppendHistory(r.id, entry)
	}()
}

// leaveRoom removes the connection from its room and tells the remaining
// members.
func (s *Server) leaveRoom(st *connState) {
	r := st.room
	st.room = nil
	p, ok := r.leave(st.client.socketID)
	if !ok {
		return
	}
	r.broadcast("", &protocol.UserLeft{SocketID: st.client.socketID, User: p})
	r.broadcast("", &protocol.ParticipantCount{Count: r.size()})
	s.hub.drop(r.id)
}

func (s *Server) teardown(st *connState) {
	if st.room != nil {
		s.leaveRoom(st)
	}
	st.client.Close()
}
