package devserver

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

const outboundBufferSize = 64

// wsClient is one accepted realtime connection with a buffered outbound
// queue drained by WriteLoop.
type wsClient struct {
	socketID string
	conn     *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newWSClient(socketID string, conn *websocket.Conn) *wsClient {
	return &wsClient{
		socketID: socketID,
		conn:     conn,
		send:     make(chan []byte, outboundBufferSize),
	}
}

// Queue enqueues a frame, reporting false when the client is too slow and
// its buffer is full.
func (c *wsClient) Queue(msg protocol.ServerMessage) bool {
	data, err := protocol.MarshalServer(msg)
	if err != nil {
		return true // encoding bug, not a slow client
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) WriteLoop() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Close is idempotent; the channel close stops WriteLoop once drained.
func (c *wsClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// room is one session's live state: membership, the shared buffer, and the
// single execution slot.
type room struct {
	id string

	mu          sync.Mutex
	clients     map[string]*wsClient // keyed by socket id
	members     map[string]protocol.Participant
	code        string
	execRunning bool
}

// join adds a member, assigning the creator role to the first arrival.
func (r *room) join(c *wsClient, user protocol.User) protocol.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	role := protocol.RoleEditor
	if len(r.members) == 0 {
		role = protocol.RoleCreator
	}
	p := protocol.Participant{
		SocketID:     c.socketID,
		UserID:       user.ID,
		Username:     user.Username,
		Role:         role,
		Active:       true,
		LastActivity: protocol.Now(),
	}
	r.clients[c.socketID] = c
	r.members[c.socketID] = p
	return p
}

// leave removes a member, returning its roster entry and whether it was
// present.
func (r *room) leave(socketID string) (protocol.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[socketID]
	if ok {
		delete(r.members, socketID)
		delete(r.clients, socketID)
	}
	return p, ok
}

func (r *room) participants() []protocol.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Participant, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, p)
	}
	return out
}

func (r *room) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *room) setCode(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code = code
}

func (r *room) currentCode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

// broadcast queues msg for every member except the excluded socket id
// (pass "" to reach everyone). Slow clients are dropped from the room.
func (r *room) broadcast(exceptSocketID string, msg protocol.ServerMessage) {
	r.mu.Lock()
	clients := make([]*wsClient, 0, len(r.clients))
	for id, c := range r.clients {
		if id == exceptSocketID {
			continue
		}
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		if !c.Queue(msg) {
			if _, ok := r.leave(c.socketID); ok {
				c.Close()
			}
		}
	}
}

// sendTo queues msg for a single member.
func (r *room) sendTo(socketID string, msg protocol.ServerMessage) {
	r.mu.Lock()
	c := r.clients[socketID]
	r.mu.Unlock()
	if c != nil {
		c.Queue(msg)
	}
}

// Hub tracks the live rooms. Rooms are created on first join and discarded
// when the last member leaves.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

func (h *Hub) room(sessionID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[sessionID]
	if !ok {
		r = &room{
			id:      sessionID,
			clients: make(map[string]*wsClient),
			members: make(map[string]protocol.Participant),
		}
		h.rooms[sessionID] = r
	}
	return r
}

// lookup returns the room without creating it.
func (h *Hub) lookup(sessionID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[sessionID]
}

// drop removes a room once empty.
func (h *Hub) drop(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[sessionID]; ok && r.size() == 0 {
		delete(h.rooms, sessionID)
	}
}

// RoomSize reports the member count for a session id, 0 when no room is
// live.
func (h *Hub) RoomSize(sessionID string) int {
	r := h.lookup(sessionID)
	if r == nil {
		return 0
	}
	return r.size()
}
