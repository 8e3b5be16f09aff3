// Package presence maintains peer cursors and typing indicators from the
// inbound event stream.
package presence

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

// DefaultTypingTTL is how long a typing flag survives without a refresh.
// The expiry timer tolerates a dropped "stopped typing" signal.
const DefaultTypingTTL = 3 * time.Second

// cursorPalette is the fixed set of colors assigned to participants.
// Derived deterministically from the username; collisions beyond the palette
// size are expected and acceptable.
var cursorPalette = []string{
	"#e06c75", "#61afef", "#98c379", "#c678dd",
	"#d19a66", "#56b6c2", "#e5c07b", "#abb2bf",
}

// ColorFor returns the deterministic cursor color for a username.
func ColorFor(username string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return cursorPalette[h.Sum32()%uint32(len(cursorPalette))]
}

// Cursor is one peer's last known cursor location.
type Cursor struct {
	SocketID  string
	Username  string
	Position  protocol.Position
	Color     string
	UpdatedAt time.Time
}

// Tracker holds cursor and typing state for one session. Cursor updates are
// last-write-wins in arrival order; the protocol carries no sequence number.
type Tracker struct {
	typingTTL time.Duration

	mu       sync.Mutex
	cursors  map[string]Cursor // keyed by socket id
	typing   map[string]*time.Timer
	stopped  bool
	onExpire func(username string)
}

func NewTracker(typingTTL time.Duration) *Tracker {
	if typingTTL <= 0 {
		typingTTL = DefaultTypingTTL
	}
	return &Tracker{
		typingTTL: typingTTL,
		cursors:   make(map[string]Cursor),
		typing:    make(map[string]*time.Timer),
	}
}

// OnTypingExpired registers a callback fired when a typing flag times out
// (not when it is cleared explicitly). Must be set before events flow.
func (t *Tracker) OnTypingExpired(fn func(username string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// UpdateCursor applies an inbound cursor-update. An update arriving after a
// newer one still overwrites; accepted imprecision.
func (t *Tracker) UpdateCursor(u *protocol.CursorUpdate) {
	color := u.Color
	if color == "" {
		color = ColorFor(u.Username)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.cursors[u.SocketID] = Cursor{
		SocketID:  u.SocketID,
		Username:  u.Username,
		Position:  u.Position,
		Color:     color,
		UpdatedAt: time.Now(),
	}
}

// Retain drops every cursor whose socket id is not in the given roster. A
// wholesale roster snapshot supersedes any user-left events lost while
// disconnected, so cursors of departed owners must not outlive it.
func (t *Tracker) Retain(socketIDs []string) {
	keep := make(map[string]struct{}, len(socketIDs))
	for _, id := range socketIDs {
		keep[id] = struct{}{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.cursors {
		if _, ok := keep[id]; !ok {
			delete(t.cursors, id)
		}
	}
}

// RemoveParticipant drops the cursor owned by a departed socket id.
func (t *Tracker) RemoveParticipant(socketID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, socketID)
}

// Cursors returns a copy of all known peer cursors.
func (t *Tracker) Cursors() []Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Cursor, 0, len(t.cursors))
	for _, c := range t.cursors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SocketID < out[j].SocketID })
	return out
}

// SetTyping toggles a username's typing flag. A true flag re-arms the expiry
// timer; a false flag clears immediately.
func (t *Tracker) SetTyping(username string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	if timer, ok := t.typing[username]; ok {
		timer.Stop()
		delete(t.typing, username)
	}
	if !isTyping {
		return
	}
	t.typing[username] = time.AfterFunc(t.typingTTL, func() { t.expire(username) })
}

func (t *Tracker) expire(username string) {
	t.mu.Lock()
	_, ok := t.typing[username]
	if ok {
		delete(t.typing, username)
	}
	fn := t.onExpire
	t.mu.Unlock()

	if ok && fn != nil {
		fn(username)
	}
}

// TypingUsers returns the usernames currently typing, sorted.
func (t *Tracker) TypingUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.typing))
	for u := range t.typing {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Resume re-enables a stopped tracker for a session being re-joined.
func (t *Tracker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = false
}

// Stop synchronously invalidates all timers and freezes the tracker. Used on
// leave and disconnect so in-flight events cannot resurrect state.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for u, timer := range t.typing {
		timer.Stop()
		delete(t.typing, u)
	}
	t.cursors = make(map[string]Cursor)
}
