// Package chat keeps the session's append-only message log.
package chat

import (
	"sort"
	"sync"

	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

// Log is an append-only, de-duplicated chat log. Storage preserves arrival
// order so deduplication stays stable under network jitter; sorting by
// timestamp happens at read time.
type Log struct {
	mu      sync.Mutex
	entries []protocol.ChatMessage
	seen    map[string]struct{}
}

func NewLog() *Log {
	return &Log{seen: make(map[string]struct{})}
}

// Append adds msg unless a message with the same id is already present.
// Returns false for duplicates.
func (l *Log) Append(msg *protocol.ChatMessage) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.seen[msg.ID]; dup {
		return false
	}
	l.seen[msg.ID] = struct{}{}
	l.entries = append(l.entries, *msg)
	return true
}

// Messages returns the log in arrival order.
func (l *Log) Messages() []protocol.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]protocol.ChatMessage(nil), l.entries...)
}

// Sorted returns the log ordered by timestamp for display. Ties keep arrival
// order.
func (l *Log) Sorted() []protocol.ChatMessage {
	out := l.Messages()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Len reports the number of distinct messages.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
