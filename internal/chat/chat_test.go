package chat

import (
	"testing"

	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

func TestDeduplicationByID(t *testing.T) {
	l := NewLog()

	for _, id := range []string{"1", "2", "2", "3"} {
		l.Append(&protocol.ChatMessage{ID: id, Username: "bob", Content: "m" + id})
	}

	if l.Len() != 3 {
		t.Fatalf("expected 3 distinct messages, got %d", l.Len())
	}
	got := l.Messages()
	for i, want := range []string{"1", "2", "3"} {
		if got[i].ID != want {
			t.Fatalf("expected ids [1 2 3], got %v", got)
		}
	}
}

func TestAppendReportsDuplicates(t *testing.T) {
	l := NewLog()
	msg := &protocol.ChatMessage{ID: "a", Username: "bob", Content: "hi"}
	if !l.Append(msg) {
		t.Fatal("first append should succeed")
	}
	if l.Append(msg) {
		t.Fatal("duplicate append should report false")
	}
}

func TestSortedByTimestampKeepsAppendLog(t *testing.T) {
	l := NewLog()

	// Jitter: arrival order diverges from timestamp order.
	l.Append(&protocol.ChatMessage{ID: "b", Timestamp: 200})
	l.Append(&protocol.ChatMessage{ID: "a", Timestamp: 100})
	l.Append(&protocol.ChatMessage{ID: "c", Timestamp: 300})

	sorted := l.Sorted()
	if sorted[0].ID != "a" || sorted[1].ID != "b" || sorted[2].ID != "c" {
		t.Fatalf("expected timestamp order [a b c], got %v", sorted)
	}

	// The underlying log keeps arrival order for stable dedup.
	raw := l.Messages()
	if raw[0].ID != "b" || raw[1].ID != "a" {
		t.Fatalf("storage order must be arrival order, got %v", raw)
	}
}
