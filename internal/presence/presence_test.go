package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

func TestCursorLastWriteWins(t *testing.T) {
	tr := NewTracker(0)
	defer tr.Stop()

	tr.UpdateCursor(&protocol.CursorUpdate{SocketID: "s1", Username: "bob", Position: protocol.Position{Line: 1, Column: 2}})
	tr.UpdateCursor(&protocol.CursorUpdate{SocketID: "s1", Username: "bob", Position: protocol.Position{Line: 9, Column: 0}})

	cursors := tr.Cursors()
	if len(cursors) != 1 {
		t.Fatalf("expected 1 cursor per socket id, got %d", len(cursors))
	}
	if cursors[0].Position.Line != 9 {
		t.Fatalf("expected last write to win, got line %d", cursors[0].Position.Line)
	}
}

func TestCursorColorDeterministic(t *testing.T) {
	tr := NewTracker(0)
	defer tr.Stop()

	tr.UpdateCursor(&protocol.CursorUpdate{SocketID: "s1", Username: "bob"})
	c1 := tr.Cursors()[0].Color
	if c1 == "" {
		t.Fatal("expected a derived color")
	}
	if c1 != ColorFor("bob") {
		t.Fatalf("color not derived from username: %q vs %q", c1, ColorFor("bob"))
	}

	// A server-provided color is kept as-is.
	tr.UpdateCursor(&protocol.CursorUpdate{SocketID: "s2", Username: "eve", Color: "#123456"})
	for _, c := range tr.Cursors() {
		if c.SocketID == "s2" && c.Color != "#123456" {
			t.Fatalf("server color overridden: %q", c.Color)
		}
	}
}

func TestCursorRemovedWithParticipant(t *testing.T) {
	tr := NewTracker(0)
	defer tr.Stop()

	tr.UpdateCursor(&protocol.CursorUpdate{SocketID: "s1", Username: "bob"})
	tr.RemoveParticipant("s1")
	if len(tr.Cursors()) != 0 {
		t.Fatal("cursor should expire when its participant leaves")
	}
}

func TestRetainDropsAbsentCursors(t *testing.T) {
	tr := NewTracker(0)
	defer tr.Stop()

	tr.UpdateCursor(&protocol.CursorUpdate{SocketID: "s1", Username: "bob"})
	tr.UpdateCursor(&protocol.CursorUpdate{SocketID: "s2", Username: "eve"})

	tr.Retain([]string{"s1", "s3"})

	cursors := tr.Cursors()
	if len(cursors) != 1 || cursors[0].SocketID != "s1" {
		t.Fatalf("expected only s1 to survive, got %+v", cursors)
	}
}

func TestTypingExpiresWithoutRefresh(t *testing.T) {
	tr := NewTracker(30 * time.Millisecond)
	defer tr.Stop()

	var mu sync.Mutex
	var expired []string
	tr.OnTypingExpired(func(u string) {
		mu.Lock()
		expired = append(expired, u)
		mu.Unlock()
	})

	tr.SetTyping("bob", true)
	if got := tr.TypingUsers(); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("expected [bob], got %v", got)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(tr.TypingUsers()) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := tr.TypingUsers(); len(got) != 0 {
		t.Fatalf("typing flag did not auto-expire: %v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(expired) != 1 || expired[0] != "bob" {
		t.Fatalf("expected expiry callback for bob, got %v", expired)
	}
}

func TestTypingRefreshExtendsWindow(t *testing.T) {
	tr := NewTracker(50 * time.Millisecond)
	defer tr.Stop()

	tr.SetTyping("bob", true)
	for i := 0; i < 4; i++ {
		time.Sleep(25 * time.Millisecond)
		tr.SetTyping("bob", true)
	}
	if got := tr.TypingUsers(); len(got) != 1 {
		t.Fatalf("refreshed flag must survive, got %v", got)
	}
}

func TestExplicitStopTyping(t *testing.T) {
	tr := NewTracker(time.Minute)
	defer tr.Stop()

	tr.SetTyping("bob", true)
	tr.SetTyping("bob", false)
	if got := tr.TypingUsers(); len(got) != 0 {
		t.Fatalf("explicit stop must clear immediately, got %v", got)
	}
}

func TestStopFreezesTracker(t *testing.T) {
	tr := NewTracker(time.Minute)

	tr.SetTyping("bob", true)
	tr.UpdateCursor(&protocol.CursorUpdate{SocketID: "s1", Username: "bob"})
	tr.Stop()

	if len(tr.TypingUsers()) != 0 || len(tr.Cursors()) != 0 {
		t.Fatal("Stop must clear all state")
	}

	// In-flight events after Stop are dropped.
	tr.SetTyping("eve", true)
	tr.UpdateCursor(&protocol.CursorUpdate{SocketID: "s2", Username: "eve"})
	if len(tr.TypingUsers()) != 0 || len(tr.Cursors()) != 0 {
		t.Fatal("events after Stop must be ignored")
	}
}
