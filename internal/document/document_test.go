package document

import (
	"testing"

	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

func TestSyncThenRemoteChange(t *testing.T) {
	s := New()

	s.ApplySync(&protocol.CodeSync{Code: "x=1"})
	if s.Code() != "x=1" {
		t.Fatalf("expected buffer x=1 after sync, got %q", s.Code())
	}
	if s.Snapshot().Origin != protocol.OriginServerSync {
		t.Fatalf("expected server-sync origin, got %v", s.Snapshot().Origin)
	}

	if applied := s.ApplyRemote(&protocol.CodeChange{Code: "x=2", From: "other"}); !applied {
		t.Fatal("remote change should apply")
	}
	if s.Code() != "x=2" {
		t.Fatalf("expected buffer x=2, got %q", s.Code())
	}
	if s.Snapshot().Origin != protocol.OriginRemote {
		t.Fatalf("expected remote origin, got %v", s.Snapshot().Origin)
	}
}

func TestEchoSuppressedByToken(t *testing.T) {
	s := New()
	s.SetLocal("y=3")
	token := s.Arm()

	if applied := s.ApplyRemote(&protocol.CodeChange{Code: "y=3", Token: token}); applied {
		t.Fatal("echo of local edit must be suppressed")
	}
	if s.Code() != "y=3" || s.Snapshot().Origin != protocol.OriginSelf {
		t.Fatalf("buffer disturbed by echo: %+v", s.Snapshot())
	}
	if s.PendingEchoes() != 0 {
		t.Fatalf("guard should disarm after one skip, %d tokens left", s.PendingEchoes())
	}

	// The next remote change with the same content is a real peer edit.
	if applied := s.ApplyRemote(&protocol.CodeChange{Code: "y=4", From: "other"}); !applied {
		t.Fatal("guard must not outlive its one echo")
	}
}

func TestEchoSuppressedByFromSelf(t *testing.T) {
	s := New()
	s.SetLocal("y=3")
	s.Arm()

	if applied := s.ApplyRemote(&protocol.CodeChange{Code: "y=3", From: "self"}); applied {
		t.Fatal("from=self echo must be suppressed while armed")
	}

	// Without an armed token, from=self is not trusted (stale echo after a
	// sync reset) and the change applies as remote.
	if applied := s.ApplyRemote(&protocol.CodeChange{Code: "z=1", From: "self"}); !applied {
		t.Fatal("unarmed from=self should apply")
	}
}

func TestOverlappingEditsSuppressBothEchoes(t *testing.T) {
	s := New()

	s.SetLocal("a")
	t1 := s.Arm()
	s.SetLocal("ab")
	t2 := s.Arm()

	if s.PendingEchoes() != 2 {
		t.Fatalf("expected 2 outstanding tokens, got %d", s.PendingEchoes())
	}

	if applied := s.ApplyRemote(&protocol.CodeChange{Code: "a", Token: t1}); applied {
		t.Fatal("first echo must be suppressed")
	}
	if applied := s.ApplyRemote(&protocol.CodeChange{Code: "ab", Token: t2}); applied {
		t.Fatal("second echo must be suppressed")
	}
	if s.Code() != "ab" {
		t.Fatalf("local buffer lost under rapid typing: %q", s.Code())
	}

	// An interleaved peer change still applies.
	s.SetLocal("abc")
	s.Arm()
	if applied := s.ApplyRemote(&protocol.CodeChange{Code: "peer", From: "s-2"}); !applied {
		t.Fatal("peer change should apply even with a token armed")
	}
}

func TestSyncOverridesSuppression(t *testing.T) {
	s := New()
	s.SetLocal("mine")
	s.Arm()

	s.ApplySync(&protocol.CodeSync{Code: "server"})
	if s.Code() != "server" {
		t.Fatalf("sync must always replace the buffer, got %q", s.Code())
	}
	if s.PendingEchoes() != 0 {
		t.Fatal("sync should drop stale tokens")
	}
}
