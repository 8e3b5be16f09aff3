package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Harris-py/codecollab-go/internal/dispatch"
	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

// fakeServer implements just enough of the wire contract to exercise the
// connection manager: it answers the authenticate handshake and records what
// it saw.
type fakeServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	authCount  int
	rejectAuth bool
	conns      []*websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fs.mu.Lock()
	fs.conns = append(fs.conns, conn)
	fs.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.DecodeClient(raw)
		if err != nil {
			continue
		}
		if _, ok := msg.(*protocol.Authenticate); ok {
			fs.mu.Lock()
			fs.authCount++
			reject := fs.rejectAuth
			n := fs.authCount
			fs.mu.Unlock()

			var reply protocol.ServerMessage = &protocol.AuthSuccess{SocketID: "sock-1"}
			if reject {
				reply = &protocol.AuthError{Message: "bad credentials"}
			}
			data, _ := protocol.MarshalServer(reply)
			_ = conn.WriteMessage(websocket.TextMessage, data)
			_ = n
		}
	}
}

func (fs *fakeServer) auths() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.authCount
}

// closeConns sends a close frame on every accepted connection, simulating a
// server-initiated disconnect.
func (fs *fakeServer) closeConns() {
	fs.mu.Lock()
	conns := fs.conns
	fs.conns = nil
	fs.mu.Unlock()
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"), time.Now().Add(time.Second))
		_ = c.Close()
	}
}

func (fs *fakeServer) push(t *testing.T, msg protocol.ServerMessage) {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.conns) == 0 {
		t.Fatal("no server connection to push on")
	}
	data, _ := protocol.MarshalServer(msg)
	if err := fs.conns[len(fs.conns)-1].WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig(url string) Config {
	return Config{
		URL:                  url,
		Identity:             protocol.User{ID: "u1", Username: "alice"},
		HandshakeTimeout:     2 * time.Second,
		ReconnectDelay:       20 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}
}

func TestConnectHandshakeAndDispatch(t *testing.T) {
	fs := newFakeServer(t)
	d := dispatch.New()
	m := NewManager(testConfig(fs.url()), d)
	defer m.Disconnect()

	var mu sync.Mutex
	var synced string
	d.On(protocol.EventCodeSync, func(msg any) {
		mu.Lock()
		synced = msg.(*protocol.CodeSync).Code
		mu.Unlock()
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if m.Status() != StatusConnected {
		t.Fatalf("expected connected, got %v", m.Status())
	}
	if m.SocketID() != "sock-1" {
		t.Fatalf("expected socket id from handshake, got %q", m.SocketID())
	}
	if fs.auths() != 1 {
		t.Fatalf("expected 1 authenticate, got %d", fs.auths())
	}

	fs.push(t, &protocol.CodeSync{Code: "x=1"})
	waitFor(t, "code-sync delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return synced == "x=1"
	})
}

func TestAuthRejectionIsTerminal(t *testing.T) {
	fs := newFakeServer(t)
	fs.rejectAuth = true

	d := dispatch.New()
	var mu sync.Mutex
	var authErrs int
	d.On(protocol.EventAuthError, func(msg any) {
		mu.Lock()
		authErrs++
		mu.Unlock()
	})

	m := NewManager(testConfig(fs.url()), d)
	defer m.Disconnect()

	err := m.Connect(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if m.Status() != StatusAuthError {
		t.Fatalf("expected auth-error status, got %v", m.Status())
	}

	// No automatic retry: the authenticate count must stay at 1.
	time.Sleep(100 * time.Millisecond)
	if fs.auths() != 1 {
		t.Fatalf("auth was retried: %d attempts", fs.auths())
	}
	mu.Lock()
	defer mu.Unlock()
	if authErrs != 1 {
		t.Fatalf("expected 1 auth-error event, got %d", authErrs)
	}
}

func TestServerCloseTriggersImmediateReconnect(t *testing.T) {
	fs := newFakeServer(t)
	d := dispatch.New()

	var mu sync.Mutex
	var reconnects []int
	d.On(protocol.EventReconnect, func(msg any) {
		mu.Lock()
		reconnects = append(reconnects, msg.(*protocol.Reconnected).Attempt)
		mu.Unlock()
	})

	m := NewManager(testConfig(fs.url()), d)
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	fs.closeConns()

	waitFor(t, "reconnect", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reconnects) == 1
	})
	waitFor(t, "re-authentication", func() bool { return fs.auths() == 2 })

	if m.Status() != StatusConnected {
		t.Fatalf("expected connected after reconnect, got %v", m.Status())
	}
	mu.Lock()
	defer mu.Unlock()
	if reconnects[0] != 1 {
		t.Fatalf("expected attempt number 1, got %d", reconnects[0])
	}
}

func TestReconnectExhaustionIsTerminal(t *testing.T) {
	fs := newFakeServer(t)
	d := dispatch.New()

	var mu sync.Mutex
	var connectErrs, failed int
	d.On(protocol.EventConnectError, func(msg any) {
		mu.Lock()
		connectErrs++
		mu.Unlock()
	})
	d.On(protocol.EventReconnectFailed, func(msg any) {
		mu.Lock()
		failed++
		mu.Unlock()
	})

	cfg := testConfig(fs.url())
	m := NewManager(cfg, d)
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Kill the endpoint entirely so every retry fails to dial. Close skips
	// hijacked connections, so the live websockets are severed explicitly.
	fs.srv.Close()
	fs.closeConns()

	waitFor(t, "terminal reconnect failure", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failed == 1
	})

	mu.Lock()
	gotErrs := connectErrs
	mu.Unlock()
	if gotErrs != cfg.MaxReconnectAttempts {
		t.Fatalf("expected %d connect_error events, got %d", cfg.MaxReconnectAttempts, gotErrs)
	}
	if m.Status() != StatusReconnectFailed {
		t.Fatalf("expected reconnect-failed, got %v", m.Status())
	}

	// No further attempts are scheduled.
	time.Sleep(5 * cfg.ReconnectDelay)
	mu.Lock()
	defer mu.Unlock()
	if connectErrs != gotErrs {
		t.Fatalf("reconnect attempts continued past the ceiling: %d", connectErrs)
	}
}

func TestDisconnectIdempotentAndCancelsReconnect(t *testing.T) {
	fs := newFakeServer(t)
	d := dispatch.New()

	var mu sync.Mutex
	var connectErrs int
	d.On(protocol.EventConnectError, func(msg any) {
		mu.Lock()
		connectErrs++
		mu.Unlock()
	})

	m := NewManager(testConfig(fs.url()), d)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	m.Disconnect()
	m.Disconnect()
	m.Disconnect()

	if m.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected, got %v", m.Status())
	}
	if err := m.Send(protocol.ChatSend{SessionID: "s", Message: "hi"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after disconnect, got %v", err)
	}

	// A deliberate disconnect must not kick off the retry loop.
	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if connectErrs != 0 {
		t.Fatalf("unexpected reconnect attempts after Disconnect: %d", connectErrs)
	}
}

func TestDisconnectDuringReconnectDialStaysDown(t *testing.T) {
	fs := newFakeServer(t)
	d := dispatch.New()

	// The second dial (the reconnect) parks on the gate so Disconnect can
	// land while it is in flight.
	gate := make(chan struct{})
	var dials int32
	cfg := testConfig(fs.url())
	cfg.Dialer = &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if atomic.AddInt32(&dials, 1) > 1 {
				<-gate
			}
			return (&net.Dialer{}).DialContext(ctx, network, addr)
		},
	}
	m := NewManager(cfg, d)
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	fs.closeConns()
	waitFor(t, "reconnect dial in flight", func() bool { return atomic.LoadInt32(&dials) == 2 })

	m.Disconnect()
	close(gate)

	// The completed dial must not resurrect the connection.
	time.Sleep(100 * time.Millisecond)
	if m.Status() != StatusDisconnected {
		t.Fatalf("connection resurrected after disconnect: status = %v", m.Status())
	}
	if fs.auths() != 1 {
		t.Fatalf("re-authenticated after disconnect: %d auths", fs.auths())
	}
}

func TestSendRequiresConnection(t *testing.T) {
	m := NewManager(testConfig("ws://127.0.0.1:0"), dispatch.New())
	if err := m.Send(protocol.ChatSend{Message: "hi"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestStatusString(t *testing.T) {
	pairs := map[Status]string{
		StatusIdle:            "idle",
		StatusConnecting:      "connecting",
		StatusConnected:       "connected",
		StatusDisconnected:    "disconnected",
		StatusAuthError:       "auth-error",
		StatusReconnectFailed: "reconnect-failed",
		StatusError:           "error",
		Status(99):            "unknown",
	}
	for s, want := range pairs {
		if s.String() != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
	if !StatusAuthError.Terminal() || !StatusReconnectFailed.Terminal() || StatusConnected.Terminal() {
		t.Error("Terminal() misclassifies statuses")
	}
}
