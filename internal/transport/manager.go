// Package transport owns the single realtime connection per authenticated
// identity: dialing, the authenticate handshake, bounded reconnection, and
// decoding inbound frames into protocol messages published on the dispatcher.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Harris-py/codecollab-go/internal/dispatch"
	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrAuthFailed   = errors.New("transport: authentication rejected")
	ErrHandshake    = errors.New("transport: handshake failed")
)

const (
	defaultHandshakeTimeout = 20 * time.Second
	defaultReconnectDelay   = 2 * time.Second
	defaultMaxReconnects    = 5
)

// Config parameterizes a Manager. URL is the websocket endpoint; Identity is
// re-sent as the authenticate handshake on every successful connect.
type Config struct {
	URL      string
	Identity protocol.User

	HandshakeTimeout     time.Duration // default 20s
	ReconnectDelay       time.Duration // fixed delay between attempts, default 2s
	MaxReconnectAttempts int           // hard ceiling, default 5

	Dialer *websocket.Dialer
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnects
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

// Manager maintains one connection and its lifecycle. All inbound messages
// and connection lifecycle transitions are published on the dispatcher; state
// mutation in subscribers happens on the read-loop goroutine.
type Manager struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher

	mu       sync.Mutex
	conn     *wsConn
	status   Status
	socketID string
	closed   bool
	gen      int // connection generation; stale read loops exit silently
	stop     chan struct{}
}

func NewManager(cfg Config, d *dispatch.Dispatcher) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:        cfg,
		dispatcher: d,
		status:     StatusIdle,
		stop:       make(chan struct{}),
	}
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SocketID returns the connection id assigned by the server during the last
// successful handshake, or "" when never connected.
func (m *Manager) SocketID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.socketID
}

// Connect dials the endpoint and performs the authenticate handshake. On
// auth rejection it returns ErrAuthFailed and does not retry.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusConnected {
		m.mu.Unlock()
		return nil
	}
	m.closed = false
	m.stop = make(chan struct{})
	m.status = StatusConnecting
	m.mu.Unlock()

	if err := m.dialAndAuth(ctx); err != nil {
		return err
	}
	m.dispatcher.Emit(protocol.EventConnect, &protocol.Connected{})
	return nil
}

// dialAndAuth performs one dial + handshake and, on success, installs the
// connection and starts its read loop.
func (m *Manager) dialAndAuth(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()

	c, _, err := m.cfg.Dialer.DialContext(dialCtx, m.cfg.URL, nil)
	if err != nil {
		m.setStatus(StatusDisconnected)
		return fmt.Errorf("transport: dial %s: %w", m.cfg.URL, err)
	}
	m.mu.Lock()
	if m.closed {
		// Disconnect landed while the dial was in flight; do not even
		// start the handshake.
		m.mu.Unlock()
		_ = c.Close()
		return ErrNotConnected
	}
	m.mu.Unlock()
	conn := newWSConn(c)

	auth := protocol.Authenticate{
		ID:       m.cfg.Identity.ID,
		Username: m.cfg.Identity.Username,
		Profile:  m.cfg.Identity.Profile,
	}
	data, err := protocol.Marshal(auth)
	if err != nil {
		conn.Close()
		m.setStatus(StatusError)
		return err
	}
	if err := conn.Send(data); err != nil {
		conn.Close()
		m.setStatus(StatusDisconnected)
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	// The first inbound frame must resolve the handshake.
	_ = c.SetReadDeadline(time.Now().Add(m.cfg.HandshakeTimeout))
	raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		m.setStatus(StatusDisconnected)
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	_ = c.SetReadDeadline(time.Now().Add(readIdle))

	msg, err := protocol.DecodeServer(raw)
	if err != nil {
		conn.Close()
		m.setStatus(StatusError)
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	switch hs := msg.(type) {
	case *protocol.AuthSuccess:
		m.mu.Lock()
		if m.closed {
			// Disconnect landed while the dial was in flight; the teardown
			// wins and the fresh connection is discarded.
			m.mu.Unlock()
			conn.Close()
			return ErrNotConnected
		}
		m.conn = conn
		m.socketID = hs.SocketID
		m.status = StatusConnected
		m.gen++
		gen := m.gen
		m.mu.Unlock()
		go m.readLoop(gen, conn)
		return nil
	case *protocol.AuthError:
		conn.Close()
		m.setStatus(StatusAuthError)
		m.dispatcher.Emit(protocol.EventAuthError, hs)
		return fmt.Errorf("%w: %s", ErrAuthFailed, hs.Message)
	default:
		conn.Close()
		m.setStatus(StatusError)
		return fmt.Errorf("%w: unexpected first message %q", ErrHandshake, msg.Event())
	}
}

// Send encodes and transmits an outbound message.
func (m *Manager) Send(msg protocol.ClientMessage) error {
	m.mu.Lock()
	conn, status := m.conn, m.status
	m.mu.Unlock()
	if status != StatusConnected || conn == nil {
		return ErrNotConnected
	}
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Send(data)
}

// Disconnect tears the connection down and cancels any pending reconnect.
// Idempotent; always safe to call multiple times.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.stop)
	conn := m.conn
	m.conn = nil
	m.status = StatusDisconnected
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (m *Manager) readLoop(gen int, conn *wsConn) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(gen, conn, err)
			return
		}
		msg, derr := protocol.DecodeServer(raw)
		if derr != nil {
			log.Printf("transport: dropping frame: %v", derr)
			continue
		}
		if ae, ok := msg.(*protocol.AuthError); ok {
			// Mid-stream auth revocation: terminal, no retry.
			m.mu.Lock()
			stale := gen != m.gen || m.closed
			if !stale {
				m.status = StatusAuthError
				m.conn = nil
			}
			m.mu.Unlock()
			conn.Close()
			if !stale {
				m.dispatcher.Emit(protocol.EventAuthError, ae)
			}
			return
		}
		m.dispatcher.Emit(msg.Event(), msg)
	}
}

func (m *Manager) handleReadError(gen int, conn *wsConn, err error) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		// Deliberate teardown or superseded connection.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.status = StatusDisconnected
	m.mu.Unlock()
	conn.Close()

	reason := "transport close"
	// A close frame means the server hung up on purpose; the transport layer
	// schedules no retry of its own, so reconnect immediately.
	immediate := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	if immediate {
		reason = "server disconnect"
	}
	m.dispatcher.Emit(protocol.EventDisconnect, &protocol.Disconnected{Reason: reason})
	go m.reconnectLoop(immediate)
}

// reconnectLoop retries the dial+handshake with a fixed delay up to the
// attempt ceiling, then surfaces the terminal reconnect_failed state.
func (m *Manager) reconnectLoop(immediate bool) {
	for attempt := 1; attempt <= m.cfg.MaxReconnectAttempts; attempt++ {
		if !(immediate && attempt == 1) {
			select {
			case <-m.stop:
				return
			case <-time.After(m.cfg.ReconnectDelay):
			}
		}
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}

		err := m.dialAndAuth(context.Background())
		if err == nil {
			m.dispatcher.Emit(protocol.EventReconnect, &protocol.Reconnected{Attempt: attempt})
			m.dispatcher.Emit(protocol.EventConnect, &protocol.Connected{})
			return
		}
		if errors.Is(err, ErrAuthFailed) {
			// Already surfaced as auth-error; never retried automatically.
			return
		}
		m.mu.Lock()
		closed = m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		log.Printf("transport: reconnect attempt %d/%d failed: %v", attempt, m.cfg.MaxReconnectAttempts, err)
		m.dispatcher.Emit(protocol.EventConnectError, &protocol.ConnectFailed{Message: err.Error()})
	}

	m.setStatus(StatusReconnectFailed)
	m.dispatcher.Emit(protocol.EventReconnectFailed, &protocol.ReconnectFailed{})
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}
