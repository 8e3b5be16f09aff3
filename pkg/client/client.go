// Package client is the public entry point of the CodeCollab SDK. A Client
// owns one realtime connection for an authenticated identity; a
// SessionClient composes the per-session state (roster, document, presence,
// execution, chat) on top of it.
//
// Clients are explicitly constructed and torn down; there is no package
// level singleton.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/Harris-py/codecollab-go/internal/dispatch"
	"github.com/Harris-py/codecollab-go/internal/transport"
	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

const (
	defaultCodeDebounce   = 300 * time.Millisecond
	defaultCursorThrottle = 50 * time.Millisecond
)

// Config parameterizes a Client.
type Config struct {
	// URL is the realtime websocket endpoint.
	URL string
	// Identity is sent as the authenticate handshake on every connect.
	Identity protocol.User

	HandshakeTimeout     time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// CodeDebounce bounds the outbound code-change rate. Default 300ms.
	CodeDebounce time.Duration
	// CursorThrottle bounds the outbound cursor-position rate. Default 50ms.
	CursorThrottle time.Duration
	// TypingTTL is how long a peer's typing flag survives without refresh.
	TypingTTL time.Duration
}

// Client owns the connection and the at-most-one active session.
type Client struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	transport  *transport.Manager

	mu     sync.Mutex
	active *SessionClient
}

// New constructs a Client. Call Connect before joining sessions and
// Disconnect at logout.
func New(cfg Config) *Client {
	if cfg.CodeDebounce <= 0 {
		cfg.CodeDebounce = defaultCodeDebounce
	}
	if cfg.CursorThrottle <= 0 {
		cfg.CursorThrottle = defaultCursorThrottle
	}

	d := dispatch.New()
	return &Client{
		cfg:        cfg,
		dispatcher: d,
		transport: transport.NewManager(transport.Config{
			URL:                  cfg.URL,
			Identity:             cfg.Identity,
			HandshakeTimeout:     cfg.HandshakeTimeout,
			ReconnectDelay:       cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		}, d),
	}
}

// Connect establishes the connection and performs the authenticate
// handshake.
func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Disconnect closes the active session, tears down the connection, and
// cancels all timers. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.mu.Unlock()

	if active != nil {
		active.Close()
	}
	c.transport.Disconnect()
}

// Status returns the connection status.
func (c *Client) Status() transport.Status {
	return c.transport.Status()
}

// SocketID returns the server-assigned connection id, or "".
func (c *Client) SocketID() string {
	return c.transport.SocketID()
}

// On subscribes to a raw event by wire name and returns the unsubscribe
// function. Most consumers should use SessionClient accessors instead; On
// exists for connection lifecycle events (connect, disconnect, reconnect,
// reconnect_failed) and custom integrations.
func (c *Client) On(event string, fn func(msg any)) func() {
	return c.dispatcher.On(event, fn)
}

// Session binds a SessionClient for the given session id. A prior active
// session is left first; one session is active per connection at a time.
func (c *Client) Session(sessionID string) *SessionClient {
	c.mu.Lock()
	prior := c.active
	c.mu.Unlock()
	if prior != nil {
		prior.Close()
	}

	sc := newSessionClient(c, sessionID)

	c.mu.Lock()
	c.active = sc
	c.mu.Unlock()
	return sc
}

// releaseSession clears the active slot when a session closes itself.
func (c *Client) releaseSession(sc *SessionClient) {
	c.mu.Lock()
	if c.active == sc {
		c.active = nil
	}
	c.mu.Unlock()
}
