package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readLimit    = 4 * 1024 * 1024 // 4 MB
	readIdle     = 60 * time.Second
	pingInterval = 15 * time.Second
	writeTimeout = 10 * time.Second
)

// wsConn wraps a *websocket.Conn with mutex-guarded writes and structured
// message reading/writing.
type wsConn struct {
	c      *websocket.Conn
	mu     sync.Mutex // guards writes
	closed bool
	done   chan struct{}
}

func newWSConn(c *websocket.Conn) *wsConn {
	c.SetReadLimit(readLimit)
	_ = c.SetReadDeadline(time.Now().Add(readIdle))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readIdle))
	})
	wc := &wsConn{c: c, done: make(chan struct{})}
	go wc.pingLoop()
	return wc
}

// ReadMessage reads the next frame, refreshing the idle deadline.
func (wc *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := wc.c.ReadMessage()
	if err == nil {
		_ = wc.c.SetReadDeadline(time.Now().Add(readIdle))
	}
	return data, err
}

// Send writes data as a WebSocket text message.
func (wc *wsConn) Send(data []byte) error {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if wc.closed {
		return fmt.Errorf("ws connection closed")
	}
	_ = wc.c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return wc.c.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying WebSocket connection. Safe to call repeatedly.
func (wc *wsConn) Close() {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if !wc.closed {
		wc.closed = true
		close(wc.done)
		_ = wc.c.Close()
	}
}

func (wc *wsConn) pingLoop() {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-wc.done:
			return
		case <-t.C:
			wc.mu.Lock()
			if wc.closed {
				wc.mu.Unlock()
				return
			}
			_ = wc.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			wc.mu.Unlock()
		}
	}
}
