package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWriteTimeout bounds a single websocket write.
const DefaultWriteTimeout = 10 * time.Second

// WSTransport serializes JSON writes to a websocket connection. Reads stay
// with the connection owner.
type WSTransport struct {
	conn         *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

// NewWSTransport wraps conn. A zero writeTimeout uses DefaultWriteTimeout.
func NewWSTransport(conn *websocket.Conn, writeTimeout time.Duration) *WSTransport {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &WSTransport{conn: conn, writeTimeout: writeTimeout}
}

// Send writes v as a JSON text message.
func (t *WSTransport) Send(v interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteJSON(v)
}

// Ping writes a ping control frame.
func (t *WSTransport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}
