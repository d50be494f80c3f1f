package ws

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

// Connection is one established websocket to the chat server together with a
// write mutex for serializing outbound frames.
type Connection struct {
	ID        string    // client-side connection id (UUID), for logs
	Conn      net.Conn  // underlying network connection
	CreatedAt time.Time // when the handshake completed
	writeMu   sync.Mutex
}

func newConnection(conn net.Conn, br *bufio.Reader) *Connection {
	if br != nil {
		// The server sent frames right behind the handshake response; they
		// sit in br and must be consumed before the raw conn.
		conn = &bufferedConn{Conn: conn, r: br}
	}
	return &Connection{
		ID:        uuid.New().String(),
		Conn:      conn,
		CreatedAt: time.Now(),
	}
}

// WriteMessage sends a masked text frame. Concurrent callers do not
// interleave frame bytes.
func (c *Connection) WriteMessage(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(timeout))
		defer c.Conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteClientMessage(c.Conn, ws.OpText, data)
}

// ReadMessage blocks until the next text frame arrives. Control frames are
// answered internally.
func (c *Connection) ReadMessage() ([]byte, error) {
	return wsutil.ReadServerText(c.Conn)
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.r.Read(p)
}
