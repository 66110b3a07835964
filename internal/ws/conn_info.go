package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type ConnInfo struct {
	ConnID      string
	Kind        string
	ResourceID  string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

const writeWait = 10 * time.Second

// Client serializes writes to one websocket connection.
type Client struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

// WriteJSON sends one frame.
func (c *Client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return websocket.ErrCloseSent
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Close sends a close frame with code and closes the connection once.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		if c.conn == nil {
			return
		}
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}
