package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one WebSocket connection owned by the hub. Reads and writes
// run on dedicated goroutines; the hub talks to the write loop through
// the buffered send channel only.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	id       string
	identity Identity
	logger   *slog.Logger

	send chan []byte
	done chan struct{}

	// rooms this client is a member of, guarded by hub.mu.
	rooms map[string]struct{}

	closeOnce sync.Once
}

// newClient wraps an upgraded connection.
func newClient(h *Hub, conn *websocket.Conn, identity Identity) *Client {
	return &Client{
		hub:      h,
		conn:     conn,
		id:       uuid.NewString(),
		identity: identity,
		logger: slog.Default().With(
			"component", "hub.client",
			"user_id", identity.UserID),
		send:  make(chan []byte, h.config.SendQueueSize),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
}

// run registers the client and starts the pumps. Blocks until the read
// loop exits so the HTTP handler keeps the connection alive.
func (c *Client) run() {
	c.hub.register(c)
	go c.writeLoop()
	c.readLoop()
}

// readLoop pulls frames off the wire and hands them to the hub. The read
// deadline is pushed forward by any traffic, pongs included.
func (c *Client) readLoop() {
	defer c.close()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.ClosePolicyViolation) {
				c.logger.Warn("read error", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		c.hub.handleMessage(c, data)
	}
}

// writeLoop drains the send queue and keeps the connection alive with
// periodic pings.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.hub.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write error", "error", err)
				c.close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			return
		}
	}
}

// enqueue hands a frame to the write loop without blocking. A full queue
// means the client cannot keep up; it is disconnected.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("send queue full, disconnecting")
		go c.close()
		return false
	}
}

// close tears the connection down exactly once and unregisters from
// the hub.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		c.hub.unregister(c)
	})
}

// closeWithCode sends a close frame before tearing down. Used for auth
// failures and displaced connections.
func (c *Client) closeWithCode(code int, reason string) {
	// WriteControl is safe alongside the write loop.
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(c.hub.config.WriteTimeout))
	c.close()
}

// closeNormal performs an orderly shutdown close.
func (c *Client) closeNormal(reason string) {
	c.closeWithCode(websocket.CloseNormalClosure, reason)
}
