package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sceneflow-dev/sceneflow/pkg/protocol"
)

// Client is one participant's connection to a collaboration session.
type Client struct {
	config *Config
	logger *slog.Logger
	router *router
	locks  *LockClient

	dispatch chan *protocol.Message

	mu           sync.Mutex
	state        State
	conn         *websocket.Conn
	connDone     chan struct{}
	rooms        map[string]struct{}
	lastErr      error
	closedByUser bool

	// writeMu serializes frames onto the wire; gorilla connections
	// support one concurrent writer.
	writeMu sync.Mutex

	session      *protocol.SessionState
	presence     map[string]map[int64]protocol.PresenceEntry
	remoteTyping map[string]map[int64]string
	cursors      map[string]map[int64]protocol.CursorState
	localTyping  map[string]*time.Timer

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a client. Connect must be called before any traffic flows.
func New(config *Config) *Client {
	config = config.withDefaults()

	c := &Client{
		config:       config,
		logger:       slog.Default().With("component", "client"),
		router:       newRouter(),
		dispatch:     make(chan *protocol.Message, 256),
		state:        State{Phase: PhaseIdle},
		rooms:        make(map[string]struct{}),
		presence:     make(map[string]map[int64]protocol.PresenceEntry),
		remoteTyping: make(map[string]map[int64]string),
		cursors:      make(map[string]map[int64]protocol.CursorState),
		localTyping:  make(map[string]*time.Timer),
		closed:       make(chan struct{}),
	}
	c.locks = newLockClient(config)

	go c.dispatchLoop()
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that ended the last connection attempt, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Session returns the last session snapshot received from the hub.
func (c *Client) Session() *protocol.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	cp := *c.session
	return &cp
}

// Locks returns the lock API client.
func (c *Client) Locks() *LockClient {
	return c.locks
}

// Connect dials the hub and waits for the connect acknowledgment. Only
// valid from the idle or exhausted states. Once open, the connection
// re-establishes itself after transient failures; authentication
// rejections and intentional closes are final.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state.Phase {
	case PhaseIdle, PhaseExhausted:
	case PhaseClosed:
		c.mu.Unlock()
		return ErrClosed
	default:
		c.mu.Unlock()
		return fmt.Errorf("client: connect from state %s", c.state)
	}
	c.setStateLocked(State{Phase: PhaseConnecting})
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		var authErr *AuthError
		if errors.As(err, &authErr) {
			c.setStateLocked(State{Phase: PhaseClosed})
		} else {
			c.setStateLocked(State{Phase: PhaseIdle})
		}
		c.mu.Unlock()
		return err
	}

	c.adopt(conn)
	return nil
}

// dial performs one connection attempt including the connect handshake.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return nil, &NetworkError{Op: "parse url", Err: err}
	}
	q := u.Query()
	q.Set("token", c.config.Token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: c.config.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, &NetworkError{Op: "dial", Err: err}
	}

	// The hub's first frame is either the connect acknowledgment with
	// the session snapshot, or a close frame rejecting the token.
	_ = conn.SetReadDeadline(time.Now().Add(c.config.DialTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && protocol.IsAuthClose(closeErr.Code) {
			return nil, &AuthError{Code: closeErr.Code, Reason: closeErr.Text}
		}
		return nil, &NetworkError{Op: "handshake", Err: err}
	}

	m, err := protocol.DecodeMessage(data)
	if err != nil || m.Type != protocol.EventConnect {
		_ = conn.Close()
		return nil, &NetworkError{Op: "handshake", Err: fmt.Errorf("unexpected first frame")}
	}
	_ = conn.SetReadDeadline(time.Time{})

	// Apply the snapshot before Connect returns so callers can read the
	// session immediately; handlers still see the event in order.
	c.apply(m)
	c.enqueueDispatch(m)
	return conn, nil
}

// adopt installs a live connection and starts its goroutines.
func (c *Client) adopt(conn *websocket.Conn) {
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.connDone = done
	c.lastErr = nil
	c.setStateLocked(State{Phase: PhaseOpen})
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	go c.readLoop(conn, done)
	go c.heartbeatLoop(conn, done)

	// Rejoin previously joined rooms; the hub answers with fresh
	// snapshots that replace the local caches.
	for _, room := range rooms {
		_ = c.send(protocol.EventJoinRoom, &protocol.RoomRef{Room: room}, room)
	}
}

// readLoop pulls frames until the connection dies, then decides whether
// to reconnect.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	var readErr error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		m, err := protocol.DecodeMessage(data)
		if err != nil {
			c.logger.Warn("bad frame from hub", "error", err)
			continue
		}
		c.enqueueDispatch(m)
	}

	close(done)
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	closedByUser := c.closedByUser
	c.mu.Unlock()

	if closedByUser {
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(readErr, &closeErr) {
		if protocol.IsAuthClose(closeErr.Code) {
			c.fail(&AuthError{Code: closeErr.Code, Reason: closeErr.Text})
			return
		}
		if protocol.IsIntentionalClose(closeErr.Code) {
			c.mu.Lock()
			c.setStateLocked(State{Phase: PhaseIdle})
			c.mu.Unlock()
			c.logger.Info("connection closed by hub", "code", closeErr.Code)
			return
		}
	}

	c.logger.Warn("connection lost, reconnecting", "error", readErr)
	go c.reconnectLoop()
}

// reconnectLoop retries with exponential backoff until the hub answers
// or the attempt budget is spent.
func (c *Client) reconnectLoop() {
	for attempt := 0; attempt < c.config.MaxReconnectAttempts; attempt++ {
		c.mu.Lock()
		if c.closedByUser {
			c.mu.Unlock()
			return
		}
		c.setStateLocked(State{Phase: PhaseReconnecting, Attempt: attempt + 1})
		c.mu.Unlock()

		select {
		case <-time.After(c.nextDelay(attempt)):
		case <-c.closed:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.config.DialTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if err == nil {
			c.logger.Info("reconnected", "attempt", attempt+1)
			c.adopt(conn)
			return
		}

		var authErr *AuthError
		if errors.As(err, &authErr) {
			c.fail(err)
			return
		}
		c.logger.Warn("reconnect attempt failed", "attempt", attempt+1, "error", err)
	}

	c.fail(ErrConnectionExhausted)
}

// nextDelay computes the backoff before the given zero-based attempt.
func (c *Client) nextDelay(attempt int) time.Duration {
	return c.config.ReconnectBase << uint(attempt)
}

// fail records a terminal connection error.
func (c *Client) fail(err error) {
	c.mu.Lock()
	c.lastErr = err
	if errors.Is(err, ErrConnectionExhausted) {
		c.setStateLocked(State{Phase: PhaseExhausted})
	} else {
		c.setStateLocked(State{Phase: PhaseClosed})
	}
	c.mu.Unlock()
	c.logger.Error("connection failed", "error", err)
}

// heartbeatLoop sends protocol pings while the connection lives.
func (c *Client) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.send(protocol.EventPing, &protocol.PingPong{
				Timestamp: time.Now().UnixMilli(),
			}, "")
		case <-done:
			return
		case <-c.closed:
			return
		}
	}
}

// send encodes and writes one frame. A missing connection is not an
// application error for fire-and-forget traffic; callers that care get
// ErrNotConnected.
func (c *Client) send(t protocol.EventType, payload any, room string) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state.Phase == PhaseOpen
	c.mu.Unlock()

	if conn == nil || !open {
		c.logger.Debug("send skipped, not connected", "type", t)
		return ErrNotConnected
	}

	m, err := protocol.NewMessage(t, payload)
	if err != nil {
		return err
	}
	m.Room = room
	data, err := m.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &NetworkError{Op: "write", Err: err}
	}
	return nil
}

// Disconnect closes the connection for good. Idempotent. No reconnect
// follows.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closedByUser = true
		conn := c.conn
		c.conn = nil
		for _, timer := range c.localTyping {
			timer.Stop()
		}
		c.setStateLocked(State{Phase: PhaseClosed})
		c.mu.Unlock()

		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
			c.writeMu.Unlock()
			_ = conn.Close()
		}
		close(c.closed)
	})
}

// setStateLocked transitions state and notifies. Caller holds c.mu.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.config.OnStateChange != nil {
		go c.config.OnStateChange(s)
	}
}

// enqueueDispatch hands a message to the dispatch goroutine.
func (c *Client) enqueueDispatch(m *protocol.Message) {
	select {
	case c.dispatch <- m:
	case <-c.closed:
	}
}

// dispatchLoop serializes cache updates and handler invocations.
func (c *Client) dispatchLoop() {
	for {
		select {
		case m := <-c.dispatch:
			c.apply(m)
			c.router.dispatch(c.logger, m)
		case <-c.closed:
			return
		}
	}
}

// On registers a handler for an event type; protocol.EventAny matches
// every event. Handlers for the concrete type run before wildcard
// handlers, in registration order. The returned function unsubscribes.
func (c *Client) On(t protocol.EventType, fn Handler) func() {
	return c.router.on(t, fn)
}

// Send transmits an arbitrary client event. Fire and forget; returns
// ErrNotConnected when there is no live connection.
func (c *Client) Send(t protocol.EventType, payload any, room string) error {
	return c.send(t, payload, room)
}
