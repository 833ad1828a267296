package hub

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sceneflow-dev/sceneflow/pkg/lock"
	"github.com/sceneflow-dev/sceneflow/pkg/protocol"
)

// GlobalRoom is the room every connection joins implicitly. Global
// presence and lock notifications travel through it.
const GlobalRoom = "global"

// Hub coordinates one collaboration session: connections, rooms, presence,
// typing state, and the lock table. All shared maps are guarded by a
// single mutex; fan-out happens outside it through per-client queues.
type Hub struct {
	config  *Config
	locks   *lock.Service
	logger  *slog.Logger
	metrics *metrics

	mu       sync.Mutex
	clients  map[int64]*Client
	rooms    map[string]map[int64]*Client
	presence map[string]map[int64]*protocol.PresenceEntry
	typing   map[string]map[int64]string
}

// New creates a hub with the given configuration.
func New(config *Config) *Hub {
	config = config.withDefaults()

	h := &Hub{
		config:   config,
		locks:    lock.NewService(slog.Default()),
		logger:   slog.Default().With("component", "hub"),
		metrics:  newMetrics(config.Registry),
		clients:  make(map[int64]*Client),
		rooms:    make(map[string]map[int64]*Client),
		presence: make(map[string]map[int64]*protocol.PresenceEntry),
		typing:   make(map[string]map[int64]string),
	}

	// Lazily evicted locks are announced so queued requesters learn the
	// resource is free without a background sweep.
	h.locks.OnExpire(func(l lock.Lock) {
		h.broadcastEvent(GlobalRoom, protocol.EventLockExpired, &protocol.LockEvent{Lock: l}, 0)
		h.metrics.locksActive.Set(float64(h.locks.Count()))
	})

	return h
}

// Locks exposes the lock service to the REST layer.
func (h *Hub) Locks() *lock.Service {
	return h.locks
}

// register adds a freshly upgraded connection. A user reconnecting while
// an old connection lingers displaces it: last connection wins.
func (h *Hub) register(c *Client) {
	var displaced *Client

	h.mu.Lock()
	if old, ok := h.clients[c.identity.UserID]; ok {
		displaced = old
	}
	h.clients[c.identity.UserID] = c
	h.joinRoomLocked(c, GlobalRoom)
	h.mu.Unlock()

	if displaced != nil {
		// Policy close, not an auth failure: the token is fine, the
		// session just moved. Clients treat 1008 as final and do not
		// burn reconnect attempts racing the new connection.
		displaced.closeWithCode(websocket.ClosePolicyViolation, "superseded by new connection")
	}

	h.metrics.connectionsActive.Inc()
	h.metrics.connectionsTotal.Inc()

	// The connect acknowledgment carries the full session snapshot; the
	// client resolves its connect() call on receipt.
	h.sendEvent(c, protocol.EventConnect, h.sessionState(c))

	h.broadcastEvent(GlobalRoom, protocol.EventPresenceUpdate, &protocol.PresenceUpdate{
		Room:   GlobalRoom,
		Action: protocol.PresenceJoined,
		Entry:  *h.presenceEntry(GlobalRoom, c.identity.UserID),
	}, c.identity.UserID)

	h.logger.Info("client connected",
		"user_id", c.identity.UserID,
		"conn_id", c.id,
		"name", c.identity.Name)
}

// unregister tears down a departed connection: rooms are left, typing
// state cleared, and auto-unlock locks released with notifications.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.identity.UserID]
	if !ok || current != c {
		// A newer connection for this user took over. Scrub only the
		// room slots still pointing at this connection so the new one's
		// memberships survive.
		for room := range c.rooms {
			if members, ok := h.rooms[room]; ok && members[c.identity.UserID] == c {
				h.leaveRoomLocked(c, room)
			}
		}
		h.mu.Unlock()
		h.metrics.connectionsActive.Dec()
		return
	}
	delete(h.clients, c.identity.UserID)

	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		h.leaveRoomLocked(c, room)
	}
	h.mu.Unlock()

	for _, room := range rooms {
		h.broadcastLeft(room, c)
	}

	// Session teardown consults auto_unlock for every held lock.
	for _, rel := range h.locks.ReleaseAllForUser(c.identity.UserID, true) {
		h.NotifyUnlocked(lock.Lock{
			ResourceID: rel.ResourceID,
			HolderID:   c.identity.UserID,
		}, rel.Notify)
	}
	h.metrics.locksActive.Set(float64(h.locks.Count()))
	h.metrics.connectionsActive.Dec()

	h.logger.Info("client disconnected", "user_id", c.identity.UserID, "conn_id", c.id)
}

// JoinRoom adds a client to a room, acknowledges with the roster, sends
// the presence snapshot, and announces the join to existing members.
func (h *Hub) JoinRoom(c *Client, room string) {
	if room == "" || room == GlobalRoom {
		return
	}

	h.mu.Lock()
	h.joinRoomLocked(c, room)
	roster := h.rosterLocked(room)
	if entry, ok := h.presence[GlobalRoom][c.identity.UserID]; ok {
		entry.CurrentScope = room
		entry.LastActiveAt = time.Now().UTC()
	}
	scoped := h.presence[GlobalRoom][c.identity.UserID]
	var scopedCopy *protocol.PresenceEntry
	if scoped != nil {
		cp := *scoped
		scopedCopy = &cp
	}
	h.mu.Unlock()

	h.sendEventRoom(c, room, protocol.EventRoomJoined, &protocol.RoomRoster{Room: room, Users: roster})
	h.sendEventRoom(c, room, protocol.EventPresenceFull, &protocol.PresenceFull{Room: room, Users: roster})

	h.broadcastEvent(room, protocol.EventPresenceUpdate, &protocol.PresenceUpdate{
		Room:   room,
		Action: protocol.PresenceJoined,
		Entry:  *h.presenceEntry(room, c.identity.UserID),
	}, c.identity.UserID)

	if scopedCopy != nil {
		h.broadcastEvent(GlobalRoom, protocol.EventPresenceUpdate, &protocol.PresenceUpdate{
			Room:   GlobalRoom,
			Action: protocol.PresenceScopeChanged,
			Entry:  *scopedCopy,
		}, c.identity.UserID)
	}

	h.logger.Debug("room joined", "user_id", c.identity.UserID, "room", room)
}

// LeaveRoom removes a client from a room and announces the departure.
// The global room cannot be left.
func (h *Hub) LeaveRoom(c *Client, room string) {
	if room == "" || room == GlobalRoom {
		return
	}

	h.mu.Lock()
	h.leaveRoomLocked(c, room)
	h.mu.Unlock()

	h.broadcastLeft(room, c)
	h.sendEventRoom(c, room, protocol.EventRoomLeft, &protocol.RoomRef{Room: room})

	h.logger.Debug("room left", "user_id", c.identity.UserID, "room", room)
}

// joinRoomLocked wires membership and presence. Caller holds h.mu.
func (h *Hub) joinRoomLocked(c *Client, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[int64]*Client)
		h.metrics.roomsActive.Inc()
	}
	h.rooms[room][c.identity.UserID] = c
	c.rooms[room] = struct{}{}

	if h.presence[room] == nil {
		h.presence[room] = make(map[int64]*protocol.PresenceEntry)
	}
	h.presence[room][c.identity.UserID] = &protocol.PresenceEntry{
		UserID:       c.identity.UserID,
		DisplayName:  c.identity.Name,
		Color:        c.identity.Color,
		Status:       protocol.StatusOnline,
		LastActiveAt: time.Now().UTC(),
		CurrentScope: room,
	}
}

// leaveRoomLocked unwires membership, presence, and typing state.
// Caller holds h.mu.
func (h *Hub) leaveRoomLocked(c *Client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c.identity.UserID)
		if len(members) == 0 {
			delete(h.rooms, room)
			h.metrics.roomsActive.Dec()
		}
	}
	if entries, ok := h.presence[room]; ok {
		delete(entries, c.identity.UserID)
		if len(entries) == 0 {
			delete(h.presence, room)
		}
	}
	if typers, ok := h.typing[room]; ok {
		delete(typers, c.identity.UserID)
		if len(typers) == 0 {
			delete(h.typing, room)
		}
	}
}

// broadcastLeft announces a departure to a room's remaining members.
// Receivers purge the user's cursor state on this event.
func (h *Hub) broadcastLeft(room string, c *Client) {
	h.broadcastEvent(room, protocol.EventPresenceUpdate, &protocol.PresenceUpdate{
		Room:   room,
		Action: protocol.PresenceLeft,
		Entry: protocol.PresenceEntry{
			UserID:      c.identity.UserID,
			DisplayName: c.identity.Name,
			Status:      protocol.StatusOffline,
		},
	}, c.identity.UserID)
}

// rosterLocked snapshots a room's presence entries. Caller holds h.mu.
func (h *Hub) rosterLocked(room string) []protocol.PresenceEntry {
	entries := h.presence[room]
	out := make([]protocol.PresenceEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	return out
}

// presenceEntry snapshots one user's entry in a room.
func (h *Hub) presenceEntry(room string, userID int64) *protocol.PresenceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.presence[room][userID]; ok {
		cp := *e
		return &cp
	}
	return &protocol.PresenceEntry{UserID: userID, Status: protocol.StatusOnline}
}

// sessionState builds the connect snapshot: global roster plus lock table.
func (h *Hub) sessionState(c *Client) *protocol.SessionState {
	h.mu.Lock()
	users := h.rosterLocked(GlobalRoom)
	h.mu.Unlock()

	return &protocol.SessionState{
		SessionID: c.id,
		Users:     users,
		Locks:     h.locks.All(),
	}
}

// handleMessage routes one inbound frame from a client.
func (h *Hub) handleMessage(c *Client, raw []byte) {
	m, err := protocol.DecodeMessage(raw)
	if err != nil {
		h.logger.Warn("bad frame", "user_id", c.identity.UserID, "error", err)
		h.sendError(c, "invalid_message", "invalid message format")
		return
	}
	m.SenderID = c.identity.UserID
	h.metrics.eventsTotal.WithLabelValues(string(m.Type)).Inc()

	switch m.Type {
	case protocol.EventPing:
		var pp protocol.PingPong
		_ = m.Bind(&pp)
		h.sendEvent(c, protocol.EventPong, &protocol.PingPong{Timestamp: pp.Timestamp})

	case protocol.EventJoinRoom:
		var ref protocol.RoomRef
		if err := m.Bind(&ref); err == nil && ref.Room != "" {
			h.JoinRoom(c, ref.Room)
		}

	case protocol.EventLeaveRoom:
		var ref protocol.RoomRef
		if err := m.Bind(&ref); err == nil && ref.Room != "" {
			h.LeaveRoom(c, ref.Room)
		}

	case protocol.EventTypingStart:
		if room := h.messageRoom(m); room != "" {
			h.setTyping(c, room, true)
		}

	case protocol.EventTypingStop:
		if room := h.messageRoom(m); room != "" {
			h.setTyping(c, room, false)
		}

	case protocol.EventCursor:
		var cs protocol.CursorState
		if err := m.Bind(&cs); err != nil || m.Room == "" {
			return
		}
		cs.UserID = c.identity.UserID
		cs.DisplayName = c.identity.Name
		cs.Color = c.identity.Color
		h.broadcastEvent(m.Room, protocol.EventCursorUpdate, &cs, c.identity.UserID)

	case protocol.EventStatusChange:
		var sc protocol.StatusChange
		if err := m.Bind(&sc); err != nil || !sc.Status.Valid() {
			h.sendError(c, "invalid_status", "invalid presence status")
			return
		}
		h.setStatus(c, sc.Status)

	case protocol.EventSelection:
		var sel protocol.ActorSelection
		if err := m.Bind(&sel); err != nil || m.Room == "" {
			return
		}
		sel.UserID = c.identity.UserID
		h.broadcastEvent(m.Room, protocol.EventSelectionChanged, &sel, c.identity.UserID)

	default:
		h.logger.Debug("unhandled event type", "type", m.Type, "user_id", c.identity.UserID)
	}
}

// messageRoom extracts the target room from the envelope or payload.
func (h *Hub) messageRoom(m *protocol.Message) string {
	if m.Room != "" {
		return m.Room
	}
	var ref protocol.RoomRef
	if err := m.Bind(&ref); err == nil {
		return ref.Room
	}
	return ""
}

// setStatus updates the user's presence status in every room they are a
// member of and announces the change to each.
func (h *Hub) setStatus(c *Client, status protocol.UserStatus) {
	now := time.Now().UTC()

	h.mu.Lock()
	updated := make(map[string]protocol.PresenceEntry, len(c.rooms))
	for room := range c.rooms {
		if entry, ok := h.presence[room][c.identity.UserID]; ok {
			entry.Status = status
			entry.LastActiveAt = now
			updated[room] = *entry
		}
	}
	h.mu.Unlock()

	for room, entry := range updated {
		h.broadcastEvent(room, protocol.EventPresenceUpdate, &protocol.PresenceUpdate{
			Room:   room,
			Action: protocol.PresenceStatusChanged,
			Entry:  entry,
		}, c.identity.UserID)
	}

	h.logger.Debug("status changed", "user_id", c.identity.UserID, "status", status)
}

// setTyping updates a room's typing set and broadcasts the full set so
// receivers can rebuild state from any single message.
func (h *Hub) setTyping(c *Client, room string, typing bool) {
	h.mu.Lock()
	if typing {
		if h.typing[room] == nil {
			h.typing[room] = make(map[int64]string)
		}
		h.typing[room][c.identity.UserID] = c.identity.Name
	} else if typers, ok := h.typing[room]; ok {
		delete(typers, c.identity.UserID)
		if len(typers) == 0 {
			delete(h.typing, room)
		}
	}
	users := make([]protocol.TypingUser, 0, len(h.typing[room]))
	for id, name := range h.typing[room] {
		users = append(users, protocol.TypingUser{UserID: id, DisplayName: name})
	}
	h.mu.Unlock()

	h.broadcastEvent(room, protocol.EventTypingStatus, &protocol.TypingStatus{
		Room:        room,
		UserID:      c.identity.UserID,
		DisplayName: c.identity.Name,
		Typing:      typing,
		TypingUsers: users,
	}, c.identity.UserID)
}

// sendEvent queues a typed event to one client.
func (h *Hub) sendEvent(c *Client, t protocol.EventType, payload any) {
	h.sendEventRoom(c, "", t, payload)
}

func (h *Hub) sendEventRoom(c *Client, room string, t protocol.EventType, payload any) {
	m, err := protocol.NewMessage(t, payload)
	if err != nil {
		h.logger.Error("encode event", "type", t, "error", err)
		return
	}
	m.Room = room
	data, err := m.Encode()
	if err != nil {
		h.logger.Error("encode frame", "type", t, "error", err)
		return
	}
	if !c.enqueue(data) {
		h.metrics.eventsDropped.Inc()
	}
}

// SendToUser queues a typed event to a user's connection, if online.
func (h *Hub) SendToUser(userID int64, t protocol.EventType, payload any) bool {
	h.mu.Lock()
	c, ok := h.clients[userID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	h.sendEvent(c, t, payload)
	return true
}

// broadcastEvent fans a typed event out to a room's members, excluding
// the sender when exclude is non-zero.
func (h *Hub) broadcastEvent(room string, t protocol.EventType, payload any, exclude int64) {
	m, err := protocol.NewMessage(t, payload)
	if err != nil {
		h.logger.Error("encode event", "type", t, "error", err)
		return
	}
	m.Room = room
	m.SenderID = exclude
	data, err := m.Encode()
	if err != nil {
		h.logger.Error("encode frame", "type", t, "error", err)
		return
	}

	h.mu.Lock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for id, c := range h.rooms[room] {
		if exclude != 0 && id == exclude {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			h.metrics.eventsDropped.Inc()
		}
	}
	h.metrics.broadcastBytes.Add(float64(len(data) * len(targets)))
}

// sendError reports a channel-level error to one client.
func (h *Hub) sendError(c *Client, code, msg string) {
	h.sendEvent(c, protocol.EventError, &protocol.ErrorPayload{Code: code, Message: msg})
}

// NotifyLocked broadcasts a lock acquisition to the session.
func (h *Hub) NotifyLocked(l lock.Lock) {
	locked, _ := lockEventTypes(l.ResourceID)
	h.broadcastEvent(GlobalRoom, locked, &protocol.LockEvent{Lock: l}, 0)
	h.metrics.locksActive.Set(float64(h.locks.Count()))
}

// NotifyUnlocked broadcasts a lock release and, when a requester was
// queued, tells the earliest one the resource is available.
func (h *Hub) NotifyUnlocked(l lock.Lock, notify *lock.AccessRequest) {
	_, unlocked := lockEventTypes(l.ResourceID)
	h.broadcastEvent(GlobalRoom, unlocked, &protocol.LockEvent{Lock: l}, 0)
	if notify != nil {
		h.SendToUser(notify.RequesterID, protocol.EventAccessAvailable, &protocol.AccessAvailable{
			ResourceID: l.ResourceID,
		})
	}
	h.metrics.locksActive.Set(float64(h.locks.Count()))
}

// NotifyAccessRequested tells a lock holder someone wants the resource.
func (h *Hub) NotifyAccessRequested(holderID int64, req lock.AccessRequest) {
	h.SendToUser(holderID, protocol.EventAccessRequested, &protocol.AccessRequested{Request: req})
}

// OnlineUsers snapshots the global roster.
func (h *Hub) OnlineUsers() []protocol.PresenceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rosterLocked(GlobalRoom)
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every client connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.closeNormal("server shutting down")
	}
}

// lockEventTypes picks the event vocabulary for a resource. Scene actors
// use the actor_* events; everything else is treated as a workspace file.
func lockEventTypes(resourceID string) (locked, unlocked protocol.EventType) {
	if strings.HasPrefix(resourceID, "actor:") {
		return protocol.EventActorLocked, protocol.EventActorUnlocked
	}
	return protocol.EventFileLocked, protocol.EventFileUnlocked
}
