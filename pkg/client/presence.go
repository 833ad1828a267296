package client

import (
	"github.com/sceneflow-dev/sceneflow/pkg/protocol"
)

// JoinRoom enters a room. The room sticks across reconnects until
// LeaveRoom is called.
func (c *Client) JoinRoom(room string) error {
	if room == "" {
		return nil
	}
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
	return c.send(protocol.EventJoinRoom, &protocol.RoomRef{Room: room}, room)
}

// LeaveRoom exits a room and drops its cached state.
func (c *Client) LeaveRoom(room string) error {
	if room == "" {
		return nil
	}
	c.mu.Lock()
	delete(c.rooms, room)
	delete(c.presence, room)
	delete(c.cursors, room)
	delete(c.remoteTyping, room)
	if timer, ok := c.localTyping[room]; ok {
		timer.Stop()
		delete(c.localTyping, room)
	}
	c.mu.Unlock()
	return c.send(protocol.EventLeaveRoom, &protocol.RoomRef{Room: room}, room)
}

// Rooms lists the rooms the client intends to be in.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	return out
}

// SetStatus changes the local user's presence status. The hub fans a
// status_changed update out to every room the user is in.
func (c *Client) SetStatus(status protocol.UserStatus) error {
	return c.send(protocol.EventStatusChange, &protocol.StatusChange{Status: status}, "")
}

// Presence returns the cached roster for a room.
func (c *Client) Presence(room string) []protocol.PresenceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.presence[room]
	out := make([]protocol.PresenceEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	return out
}
