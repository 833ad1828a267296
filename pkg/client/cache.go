package client

import (
	"github.com/sceneflow-dev/sceneflow/pkg/protocol"
)

// apply folds one hub event into the local caches before user handlers
// see it. Snapshots replace; deltas update.
func (c *Client) apply(m *protocol.Message) {
	switch m.Type {
	case protocol.EventConnect, protocol.EventSessionState:
		var ss protocol.SessionState
		if m.Bind(&ss) != nil {
			return
		}
		c.mu.Lock()
		c.session = &ss
		global := make(map[int64]protocol.PresenceEntry, len(ss.Users))
		for _, e := range ss.Users {
			global[e.UserID] = e
		}
		c.presence["global"] = global
		c.mu.Unlock()

	case protocol.EventPresenceFull:
		var pf protocol.PresenceFull
		if m.Bind(&pf) != nil || pf.Room == "" {
			return
		}
		entries := make(map[int64]protocol.PresenceEntry, len(pf.Users))
		for _, e := range pf.Users {
			entries[e.UserID] = e
		}
		c.mu.Lock()
		c.presence[pf.Room] = entries
		c.mu.Unlock()

	case protocol.EventPresenceUpdate:
		var pu protocol.PresenceUpdate
		if m.Bind(&pu) != nil || pu.Room == "" {
			return
		}
		c.mu.Lock()
		switch pu.Action {
		case protocol.PresenceLeft:
			delete(c.presence[pu.Room], pu.Entry.UserID)
			delete(c.cursors[pu.Room], pu.Entry.UserID)
			delete(c.remoteTyping[pu.Room], pu.Entry.UserID)
		default:
			if c.presence[pu.Room] == nil {
				c.presence[pu.Room] = make(map[int64]protocol.PresenceEntry)
			}
			c.presence[pu.Room][pu.Entry.UserID] = pu.Entry
		}
		c.mu.Unlock()

	case protocol.EventTypingStatus:
		var ts protocol.TypingStatus
		if m.Bind(&ts) != nil || ts.Room == "" {
			return
		}
		// The full set travels with every update so state rebuilds from
		// any single message.
		typers := make(map[int64]string, len(ts.TypingUsers))
		for _, u := range ts.TypingUsers {
			typers[u.UserID] = u.DisplayName
		}
		c.mu.Lock()
		if len(typers) == 0 {
			delete(c.remoteTyping, ts.Room)
		} else {
			c.remoteTyping[ts.Room] = typers
		}
		c.mu.Unlock()

	case protocol.EventCursorUpdate:
		var cs protocol.CursorState
		if m.Bind(&cs) != nil || m.Room == "" {
			return
		}
		c.mu.Lock()
		if c.cursors[m.Room] == nil {
			c.cursors[m.Room] = make(map[int64]protocol.CursorState)
		}
		c.cursors[m.Room][cs.UserID] = cs
		c.mu.Unlock()

	case protocol.EventRoomLeft:
		var ref protocol.RoomRef
		if m.Bind(&ref) != nil {
			return
		}
		c.mu.Lock()
		delete(c.presence, ref.Room)
		delete(c.cursors, ref.Room)
		delete(c.remoteTyping, ref.Room)
		c.mu.Unlock()
	}
}
