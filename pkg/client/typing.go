package client

import (
	"time"

	"github.com/sceneflow-dev/sceneflow/pkg/protocol"
)

// StartTyping marks the local user as typing in a room. The first call
// emits typing_start; subsequent calls within the typing timeout only
// push the auto-stop forward, so a steady stream of keystrokes costs one
// message. The indicator clears itself after the timeout.
func (c *Client) StartTyping(room string) error {
	if room == "" {
		return nil
	}

	c.mu.Lock()
	if timer, ok := c.localTyping[room]; ok {
		timer.Reset(c.config.TypingTimeout)
		c.mu.Unlock()
		return nil
	}
	c.localTyping[room] = time.AfterFunc(c.config.TypingTimeout, func() {
		c.autoStopTyping(room)
	})
	c.mu.Unlock()

	return c.send(protocol.EventTypingStart, &protocol.RoomRef{Room: room}, room)
}

// StopTyping clears the local typing indicator immediately.
func (c *Client) StopTyping(room string) error {
	if room == "" {
		return nil
	}

	c.mu.Lock()
	timer, ok := c.localTyping[room]
	if ok {
		timer.Stop()
		delete(c.localTyping, room)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return c.send(protocol.EventTypingStop, &protocol.RoomRef{Room: room}, room)
}

// autoStopTyping fires when the typing timeout elapses without another
// keystroke.
func (c *Client) autoStopTyping(room string) {
	c.mu.Lock()
	_, ok := c.localTyping[room]
	delete(c.localTyping, room)
	c.mu.Unlock()

	if ok {
		_ = c.send(protocol.EventTypingStop, &protocol.RoomRef{Room: room}, room)
	}
}

// TypingUsers returns the peers currently typing in a room.
func (c *Client) TypingUsers(room string) []protocol.TypingUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	typers := c.remoteTyping[room]
	out := make([]protocol.TypingUser, 0, len(typers))
	for id, name := range typers {
		out = append(out, protocol.TypingUser{UserID: id, DisplayName: name})
	}
	return out
}
