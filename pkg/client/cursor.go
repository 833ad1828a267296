package client

import (
	"github.com/sceneflow-dev/sceneflow/pkg/protocol"
)

// UpdateCursor publishes the local cursor position to a room. Best
// effort; a stale or lost update is corrected by the next one.
func (c *Client) UpdateCursor(room, resourceID string, pos protocol.Position, sel *protocol.Selection) {
	_ = c.send(protocol.EventCursor, &protocol.CursorState{
		ResourceID: resourceID,
		Position:   pos,
		Selection:  sel,
	}, room)
}

// UpdateSelection publishes the set of scene actors the local user has
// selected.
func (c *Client) UpdateSelection(room string, actors []string) {
	_ = c.send(protocol.EventSelection, &protocol.ActorSelection{Actors: actors}, room)
}

// Cursors returns the cached peer cursor states for a room. Entries are
// last-write-wins per peer and are purged when a peer leaves.
func (c *Client) Cursors(room string) []protocol.CursorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	states := c.cursors[room]
	out := make([]protocol.CursorState, 0, len(states))
	for _, cs := range states {
		out = append(out, cs)
	}
	return out
}
