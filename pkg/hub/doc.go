// Package hub implements the coordinating process for a SceneFlow
// collaboration session.
//
// The hub owns the authoritative state the clients only cache: room
// membership, the live presence roster, the set of typing users, and the
// lock table. One WebSocket connection is held per user; frames are routed
// by event type and fanned out by room membership. Lock operations arrive
// over a REST API mounted on the same server and their state transitions
// are broadcast back through the channel.
package hub
