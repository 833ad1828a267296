// Package client is the Go client for a SceneFlow collaboration session.
//
// A Client holds one WebSocket connection to the hub and keeps local
// caches of what the hub owns authoritatively: the presence roster,
// typing indicators, and peer cursor state. Snapshots received from the
// hub replace the caches; deltas update them. The connection reconnects
// automatically with exponential backoff unless the close was
// intentional or an authentication failure.
//
// All event handlers run on a single dispatch goroutine, so handlers
// observe events in arrival order and never race each other.
package client
