// Package protocol defines the wire format for the SceneFlow real-time
// channel.
//
// Every frame is a JSON text message with a fixed envelope:
//
//	{
//	  "type":      "presence_update",
//	  "payload":   { ... },
//	  "timestamp": "2026-08-25T12:00:00Z",
//	  "sender_id": 42,
//	  "room":      "workspace:7"
//	}
//
// Event types are plain strings so unrecognized types survive decoding and
// can be routed to wildcard handlers; forward-compatible event types never
// break older clients. DecodePayload maps known types onto typed payload
// structs so handlers can switch exhaustively.
package protocol
