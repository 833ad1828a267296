package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType identifies a message on the real-time channel.
type EventType string

// Server -> client event types.
const (
	EventConnect          EventType = "connect"
	EventPresenceFull     EventType = "presence_full"
	EventPresenceUpdate   EventType = "presence_update"
	EventCursorUpdate     EventType = "cursor_update"
	EventTypingStatus     EventType = "typing_status"
	EventFileLocked       EventType = "file_locked"
	EventFileUnlocked     EventType = "file_unlocked"
	EventActorLocked      EventType = "actor_locked"
	EventActorUnlocked    EventType = "actor_unlocked"
	EventLockExpired      EventType = "lock_expired"
	EventAccessRequested  EventType = "access_requested"
	EventAccessAvailable  EventType = "access_available"
	EventSelectionChanged EventType = "selection_changed"
	EventSessionState     EventType = "session_state"
	EventRoomJoined       EventType = "room_joined"
	EventRoomLeft         EventType = "room_left"
	EventNotification     EventType = "notification"
	EventError            EventType = "error"
	EventPong             EventType = "pong"
)

// Client -> server event types.
const (
	EventJoinRoom     EventType = "join_room"
	EventLeaveRoom    EventType = "leave_room"
	EventTypingStart  EventType = "typing_start"
	EventTypingStop   EventType = "typing_stop"
	EventCursor       EventType = "cursor"
	EventSelection    EventType = "selection"
	EventStatusChange EventType = "status_change"
	EventPing         EventType = "ping"
)

// EventAny is the reserved wildcard type for handlers that observe every
// event. It never appears on the wire.
const EventAny EventType = "*"

// Message is the wire envelope shared by every frame on the channel.
type Message struct {
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	SenderID  int64           `json:"sender_id,omitempty"`
	Room      string          `json:"room,omitempty"`
}

// Message errors.
var (
	ErrEmptyType    = errors.New("protocol: message has no type")
	ErrUnknownEvent = errors.New("protocol: unknown event type")
)

// NewMessage builds a message of the given type, marshaling payload into
// the envelope. A nil payload produces an empty payload field.
func NewMessage(t EventType, payload any) (*Message, error) {
	m := &Message{Type: t, Timestamp: time.Now().UTC()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s payload: %w", t, err)
		}
		m.Payload = data
	}
	return m, nil
}

// Encode serializes the message for the wire.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a wire frame. Unrecognized event types decode
// successfully; payload typing is deferred to DecodePayload.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("protocol: decode message: %w", err)
	}
	if m.Type == "" {
		return nil, ErrEmptyType
	}
	return &m, nil
}

// Bind unmarshals the message payload into v.
func (m *Message) Bind(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("protocol: bind %s payload: %w", m.Type, err)
	}
	return nil
}
