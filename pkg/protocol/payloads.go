package protocol

import (
	"time"

	"github.com/sceneflow-dev/sceneflow/pkg/lock"
)

// UserStatus is a presence status level.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusAway    UserStatus = "away"
	StatusBusy    UserStatus = "busy"
	StatusOffline UserStatus = "offline"
)

// Valid reports whether s is a status a user may set on themselves.
// Offline is excluded; it is only ever produced by a departure.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy:
		return true
	}
	return false
}

// PresenceEntry is one participant in a scope's live roster.
type PresenceEntry struct {
	UserID       int64      `json:"user_id"`
	DisplayName  string     `json:"display_name"`
	Color        string     `json:"color,omitempty"`
	Status       UserStatus `json:"status"`
	LastActiveAt time.Time  `json:"last_active_at"`
	CurrentScope string     `json:"current_scope,omitempty"`
}

// PresenceFull is the authoritative roster snapshot sent after a room join
// or reconnect. Receivers replace, never merge, their local state with it.
type PresenceFull struct {
	Room  string          `json:"room"`
	Users []PresenceEntry `json:"users"`
}

// PresenceAction discriminates incremental presence updates.
type PresenceAction string

const (
	PresenceJoined        PresenceAction = "joined"
	PresenceLeft          PresenceAction = "left"
	PresenceScopeChanged  PresenceAction = "scope_changed"
	PresenceStatusChanged PresenceAction = "status_changed"
)

// PresenceUpdate is an incremental change to a room's roster.
type PresenceUpdate struct {
	Room   string         `json:"room"`
	Action PresenceAction `json:"action"`
	Entry  PresenceEntry  `json:"entry"`
}

// Position is a cursor location inside a resource.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Selection is an inclusive range between two positions.
type Selection struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// CursorState is a user's transient cursor inside a resource. Last write
// wins; the state is never persisted.
type CursorState struct {
	UserID      int64      `json:"user_id,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Color       string     `json:"color,omitempty"`
	ResourceID  string     `json:"resource_id"`
	Position    Position   `json:"position"`
	Selection   *Selection `json:"selection,omitempty"`
}

// ActorSelection is a user's set of selected scene actors.
type ActorSelection struct {
	UserID int64    `json:"user_id,omitempty"`
	Actors []string `json:"actors"`
}

// TypingUser identifies one typing participant.
type TypingUser struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// TypingStatus reports a typing transition in a room, along with the full
// set of users currently typing so receivers can rebuild state from any
// single message.
type TypingStatus struct {
	Room        string       `json:"room"`
	UserID      int64        `json:"user_id"`
	DisplayName string       `json:"display_name,omitempty"`
	Typing      bool         `json:"typing"`
	TypingUsers []TypingUser `json:"typing_users,omitempty"`
}

// StatusChange is a user's request to change their own presence status.
type StatusChange struct {
	Status UserStatus `json:"status"`
}

// RoomRef names a room in join/leave requests and their acknowledgments.
type RoomRef struct {
	Room string `json:"room"`
}

// RoomRoster acknowledges a successful join with the room's current
// members.
type RoomRoster struct {
	Room  string          `json:"room"`
	Users []PresenceEntry `json:"users"`
}

// LockEvent carries a lock-state transition on the channel.
type LockEvent struct {
	Lock lock.Lock `json:"lock"`
}

// AccessRequested notifies a lock holder that another user wants the
// resource.
type AccessRequested struct {
	Request lock.AccessRequest `json:"request"`
}

// AccessAvailable notifies the earliest queued requester that the resource
// was released. The lock is not transferred; the recipient should retry
// its acquire.
type AccessAvailable struct {
	ResourceID string `json:"resource_id"`
}

// SessionState is the full collaboration snapshot sent on connect and
// requested again after reconnect.
type SessionState struct {
	SessionID string          `json:"session_id"`
	Users     []PresenceEntry `json:"users"`
	Locks     []lock.Lock     `json:"locks"`
}

// Notification is a user-facing message routed through the channel.
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
	Level string `json:"level,omitempty"`
}

// ErrorPayload reports a channel-level error to the client.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// PingPong is the heartbeat payload. The timestamp is echoed back so
// clients can estimate latency.
type PingPong struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

// DecodePayload decodes a message payload into its typed form based on the
// event type. Unknown types return ErrUnknownEvent; the caller still holds
// the raw payload on the Message and can route it to wildcard handlers.
func DecodePayload(m *Message) (any, error) {
	decode := func(v any) (any, error) {
		if err := m.Bind(v); err != nil {
			return nil, err
		}
		return v, nil
	}

	switch m.Type {
	case EventConnect, EventSessionState:
		return decode(&SessionState{})
	case EventPresenceFull:
		return decode(&PresenceFull{})
	case EventPresenceUpdate:
		return decode(&PresenceUpdate{})
	case EventCursorUpdate, EventCursor:
		return decode(&CursorState{})
	case EventSelection, EventSelectionChanged:
		return decode(&ActorSelection{})
	case EventTypingStatus:
		return decode(&TypingStatus{})
	case EventTypingStart, EventTypingStop:
		return decode(&RoomRef{})
	case EventStatusChange:
		return decode(&StatusChange{})
	case EventFileLocked, EventFileUnlocked, EventActorLocked, EventActorUnlocked, EventLockExpired:
		return decode(&LockEvent{})
	case EventAccessRequested:
		return decode(&AccessRequested{})
	case EventAccessAvailable:
		return decode(&AccessAvailable{})
	case EventJoinRoom, EventLeaveRoom:
		return decode(&RoomRef{})
	case EventRoomJoined:
		return decode(&RoomRoster{})
	case EventRoomLeft:
		return decode(&RoomRef{})
	case EventNotification:
		return decode(&Notification{})
	case EventError:
		return decode(&ErrorPayload{})
	case EventPing, EventPong:
		return decode(&PingPong{})
	default:
		return nil, ErrUnknownEvent
	}
}
