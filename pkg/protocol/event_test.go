package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestMessageRoundTrip(t *testing.T) {
	m, err := NewMessage(EventPresenceUpdate, &PresenceUpdate{
		Room:   "workspace:7",
		Action: PresenceJoined,
		Entry: PresenceEntry{
			UserID:      42,
			DisplayName: "alice",
			Status:      StatusOnline,
		},
	})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	m.SenderID = 42
	m.Room = "workspace:7"

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	if decoded.Type != EventPresenceUpdate {
		t.Errorf("type = %s, want presence_update", decoded.Type)
	}
	if decoded.SenderID != 42 || decoded.Room != "workspace:7" {
		t.Errorf("envelope fields lost: %+v", decoded)
	}
	if decoded.Timestamp.IsZero() {
		t.Error("timestamp should survive the round trip")
	}

	payload, err := DecodePayload(decoded)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	pu, ok := payload.(*PresenceUpdate)
	if !ok {
		t.Fatalf("payload type = %T, want *PresenceUpdate", payload)
	}
	if pu.Action != PresenceJoined || pu.Entry.UserID != 42 {
		t.Errorf("payload = %+v", pu)
	}
}

func TestDecodeMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "invalid json", data: "{nope"},
		{name: "missing type", data: `{"payload":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeMessage([]byte(tt.data)); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestUnknownEventTypeSurvivesDecoding(t *testing.T) {
	data := []byte(`{"type":"hologram_sync","payload":{"x":1},"timestamp":"2026-08-25T12:00:00Z"}`)

	m, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("unknown event type must decode: %v", err)
	}
	if m.Type != "hologram_sync" {
		t.Errorf("type = %s", m.Type)
	}
	if len(m.Payload) == 0 {
		t.Error("raw payload should be preserved for wildcard handlers")
	}

	if _, err := DecodePayload(m); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecodePayloadKnownTypes(t *testing.T) {
	tests := []struct {
		typ  EventType
		want any
	}{
		{EventPresenceFull, &PresenceFull{}},
		{EventCursorUpdate, &CursorState{}},
		{EventTypingStatus, &TypingStatus{}},
		{EventStatusChange, &StatusChange{}},
		{EventFileLocked, &LockEvent{}},
		{EventActorUnlocked, &LockEvent{}},
		{EventAccessAvailable, &AccessAvailable{}},
		{EventSessionState, &SessionState{}},
		{EventRoomJoined, &RoomRoster{}},
		{EventError, &ErrorPayload{}},
		{EventPing, &PingPong{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			m := &Message{Type: tt.typ, Timestamp: time.Now()}
			got, err := DecodePayload(m)
			if err != nil {
				t.Fatalf("DecodePayload(%s) failed: %v", tt.typ, err)
			}
			if got == nil {
				t.Fatalf("DecodePayload(%s) returned nil", tt.typ)
			}
		})
	}
}

func TestClosePolicy(t *testing.T) {
	intentional := []int{websocket.CloseNormalClosure, websocket.ClosePolicyViolation}
	for _, code := range intentional {
		if !IsIntentionalClose(code) {
			t.Errorf("code %d should suppress reconnect", code)
		}
	}

	reconnecting := []int{
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseInternalServerErr,
		4005,
	}
	for _, code := range reconnecting {
		if IsIntentionalClose(code) {
			t.Errorf("code %d should trigger reconnect", code)
		}
	}

	if !IsAuthClose(CloseInvalidToken) || !IsAuthClose(CloseInvalidUser) {
		t.Error("4001/4002 are auth closes")
	}
	if IsAuthClose(websocket.CloseNormalClosure) {
		t.Error("1000 is not an auth close")
	}
}
