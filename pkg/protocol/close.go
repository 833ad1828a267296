package protocol

import "github.com/gorilla/websocket"

// Application close codes, in the WebSocket private range.
const (
	// CloseInvalidToken rejects a handshake with a bad or expired token.
	CloseInvalidToken = 4001

	// CloseInvalidUser rejects a handshake whose token carries no usable
	// user identity.
	CloseInvalidUser = 4002
)

// IsIntentionalClose reports whether a close code means the connection was
// ended on purpose (normal closure, or policy reject on logout) and the
// client must not auto-reconnect. Every other code triggers the backoff
// reconnect sequence.
func IsIntentionalClose(code int) bool {
	return code == websocket.CloseNormalClosure || code == websocket.ClosePolicyViolation
}

// IsAuthClose reports whether a close code signals rejected credentials.
// Auth closes are fatal: reconnecting with the same token cannot succeed.
func IsAuthClose(code int) bool {
	return code == CloseInvalidToken || code == CloseInvalidUser
}
