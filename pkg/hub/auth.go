package hub

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Auth errors.
var (
	// ErrInvalidToken is returned for malformed, mis-signed, or expired
	// bearer tokens. Fatal: callers must not retry with the same token.
	ErrInvalidToken = errors.New("hub: invalid or expired token")

	// ErrInvalidUser is returned when a valid token carries no usable
	// user identity.
	ErrInvalidUser = errors.New("hub: token has no user identity")
)

// Claims are the JWT claims SceneFlow issues and accepts. The subject is
// the numeric user ID; name and color feed presence and cursor state.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated principal extracted from a bearer token.
type Identity struct {
	UserID int64
	Name   string
	Color  string
}

// ParseToken verifies an HS256 bearer token and extracts the identity.
func ParseToken(secret []byte, tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("hub: unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrInvalidUser
	}

	return &Identity{UserID: userID, Name: claims.Name, Color: claims.Color}, nil
}

// MintToken issues a development token for the given identity. Production
// deployments receive tokens from the external auth service; this exists
// for the CLI and tests.
func MintToken(secret []byte, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Name:  id.Name,
		Color: id.Color,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
