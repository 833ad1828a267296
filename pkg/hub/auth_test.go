package hub

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	id := Identity{UserID: 42, Name: "Ada", Color: "#ff0000"}

	token, err := MintToken(secret, id, time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}

	got, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if *got != id {
		t.Errorf("identity = %+v, want %+v", *got, id)
	}
}

func TestParseTokenRejects(t *testing.T) {
	secret := []byte("test-secret")

	tests := []struct {
		name  string
		token func(t *testing.T) string
		want  error
	}{
		{
			name:  "garbage",
			token: func(*testing.T) string { return "not-a-jwt" },
			want:  ErrInvalidToken,
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				tok, err := MintToken([]byte("other-secret"), Identity{UserID: 1}, time.Hour)
				if err != nil {
					t.Fatal(err)
				}
				return tok
			},
			want: ErrInvalidToken,
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				tok, err := MintToken(secret, Identity{UserID: 1}, -time.Hour)
				if err != nil {
					t.Fatal(err)
				}
				return tok
			},
			want: ErrInvalidToken,
		},
		{
			name: "non-numeric subject",
			token: func(t *testing.T) string {
				tok, err := MintToken(secret, Identity{UserID: 0}, time.Hour)
				if err != nil {
					t.Fatal(err)
				}
				return tok
			},
			want: ErrInvalidUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(secret, tt.token(t))
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseToken error = %v, want %v", err, tt.want)
			}
		})
	}
}
