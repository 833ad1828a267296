package lock

import "time"

// Kind is the lock kind: advisory or exclusive.
type Kind string

const (
	// KindSoft is an advisory lock. Other users can still edit but are warned.
	KindSoft Kind = "soft"

	// KindHard is an exclusive lock. Conflicting acquires are rejected.
	KindHard Kind = "hard"
)

// Valid reports whether k is a recognized lock kind.
func (k Kind) Valid() bool {
	return k == KindSoft || k == KindHard
}

// Lock is a hold on a named resource.
type Lock struct {
	// ResourceID identifies the locked resource (file path, actor ID).
	ResourceID string `json:"resource_id"`

	// HolderID is the user holding the lock.
	HolderID int64 `json:"holder_id"`

	// HolderName is the holder's display name, carried for UI surfaces.
	HolderName string `json:"holder_name,omitempty"`

	// Kind is soft (advisory) or hard (exclusive).
	Kind Kind `json:"kind"`

	// Reason is a free-form explanation shown to other users.
	Reason string `json:"reason,omitempty"`

	// CreatedAt is when the lock was first acquired.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is the expiry instant for timed locks. Nil means the lock
	// holds until released or until the holder disconnects.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// AutoUnlock marks the lock for release when the holder disconnects.
	// Timed locks clear this flag and survive disconnects until expiry.
	AutoUnlock bool `json:"auto_unlock"`
}

// Expired reports whether the lock's expiry is in the past at now.
func (l *Lock) Expired(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return now.After(*l.ExpiresAt)
}

// AccessRequest is a queued ask for a locked resource. Requests are kept in
// arrival order so the earliest requester is notified on release.
type AccessRequest struct {
	ResourceID    string    `json:"resource_id"`
	RequesterID   int64     `json:"requester_id"`
	RequesterName string    `json:"requester_name,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

// Access is the result of a read-only access check.
type Access struct {
	CanEdit bool   `json:"can_edit"`
	CanView bool   `json:"can_view"`
	Lock    *Lock  `json:"lock,omitempty"`
	Warning string `json:"warning,omitempty"`
	Message string `json:"message,omitempty"`
}
