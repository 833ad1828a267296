package lock

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// AcquireResult reports the outcome of an acquire call.
type AcquireResult struct {
	// Lock is the lock now covering the resource. For a soft conflict this
	// is the other user's existing lock, not one owned by the caller.
	Lock Lock `json:"lock"`

	// Warning is set when the resource is soft-locked by another user.
	// The acquire still succeeds; the caller is informed, not blocked.
	Warning string `json:"warning,omitempty"`

	// Message describes the outcome (acquired, refreshed, upgraded).
	Message string `json:"message,omitempty"`
}

// ReleaseResult reports the outcome of a release call.
type ReleaseResult struct {
	// Notify is the earliest queued access request for the resource, if
	// any. Exactly one requester is notified; the lock is not transferred,
	// so the notified user's next acquire competes like any other.
	Notify *AccessRequest `json:"notify,omitempty"`
}

// RequestResult reports the outcome of a request-access call.
type RequestResult struct {
	// HolderID is the current lock holder, to be notified out-of-band.
	HolderID int64 `json:"holder_id"`

	// Request is the queued entry.
	Request AccessRequest `json:"request"`
}

// Service arbitrates locks on named resources. It is the single
// authoritative mutator of lock state for a coordinating process; all
// methods are safe for concurrent use.
//
// Construct with NewService. The zero value is not usable.
type Service struct {
	mu sync.Mutex

	// locks holds at most one entry per resource.
	locks map[string]*Lock

	// queues holds pending access requests per resource, in arrival order.
	queues map[string][]AccessRequest

	// byHolder indexes resource IDs by holding user for disconnect teardown.
	byHolder map[int64]map[string]struct{}

	// onExpire, when set, is invoked (outside the mutex) for every lock
	// evicted because its expiry passed. The hub uses this to broadcast
	// lock_expired events.
	onExpire func(Lock)

	logger *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewService creates an empty lock service.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		locks:    make(map[string]*Lock),
		queues:   make(map[string][]AccessRequest),
		byHolder: make(map[int64]map[string]struct{}),
		logger:   logger.With("component", "lock"),
		now:      time.Now,
	}
}

// OnExpire registers a callback for lazily evicted expired locks.
// It must be set before the service is shared between goroutines.
func (s *Service) OnExpire(fn func(Lock)) {
	s.onExpire = fn
}

// Acquire takes or refreshes a lock on a resource.
//
// Held by another user: a hard lock fails with a ConflictError; a soft lock
// succeeds with a warning and the existing lock in the result. Held by the
// caller: the lock is refreshed, and a soft lock is upgraded in place when
// kind is hard. duration > 0 creates a timed lock that survives disconnects;
// duration == 0 creates an auto-unlock lock held until release or disconnect.
func (s *Service) Acquire(resourceID string, userID int64, userName string, kind Kind, reason string, duration time.Duration) (*AcquireResult, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}

	var expired *Lock
	defer func() { s.fireExpire(expired) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if existing, ok := s.locks[resourceID]; ok {
		if existing.Expired(now) {
			expired = existing
			s.evictLocked(resourceID)
		} else if existing.HolderID != userID {
			if existing.Kind == KindHard {
				return nil, &ConflictError{Lock: *existing}
			}
			// Soft lock held by someone else: allow, but warn.
			return &AcquireResult{
				Lock:    *existing,
				Warning: fmt.Sprintf("resource is being edited by %s", holderLabel(existing)),
			}, nil
		} else {
			// Idempotent refresh of the caller's own lock.
			msg := "lock refreshed"
			if kind == KindHard && existing.Kind == KindSoft {
				existing.Kind = KindHard
				msg = "lock upgraded to hard"
			}
			if reason != "" {
				existing.Reason = reason
			}
			if duration > 0 {
				t := now.Add(duration)
				existing.ExpiresAt = &t
				existing.AutoUnlock = false
			}
			return &AcquireResult{Lock: *existing, Message: msg}, nil
		}
	}

	l := &Lock{
		ResourceID: resourceID,
		HolderID:   userID,
		HolderName: userName,
		Kind:       kind,
		Reason:     reason,
		CreatedAt:  now,
		AutoUnlock: true,
	}
	if duration > 0 {
		t := now.Add(duration)
		l.ExpiresAt = &t
		l.AutoUnlock = false
	}

	s.locks[resourceID] = l
	if s.byHolder[userID] == nil {
		s.byHolder[userID] = make(map[string]struct{})
	}
	s.byHolder[userID][resourceID] = struct{}{}

	s.logger.Debug("lock acquired",
		"resource_id", resourceID,
		"holder_id", userID,
		"kind", string(kind))

	return &AcquireResult{Lock: *l, Message: string(kind) + " lock acquired"}, nil
}

// Release removes the caller's lock on a resource. It fails with
// ErrNotLocked when no lock exists and ErrNotHolder when the lock belongs
// to another user. On success, the earliest queued access request (if any)
// is returned for notification and the queue is cleared.
func (s *Service) Release(resourceID string, userID int64) (*ReleaseResult, error) {
	var expired *Lock
	defer func() { s.fireExpire(expired) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[resourceID]
	if !ok {
		return nil, ErrNotLocked
	}
	if l.Expired(s.now()) {
		expired = l
		s.evictLocked(resourceID)
		return nil, ErrNotLocked
	}
	if l.HolderID != userID {
		return nil, ErrNotHolder
	}

	s.removeLocked(resourceID, userID)

	res := &ReleaseResult{}
	if q := s.queues[resourceID]; len(q) > 0 {
		first := q[0]
		res.Notify = &first
		delete(s.queues, resourceID)
	}

	s.logger.Debug("lock released", "resource_id", resourceID, "holder_id", userID)
	return res, nil
}

// Get returns the current lock on a resource, or nil when unlocked.
// Expired locks are evicted and reported as absent.
func (s *Service) Get(resourceID string) *Lock {
	var expired *Lock
	defer func() { s.fireExpire(expired) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[resourceID]
	if !ok {
		return nil
	}
	if l.Expired(s.now()) {
		expired = l
		s.evictLocked(resourceID)
		return nil
	}
	snap := *l
	return &snap
}

// CheckAccess is a pure read of what a user may do with a resource.
// Unlocked: full access. Own lock: full access. Soft lock by another user:
// editable with a warning. Hard lock by another user: view only.
func (s *Service) CheckAccess(resourceID string, userID int64) Access {
	var expired *Lock
	defer func() { s.fireExpire(expired) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[resourceID]
	if !ok {
		return Access{CanEdit: true, CanView: true}
	}
	if l.Expired(s.now()) {
		expired = l
		s.evictLocked(resourceID)
		return Access{CanEdit: true, CanView: true}
	}

	snap := *l
	if l.HolderID == userID {
		return Access{CanEdit: true, CanView: true, Lock: &snap}
	}
	if l.Kind == KindHard {
		return Access{
			CanEdit: false,
			CanView: true,
			Lock:    &snap,
			Message: fmt.Sprintf("resource is locked by %s", holderLabel(l)),
		}
	}
	return Access{
		CanEdit: true,
		CanView: true,
		Lock:    &snap,
		Warning: fmt.Sprintf("resource is being edited by %s", holderLabel(l)),
	}
}

// RequestAccess queues an ask for a locked resource and reports the holder
// to notify. It fails with ErrNotLocked when the resource has no current
// holder. Re-requesting is idempotent and keeps the original queue position.
func (s *Service) RequestAccess(resourceID string, userID int64, userName string) (*RequestResult, error) {
	var expired *Lock
	defer func() { s.fireExpire(expired) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[resourceID]
	if !ok {
		return nil, ErrNotLocked
	}
	if l.Expired(s.now()) {
		expired = l
		s.evictLocked(resourceID)
		return nil, ErrNotLocked
	}

	for _, r := range s.queues[resourceID] {
		if r.RequesterID == userID {
			return &RequestResult{HolderID: l.HolderID, Request: r}, nil
		}
	}

	req := AccessRequest{
		ResourceID:    resourceID,
		RequesterID:   userID,
		RequesterName: userName,
		RequestedAt:   s.now(),
	}
	s.queues[resourceID] = append(s.queues[resourceID], req)

	return &RequestResult{HolderID: l.HolderID, Request: req}, nil
}

// Requests lists the queued access requests for a resource. Only the lock
// holder may see them.
func (s *Service) Requests(resourceID string, callerID int64) ([]AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[resourceID]
	if !ok || l.Expired(s.now()) {
		return nil, ErrNotLocked
	}
	if l.HolderID != callerID {
		return nil, ErrNotHolder
	}

	q := s.queues[resourceID]
	out := make([]AccessRequest, len(q))
	copy(out, q)
	return out, nil
}

// All returns snapshots of every active lock, evicting expired ones.
func (s *Service) All() []Lock {
	var expired []Lock
	defer func() {
		for i := range expired {
			s.fireExpire(&expired[i])
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Lock, 0, len(s.locks))
	for id, l := range s.locks {
		if l.Expired(now) {
			expired = append(expired, *l)
			s.evictLocked(id)
			continue
		}
		out = append(out, *l)
	}
	return out
}

// User returns snapshots of the locks held by one user.
func (s *Service) User(userID int64) []Lock {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []Lock
	for id := range s.byHolder[userID] {
		if l, ok := s.locks[id]; ok && !l.Expired(now) {
			out = append(out, *l)
		}
	}
	return out
}

// Released reports one lock torn down by a bulk release.
type Released struct {
	// ResourceID names the freed resource.
	ResourceID string

	// Notify is the earliest queued access request for the resource, if
	// any, following the same single-notification rule as Release.
	Notify *AccessRequest
}

// ReleaseAllForUser removes a user's locks and returns the affected
// resources with their earliest queued requester, if any. With onlyAuto
// true (session teardown) only locks flagged auto_unlock are released;
// timed locks survive the disconnect.
func (s *Service) ReleaseAllForUser(userID int64, onlyAuto bool) []Released {
	s.mu.Lock()
	defer s.mu.Unlock()

	var released []Released
	for id := range s.byHolder[userID] {
		l, ok := s.locks[id]
		if !ok || l.HolderID != userID {
			continue
		}
		if onlyAuto && !l.AutoUnlock {
			continue
		}
		s.removeLocked(id, userID)
		rel := Released{ResourceID: id}
		if queue := s.queues[id]; len(queue) > 0 {
			first := queue[0]
			rel.Notify = &first
		}
		delete(s.queues, id)
		released = append(released, rel)
	}
	if len(s.byHolder[userID]) == 0 {
		delete(s.byHolder, userID)
	}

	if len(released) > 0 {
		s.logger.Debug("released user locks",
			"holder_id", userID,
			"count", len(released),
			"only_auto", onlyAuto)
	}
	return released
}

// Count returns the number of active locks without evicting expired ones.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// evictLocked drops an expired lock, its holder index entry, and any
// pending requests. The lock_expired broadcast fired by the caller covers
// queued requesters; the resource is free for anyone to take. Caller holds
// s.mu.
func (s *Service) evictLocked(resourceID string) {
	l, ok := s.locks[resourceID]
	if !ok {
		return
	}
	s.removeLocked(resourceID, l.HolderID)
	delete(s.queues, resourceID)
}

// removeLocked drops a lock owned by userID. Caller holds s.mu.
func (s *Service) removeLocked(resourceID string, userID int64) {
	delete(s.locks, resourceID)
	if held := s.byHolder[userID]; held != nil {
		delete(held, resourceID)
		if len(held) == 0 {
			delete(s.byHolder, userID)
		}
	}
}

// fireExpire invokes the expiry callback outside the mutex.
func (s *Service) fireExpire(l *Lock) {
	if l == nil {
		return
	}
	s.logger.Debug("lock expired", "resource_id", l.ResourceID, "holder_id", l.HolderID)
	if s.onExpire != nil {
		s.onExpire(*l)
	}
}

func holderLabel(l *Lock) string {
	if l.HolderName != "" {
		return l.HolderName
	}
	return fmt.Sprintf("user %d", l.HolderID)
}
