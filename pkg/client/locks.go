package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sceneflow-dev/sceneflow/pkg/lock"
)

// LockClient talks to the hub's lock REST API.
type LockClient struct {
	base    string
	token   string
	timeout time.Duration
	http    *http.Client
}

func newLockClient(config *Config) *LockClient {
	return &LockClient{
		base:    config.APIBase,
		token:   config.Token,
		timeout: config.RequestTimeout,
		http:    &http.Client{},
	}
}

// Acquire takes or refreshes a lock on a resource. A hard lock held by
// someone else returns ErrAlreadyLocked; a soft lock held by someone
// else succeeds with a warning in the result.
func (lc *LockClient) Acquire(ctx context.Context, resourceID string, kind lock.Kind, reason string, duration time.Duration) (*lock.AcquireResult, error) {
	body := map[string]any{
		"resource_id": resourceID,
		"lock_type":   string(kind),
	}
	if reason != "" {
		body["reason"] = reason
	}
	if duration > 0 {
		body["duration_minutes"] = int(duration / time.Minute)
	}

	var result lock.AcquireResult
	if err := lc.do(ctx, http.MethodPost, "/api/locks/acquire", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Release gives up a lock the caller holds.
func (lc *LockClient) Release(ctx context.Context, resourceID string) error {
	return lc.do(ctx, http.MethodPost, "/api/locks/release",
		map[string]any{"resource_id": resourceID}, nil)
}

// Get fetches the lock on a resource, nil when unlocked.
func (lc *LockClient) Get(ctx context.Context, resourceID string) (*lock.Lock, error) {
	var resp struct {
		Lock *lock.Lock `json:"lock"`
	}
	if err := lc.do(ctx, http.MethodGet, "/api/locks/file/"+url.PathEscape(resourceID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Lock, nil
}

// CheckAccess reports what the caller may do with a resource.
func (lc *LockClient) CheckAccess(ctx context.Context, resourceID string) (*lock.Access, error) {
	var access lock.Access
	if err := lc.do(ctx, http.MethodGet, "/api/locks/file/"+url.PathEscape(resourceID)+"/access", nil, &access); err != nil {
		return nil, err
	}
	return &access, nil
}

// RequestAccess queues the caller for notification when a locked
// resource frees up. The holder is notified over the event channel.
func (lc *LockClient) RequestAccess(ctx context.Context, resourceID string) error {
	return lc.do(ctx, http.MethodPost, "/api/locks/request-access",
		map[string]any{"resource_id": resourceID}, nil)
}

// Requests lists pending access requests for a resource the caller
// holds. Non-holders get ErrNotHolder.
func (lc *LockClient) Requests(ctx context.Context, resourceID string) ([]lock.AccessRequest, error) {
	var resp struct {
		Requests []lock.AccessRequest `json:"requests"`
	}
	if err := lc.do(ctx, http.MethodGet, "/api/locks/file/"+url.PathEscape(resourceID)+"/requests", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

// All lists every active lock in the session.
func (lc *LockClient) All(ctx context.Context) ([]lock.Lock, error) {
	var resp struct {
		Locks []lock.Lock `json:"locks"`
	}
	if err := lc.do(ctx, http.MethodGet, "/api/locks/all", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Locks, nil
}

// Mine lists the caller's active locks.
func (lc *LockClient) Mine(ctx context.Context) ([]lock.Lock, error) {
	var resp struct {
		Locks []lock.Lock `json:"locks"`
	}
	if err := lc.do(ctx, http.MethodGet, "/api/locks/user", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Locks, nil
}

// ReleaseAll releases every lock the caller holds, returning the count.
func (lc *LockClient) ReleaseAll(ctx context.Context) (int, error) {
	var resp struct {
		Released int `json:"released"`
	}
	if err := lc.do(ctx, http.MethodDelete, "/api/locks/user/all", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Released, nil
}

// do performs one authenticated API call and maps error status codes to
// the package's sentinel errors.
func (lc *LockClient) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, lc.timeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, lc.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+lc.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := lc.http.Do(req)
	if err != nil {
		// A deadline is not a transport failure: the hub may have
		// applied the request before the response was lost.
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusConflict:
		return ErrAlreadyLocked
	case http.StatusForbidden:
		return ErrNotHolder
	case http.StatusNotFound:
		return ErrNotLocked
	default:
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("client: lock api: %s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("client: lock api: status %d", resp.StatusCode)
	}
}
