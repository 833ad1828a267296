package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLockAPITimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	lc := newLockClient((&Config{
		URL:            "ws://ignored/collaboration/ws",
		Token:          "t",
		APIBase:        srv.URL,
		RequestTimeout: 30 * time.Millisecond,
	}).withDefaults())

	err := lc.Release(context.Background(), "file:scene.usd")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	// A deadline is an ambiguous outcome, not a transport failure; the
	// two classes must stay distinguishable.
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		t.Errorf("timeout surfaced as NetworkError: %v", err)
	}
}

func TestLockAPIUnreachable(t *testing.T) {
	lc := newLockClient((&Config{
		URL:     "ws://ignored/collaboration/ws",
		Token:   "t",
		APIBase: "http://127.0.0.1:1",
	}).withDefaults())

	err := lc.Release(context.Background(), "file:scene.usd")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %v, want NetworkError", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("unreachable endpoint misclassified as timeout")
	}
}
