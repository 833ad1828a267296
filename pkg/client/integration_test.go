package client

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sceneflow-dev/sceneflow/pkg/hub"
	"github.com/sceneflow-dev/sceneflow/pkg/lock"
	"github.com/sceneflow-dev/sceneflow/pkg/protocol"
)

var integrationSecret = []byte("client-test-secret")

func newTestHub(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := hub.DefaultConfig()
	cfg.JWTSecret = integrationSecret
	cfg.Registry = prometheus.NewRegistry()

	h := hub.New(cfg)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	t.Cleanup(h.Shutdown)
	return srv
}

func mintClientToken(t *testing.T, userID int64, name string) string {
	t.Helper()
	token, err := hub.MintToken(integrationSecret, hub.Identity{
		UserID: userID, Name: name, Color: "#abcdef",
	}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func connectTestClient(t *testing.T, srv *httptest.Server, userID int64, name string) *Client {
	t.Helper()

	token := mintClientToken(t, userID, name)

	c := New(&Config{
		URL:           "ws" + strings.TrimPrefix(srv.URL, "http") + "/collaboration/ws",
		Token:         token,
		TypingTimeout: 150 * time.Millisecond,
	})
	t.Cleanup(c.Disconnect)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect user %d: %v", userID, err)
	}
	return c
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestClientConnectSession(t *testing.T) {
	srv := newTestHub(t)
	c := connectTestClient(t, srv, 1, "Ada")

	if got := c.State().Phase; got != PhaseOpen {
		t.Fatalf("phase = %v, want open", got)
	}
	ss := c.Session()
	if ss == nil || len(ss.Users) != 1 || ss.Users[0].UserID != 1 {
		t.Errorf("session = %+v, want self in roster", ss)
	}
}

func TestClientRoomPresence(t *testing.T) {
	srv := newTestHub(t)
	ada := connectTestClient(t, srv, 1, "Ada")
	grace := connectTestClient(t, srv, 2, "Grace")

	if err := ada.JoinRoom("scene:alpha"); err != nil {
		t.Fatal(err)
	}
	if err := grace.JoinRoom("scene:alpha"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		return len(ada.Presence("scene:alpha")) == 2
	}, "ada never saw both users in the room")

	if err := grace.LeaveRoom("scene:alpha"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		roster := ada.Presence("scene:alpha")
		return len(roster) == 1 && roster[0].UserID == 1
	}, "ada never saw grace leave")
}

func TestClientTypingAutoStop(t *testing.T) {
	srv := newTestHub(t)
	ada := connectTestClient(t, srv, 1, "Ada")
	grace := connectTestClient(t, srv, 2, "Grace")

	if err := ada.JoinRoom("chat"); err != nil {
		t.Fatal(err)
	}
	if err := grace.JoinRoom("chat"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		return len(ada.Presence("chat")) == 2
	}, "room never settled")

	if err := grace.StartTyping("chat"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		typers := ada.TypingUsers("chat")
		return len(typers) == 1 && typers[0].UserID == 2
	}, "ada never saw grace typing")

	// No further keystrokes; the indicator clears on its own.
	waitFor(t, func() bool {
		return len(ada.TypingUsers("chat")) == 0
	}, "typing indicator never auto-stopped")
}

func TestClientCursorRelay(t *testing.T) {
	srv := newTestHub(t)
	ada := connectTestClient(t, srv, 1, "Ada")
	grace := connectTestClient(t, srv, 2, "Grace")

	if err := ada.JoinRoom("doc"); err != nil {
		t.Fatal(err)
	}
	if err := grace.JoinRoom("doc"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		return len(ada.Presence("doc")) == 2
	}, "room never settled")

	grace.UpdateCursor("doc", "file:readme", protocol.Position{Line: 12, Column: 3}, nil)

	waitFor(t, func() bool {
		cursors := ada.Cursors("doc")
		return len(cursors) == 1 && cursors[0].UserID == 2 &&
			cursors[0].Position.Line == 12
	}, "ada never saw grace's cursor")

	grace.Disconnect()
	waitFor(t, func() bool {
		return len(ada.Cursors("doc")) == 0
	}, "cursor not purged after disconnect")
}

func TestClientLockAPI(t *testing.T) {
	srv := newTestHub(t)
	ada := connectTestClient(t, srv, 1, "Ada")
	grace := connectTestClient(t, srv, 2, "Grace")
	ctx := context.Background()

	result, err := grace.Locks().Acquire(ctx, "file:scene.usd", lock.KindHard, "lighting pass", 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if result.Lock.HolderID != 2 {
		t.Errorf("holder = %d, want 2", result.Lock.HolderID)
	}

	if _, err := ada.Locks().Acquire(ctx, "file:scene.usd", lock.KindHard, "", 0); !errors.Is(err, ErrAlreadyLocked) {
		t.Errorf("conflicting acquire = %v, want ErrAlreadyLocked", err)
	}
	if err := ada.Locks().Release(ctx, "file:scene.usd"); !errors.Is(err, ErrNotHolder) {
		t.Errorf("foreign release = %v, want ErrNotHolder", err)
	}

	access, err := ada.Locks().CheckAccess(ctx, "file:scene.usd")
	if err != nil {
		t.Fatalf("check access: %v", err)
	}
	if access.CanEdit || !access.CanView {
		t.Errorf("access = %+v, want view-only", access)
	}

	if err := grace.Locks().Release(ctx, "file:scene.usd"); err != nil {
		t.Fatalf("release: %v", err)
	}
	l, err := grace.Locks().Get(ctx, "file:scene.usd")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if l != nil {
		t.Errorf("lock after release = %+v, want nil", l)
	}
}

// wsProxy is a TCP relay in front of the hub so tests can sever live
// connections without a close frame, the way a dropped network does.
type wsProxy struct {
	ln     net.Listener
	target string

	mu    sync.Mutex
	conns []net.Conn
}

func newWSProxy(t *testing.T, srv *httptest.Server) *wsProxy {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	p := &wsProxy{ln: ln, target: strings.TrimPrefix(srv.URL, "http://")}
	go p.serve()
	t.Cleanup(p.close)
	return p
}

func (p *wsProxy) serve() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		upstream, err := net.Dial("tcp", p.target)
		if err != nil {
			conn.Close()
			continue
		}
		p.mu.Lock()
		p.conns = append(p.conns, conn, upstream)
		p.mu.Unlock()
		go func() { _, _ = io.Copy(upstream, conn); upstream.Close() }()
		go func() { _, _ = io.Copy(conn, upstream); conn.Close() }()
	}
}

func (p *wsProxy) url() string {
	return "ws://" + p.ln.Addr().String() + "/collaboration/ws"
}

// drop severs every proxied connection abnormally. The listener stays
// up, so reconnect attempts succeed.
func (p *wsProxy) drop() {
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func (p *wsProxy) close() {
	p.ln.Close()
	p.drop()
}

func TestClientReconnectRejoinsRooms(t *testing.T) {
	srv := newTestHub(t)
	proxy := newWSProxy(t, srv)

	var sawReconnecting atomic.Bool
	ada := New(&Config{
		URL:           proxy.url(),
		APIBase:       srv.URL,
		Token:         mintClientToken(t, 1, "Ada"),
		ReconnectBase: 20 * time.Millisecond,
		OnStateChange: func(s State) {
			if s.Phase == PhaseReconnecting {
				sawReconnecting.Store(true)
			}
		},
	})
	t.Cleanup(ada.Disconnect)

	if err := ada.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := ada.JoinRoom("scene:alpha"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		return len(ada.Presence("scene:alpha")) == 1
	}, "room never settled")

	proxy.drop()

	waitFor(t, func() bool {
		return sawReconnecting.Load() && ada.State().Phase == PhaseOpen
	}, "client never reconnected")

	grace := connectTestClient(t, srv, 2, "Grace")
	if err := grace.JoinRoom("scene:alpha"); err != nil {
		t.Fatal(err)
	}

	// Grace's join broadcast only reaches Ada if Ada re-entered the room
	// after the drop.
	waitFor(t, func() bool {
		return len(ada.Presence("scene:alpha")) == 2
	}, "room not rejoined after reconnect")
}

func TestClientReconnectExhaustion(t *testing.T) {
	srv := newTestHub(t)
	proxy := newWSProxy(t, srv)

	c := New(&Config{
		URL:           proxy.url(),
		APIBase:       srv.URL,
		Token:         mintClientToken(t, 1, "Ada"),
		ReconnectBase: 5 * time.Millisecond,
		DialTimeout:   250 * time.Millisecond,
	})
	t.Cleanup(c.Disconnect)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Take the endpoint away entirely; every backoff attempt must fail.
	proxy.close()

	waitFor(t, func() bool {
		return c.State().Phase == PhaseExhausted
	}, "client never exhausted its reconnect budget")
	if err := c.Err(); !errors.Is(err, ErrConnectionExhausted) {
		t.Errorf("Err = %v, want ErrConnectionExhausted", err)
	}
}

func TestClientServerCloseSuppressesReconnect(t *testing.T) {
	cfg := hub.DefaultConfig()
	cfg.JWTSecret = integrationSecret
	cfg.Registry = prometheus.NewRegistry()
	h := hub.New(cfg)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	c := connectTestClient(t, srv, 1, "Ada")

	// An orderly server shutdown closes with a normal code; the client
	// must not burn reconnect attempts on it.
	h.Shutdown()

	waitFor(t, func() bool {
		return c.State().Phase == PhaseIdle
	}, "client never settled in idle after server close")
}
