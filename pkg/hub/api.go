package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sceneflow-dev/sceneflow/pkg/lock"
	"github.com/sceneflow-dev/sceneflow/pkg/protocol"
)

type contextKey string

const identityKey contextKey = "sceneflow.identity"

// identityFrom extracts the authenticated identity set by requireAuth.
func identityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}

// Routes builds the HTTP surface: the WebSocket endpoint, the lock API,
// metrics, and health.
func (h *Hub) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/collaboration/ws", h.handleWebSocket)

	r.Route("/api/locks", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/acquire", h.traced("locks.acquire", h.handleAcquire))
		r.Post("/release", h.traced("locks.release", h.handleRelease))
		r.Post("/request-access", h.traced("locks.request_access", h.handleRequestAccess))
		r.Get("/all", h.traced("locks.all", h.handleAllLocks))
		r.Get("/user", h.traced("locks.user", h.handleUserLocks))
		r.Delete("/user/all", h.traced("locks.release_all", h.handleReleaseAll))
		r.Get("/file/{resourceID}", h.traced("locks.get", h.handleGetLock))
		r.Get("/file/{resourceID}/access", h.traced("locks.access", h.handleCheckAccess))
		r.Get("/file/{resourceID}/requests", h.traced("locks.requests", h.handleListRequests))
	})

	if g, ok := h.config.Registry.(prometheus.Gatherer); ok {
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": h.ConnectionCount(),
			"locks":       h.locks.Count(),
		})
	})

	return r
}

// handleWebSocket authenticates the upgrade via the token query parameter
// and hands the connection to a Client. Auth failures upgrade first so
// the close code reaches the browser, which cannot read handshake errors.
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  h.config.ReadBufferSize,
		WriteBufferSize: h.config.WriteBufferSize,
		CheckOrigin:     h.config.CheckOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	identity, err := ParseToken(h.config.JWTSecret, r.URL.Query().Get("token"))
	if err != nil {
		code := protocol.CloseInvalidToken
		if errors.Is(err, ErrInvalidUser) {
			code = protocol.CloseInvalidUser
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, err.Error()))
		_ = conn.Close()
		return
	}

	newClient(h, conn, *identity).run()
}

// requireAuth validates the Authorization bearer token and stores the
// identity in the request context.
func (h *Hub) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		identity, err := ParseToken(h.config.JWTSecret, tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// traced wraps a handler in an OTel span named after the operation.
func (h *Hub) traced(op string, fn http.HandlerFunc) http.HandlerFunc {
	tracer := otel.Tracer("sceneflow/hub")
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), op,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.method", r.Method)))
		defer span.End()
		if id, ok := identityFrom(ctx); ok {
			span.SetAttributes(attribute.Int64("user.id", id.UserID))
		}
		fn(w, r.WithContext(ctx))
	}
}

type acquireRequest struct {
	ResourceID      string `json:"resource_id"`
	LockType        string `json:"lock_type"`
	Reason          string `json:"reason,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type releaseRequest struct {
	ResourceID string `json:"resource_id"`
}

func (h *Hub) handleAcquire(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	var req acquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ResourceID == "" {
		h.metrics.lockOpsTotal.WithLabelValues("acquire", "bad_request").Inc()
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind := lock.Kind(req.LockType)
	if req.LockType == "" {
		kind = lock.KindSoft
	}
	duration := time.Duration(req.DurationMinutes) * time.Minute

	result, err := h.locks.Acquire(req.ResourceID, identity.UserID, identity.Name, kind, req.Reason, duration)
	switch {
	case err == nil:
	case errors.Is(err, lock.ErrInvalidKind):
		h.metrics.lockOpsTotal.WithLabelValues("acquire", "bad_request").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, lock.ErrAlreadyLocked):
		h.metrics.lockOpsTotal.WithLabelValues("acquire", "conflict").Inc()
		var conflict *lock.ConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error": err.Error(),
				"lock":  conflict.Lock,
			})
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	default:
		h.metrics.lockOpsTotal.WithLabelValues("acquire", "error").Inc()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.metrics.lockOpsTotal.WithLabelValues("acquire", "ok").Inc()
	h.NotifyLocked(result.Lock)
	writeJSON(w, http.StatusOK, result)
}

func (h *Hub) handleRelease(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ResourceID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.locks.Release(req.ResourceID, identity.UserID)
	switch {
	case err == nil:
	case errors.Is(err, lock.ErrNotLocked):
		h.metrics.lockOpsTotal.WithLabelValues("release", "not_locked").Inc()
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, lock.ErrNotHolder):
		h.metrics.lockOpsTotal.WithLabelValues("release", "forbidden").Inc()
		writeError(w, http.StatusForbidden, err.Error())
		return
	default:
		h.metrics.lockOpsTotal.WithLabelValues("release", "error").Inc()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.metrics.lockOpsTotal.WithLabelValues("release", "ok").Inc()
	h.NotifyUnlocked(lock.Lock{ResourceID: req.ResourceID, HolderID: identity.UserID}, result.Notify)
	writeJSON(w, http.StatusOK, map[string]any{"released": true})
}

func (h *Hub) handleRequestAccess(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ResourceID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.locks.RequestAccess(req.ResourceID, identity.UserID, identity.Name)
	if err != nil {
		if errors.Is(err, lock.ErrNotLocked) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.NotifyAccessRequested(result.HolderID, result.Request)
	writeJSON(w, http.StatusOK, map[string]any{"requested": true})
}

func (h *Hub) handleGetLock(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "resourceID")
	writeJSON(w, http.StatusOK, map[string]any{"lock": h.locks.Get(resourceID)})
}

func (h *Hub) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	resourceID := chi.URLParam(r, "resourceID")
	writeJSON(w, http.StatusOK, h.locks.CheckAccess(resourceID, identity.UserID))
}

func (h *Hub) handleListRequests(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	resourceID := chi.URLParam(r, "resourceID")

	requests, err := h.locks.Requests(resourceID, identity.UserID)
	if err != nil {
		if errors.Is(err, lock.ErrNotHolder) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (h *Hub) handleAllLocks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"locks": h.locks.All()})
}

func (h *Hub) handleUserLocks(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"locks": h.locks.User(identity.UserID)})
}

func (h *Hub) handleReleaseAll(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	released := h.locks.ReleaseAllForUser(identity.UserID, false)
	for _, rel := range released {
		h.NotifyUnlocked(lock.Lock{ResourceID: rel.ResourceID, HolderID: identity.UserID}, rel.Notify)
	}
	writeJSON(w, http.StatusOK, map[string]any{"released": len(released)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
