package client

import (
	"log/slog"
	"sync"

	"github.com/sceneflow-dev/sceneflow/pkg/protocol"
)

// Handler receives one decoded event. Handlers run on the dispatch
// goroutine; blocking here stalls event delivery.
type Handler func(m *protocol.Message)

type subscription struct {
	id int64
	fn Handler
}

// router maps event types to handler lists. Registration order is
// preserved; a handler panic is contained to that handler.
type router struct {
	mu       sync.Mutex
	nextID   int64
	handlers map[protocol.EventType][]subscription
}

func newRouter() *router {
	return &router{handlers: make(map[protocol.EventType][]subscription)}
}

func (r *router) on(t protocol.EventType, fn Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[t] = append(r.handlers[t], subscription{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.handlers[t]
		for i, s := range subs {
			if s.id == id {
				r.handlers[t] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// dispatch invokes handlers for the message: concrete type first, then
// wildcard subscribers.
func (r *router) dispatch(logger *slog.Logger, m *protocol.Message) {
	r.mu.Lock()
	subs := make([]subscription, 0, len(r.handlers[m.Type])+len(r.handlers[protocol.EventAny]))
	subs = append(subs, r.handlers[m.Type]...)
	if m.Type != protocol.EventAny {
		subs = append(subs, r.handlers[protocol.EventAny]...)
	}
	r.mu.Unlock()

	for _, s := range subs {
		invoke(logger, s.fn, m)
	}
}

// invoke isolates handler panics so one bad handler cannot kill the
// dispatch loop.
func invoke(logger *slog.Logger, fn Handler, m *protocol.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("event handler panicked", "type", m.Type, "panic", rec)
		}
	}()
	fn(m)
}
