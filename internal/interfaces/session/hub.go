package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Hub tracks the open sessions of one transport.
type Hub struct {
	transport  string
	dispatcher Dispatcher
	opts       Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewHub(transport string, dispatcher Dispatcher, opts Options) *Hub {
	return &Hub{transport: transport, dispatcher: dispatcher, opts: opts, sessions: map[string]*Session{}}
}

// Open starts a session bound to ctx. The hub forgets it once it ends.
func (h *Hub) Open(ctx context.Context) *Session {
	s := New(ctx, uuid.NewString(), h.transport, h.dispatcher, h.opts)
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()

	go func() {
		<-s.Done()
		h.mu.Lock()
		delete(h.sessions, s.ID())
		h.mu.Unlock()
	}()
	return s
}

// Get returns the open session with id.
func (h *Hub) Get(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Len is the number of open sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll ends every open session.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	open := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.RUnlock()
	for _, s := range open {
		s.Close()
	}
}
