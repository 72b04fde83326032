package stream

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ribit-api/internal/observability"
)

// Subscriber wraps one viewer connection. The mutex serializes writes;
// refresh carries at most one pending "new data arrived" hint so the
// stream loop can push ahead of its next tick.
type Subscriber struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	refresh chan struct{}
}

func (s *Subscriber) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Refresh is the channel the stream loop selects on alongside its ticker.
func (s *Subscriber) Refresh() <-chan struct{} {
	return s.refresh
}

func (s *Subscriber) Close() error {
	return s.conn.Close()
}

// Hub tracks websocket viewers per tracking session. The ingest path uses
// Notify to wake viewers as soon as a fresh sample arrives instead of
// waiting out the stream interval.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[*Subscriber]struct{})}
}

func (h *Hub) Add(sessionID string, conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{conn: conn, refresh: make(chan struct{}, 1)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*Subscriber]struct{})
	}
	h.sessions[sessionID][sub] = struct{}{}
	observability.StreamSubscribers.Inc()
	return sub
}

func (h *Hub) Remove(sessionID string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; ok {
		delete(subs, sub)
		observability.StreamSubscribers.Dec()
	}
	if len(subs) == 0 {
		delete(h.sessions, sessionID)
	}
}

// Notify wakes every viewer of the session; a viewer that already has a
// pending hint is not queued twice. Returns the number of viewers woken.
func (h *Hub) Notify(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	woken := 0
	for sub := range h.sessions[sessionID] {
		select {
		case sub.refresh <- struct{}{}:
			woken++
		default:
		}
	}
	return woken
}

func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
