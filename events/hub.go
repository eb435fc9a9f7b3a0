package events

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// client serializes writes; a websocket.Conn allows one writer at a time
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(evt)
}

// Hub relays events to WebSocket subscribers of each run
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
	last     map[string]Event
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*client]struct{}),
		last: make(map[string]Event),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish broadcasts to every connection watching evt.RunID. Dead
// connections are dropped.
func (h *Hub) Publish(ctx context.Context, evt Event) error {
	h.mu.Lock()
	h.last[evt.RunID] = evt
	clients := make([]*client, 0, len(h.subs[evt.RunID]))
	for c := range h.subs[evt.RunID] {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.write(evt); err != nil {
			h.drop(evt.RunID, c)
		}
	}
	return nil
}

// Last returns the most recent event seen for a run
func (h *Hub) Last(runID string) (Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	evt, ok := h.last[runID]
	return evt, ok
}

// Subscribers counts live connections for a run
func (h *Hub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[runID])
}

// ServeWS upgrades the request and streams runID's events until the client
// goes away. initial, when set, is sent first.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, runID string, initial *Event) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[events] websocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn}

	if initial != nil {
		_ = c.write(*initial)
	}

	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[*client]struct{})
	}
	h.subs[runID][c] = struct{}{}
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(runID, c)
}

func (h *Hub) drop(runID string, c *client) {
	h.mu.Lock()
	if _, ok := h.subs[runID][c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs[runID], c)
	if len(h.subs[runID]) == 0 {
		delete(h.subs, runID)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}
