package realtimetest

import (
	"encoding/json"
	"sync"
)

// Event is a frame exchanged with the client
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an Event. It panics on unmarshalable input,
// which is a bug in the calling test.
func NewEvent(eventType string, payload any) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return Event{Type: eventType, Payload: raw}
}

// roomEvent routes an event to one room, or to every client when Room is empty
type roomEvent struct {
	Room  string
	Event Event
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Every connected client
	clients map[*client]bool

	// Room memberships joined by clients
	rooms map[string]map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan *roomEvent
	quit       chan struct{}

	mu sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		rooms:      make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan *roomEvent, 256),
		quit:       make(chan struct{}),
	}
}

// run is the hub's main loop
func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(c)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			message, err := json.Marshal(ev.Event)
			if err != nil {
				continue
			}

			h.mu.Lock()
			targets := h.clients
			if ev.Room != "" {
				targets = h.rooms[ev.Room]
			}
			for c := range targets {
				select {
				case c.send <- message:
				default:
					// Client's send buffer is full, drop it
					h.removeLocked(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) removeLocked(c *client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
	for room, members := range h.rooms {
		delete(members, c)
		// Clean up empty rooms
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]bool)
	}
	h.rooms[room][c] = true
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// dropAll closes every connection without a close handshake
func (h *Hub) dropAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.conn.Close()
	}
}
