// Package realtimetest runs an in-process real-time server for tests. It
// speaks the same envelope as the production server, validates session
// tokens, tracks room joins and can drop or refuse connections on demand.
package realtimetest

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/client/internal/auth"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Replier answers an inbound event. Returning false sends nothing.
type Replier func(in Event) (Event, bool)

// Server is a fake real-time server.
type Server struct {
	srv    *httptest.Server
	hub    *Hub
	secret string

	mu       sync.Mutex
	reject   bool
	dials    int
	received []Event
	repliers map[string]Replier
}

// NewServer starts a server. A non-empty secret makes it require a valid
// ?token= signed with that secret.
func NewServer(secret string) *Server {
	s := &Server{
		hub:      newHub(),
		secret:   secret,
		repliers: make(map[string]Replier),
	}
	go s.hub.run()

	r := chi.NewRouter()
	r.With(s.gate, authenticate(secret)).Get("/ws", s.serveWS)
	s.srv = httptest.NewServer(r)
	return s
}

// URL is the ws:// endpoint to dial.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

// Close drops every connection and stops the server.
func (s *Server) Close() {
	s.hub.dropAll()
	close(s.hub.quit)
	s.srv.Close()
}

// SetReject makes the server refuse (true) or accept (false) new handshakes.
func (s *Server) SetReject(reject bool) {
	s.mu.Lock()
	s.reject = reject
	s.mu.Unlock()
}

// Dials is the number of handshakes attempted so far, refused ones included.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Received returns the events clients sent, in arrival order.
func (s *Server) Received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.received...)
}

// Reply registers fn to answer inbound events of eventType.
func (s *Server) Reply(eventType string, fn Replier) {
	s.mu.Lock()
	s.repliers[eventType] = fn
	s.mu.Unlock()
}

// Clients is the number of connected clients.
func (s *Server) Clients() int {
	return s.hub.count()
}

// RoomMembers is the number of clients in room, e.g. "order:7" or "table:3".
func (s *Server) RoomMembers(room string) int {
	return s.hub.members(room)
}

// WaitForClients polls until n clients are connected or timeout passes.
func (s *Server) WaitForClients(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.hub.count() == n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// Broadcast sends an event to every connected client.
func (s *Server) Broadcast(ev Event) {
	s.hub.broadcast <- &roomEvent{Event: ev}
}

// BroadcastToRoom sends an event to the clients that joined room.
func (s *Server) BroadcastToRoom(room string, ev Event) {
	s.hub.broadcast <- &roomEvent{Room: room, Event: ev}
}

// DropAll closes every connection abruptly, as a crashed server would.
func (s *Server) DropAll() {
	s.hub.dropAll()
}

// gate counts every handshake and refuses it while the server rejects.
func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.dials++
		reject := s.reject
		s.mu.Unlock()

		if reject {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// serveWS handles WebSocket requests from clients
// Endpoint: WS /ws?token=JWT
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := &client{
		server: s,
		conn:   conn,
		claims: claimsFromContext(r.Context()),
		send:   make(chan []byte, 256),
	}
	select {
	case s.hub.register <- c:
	case <-s.hub.quit:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (s *Server) record(c *client, ev Event) {
	s.mu.Lock()
	s.received = append(s.received, ev)
	reply := s.repliers[ev.Type]
	s.mu.Unlock()

	var ids struct {
		OrderID int64 `json:"order_id"`
		TableID int64 `json:"table_id"`
	}
	_ = json.Unmarshal(ev.Payload, &ids)

	if !permitted(c.claims, ev.Type) {
		s.sendTo(c, NewEvent("error", map[string]string{"message": "Permission denied"}))
		return
	}

	switch ev.Type {
	case "join_order_room":
		s.hub.join(c, fmt.Sprintf("order:%d", ids.OrderID))
	case "leave_order_room":
		s.hub.leave(c, fmt.Sprintf("order:%d", ids.OrderID))
	case "join_table_room":
		s.hub.join(c, fmt.Sprintf("table:%d", ids.TableID))
	}

	if reply == nil {
		return
	}
	if out, ok := reply(ev); ok {
		s.sendTo(c, out)
	}
}

// sendTo queues ev for one client if it is still registered.
func (s *Server) sendTo(c *client, ev Event) {
	message, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	if s.hub.clients[c] {
		select {
		case c.send <- message:
		default:
		}
	}
}

// client is a single server-side WebSocket connection
type client struct {
	server *Server
	conn   *websocket.Conn
	claims *auth.Claims
	send   chan []byte
}

// readPump records inbound events until the connection fails
func (c *client) readPump() {
	hub := c.server.hub
	defer func() {
		select {
		case hub.unregister <- c:
		case <-hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			log.Printf("realtimetest: bad frame: %v", err)
			continue
		}
		c.server.record(c, ev)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
