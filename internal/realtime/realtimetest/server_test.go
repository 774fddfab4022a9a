package realtimetest

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/client/internal/auth"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal %s: %v", msg, err)
	}
	return ev
}

func TestClientRegistration(t *testing.T) {
	s := NewServer("")
	defer s.Close()

	conn := dial(t, s.URL())
	defer conn.Close()

	if !s.WaitForClients(1, time.Second) {
		t.Fatal("client not registered")
	}

	conn.Close()
	if !s.WaitForClients(0, time.Second) {
		t.Fatal("client not unregistered after close")
	}
}

func TestBroadcastToRoom(t *testing.T) {
	s := NewServer("")
	defer s.Close()

	joined := dial(t, s.URL())
	defer joined.Close()
	other := dial(t, s.URL())
	defer other.Close()

	join, _ := json.Marshal(NewEvent("join_order_room", map[string]int{"order_id": 7}))
	if err := joined.WriteMessage(websocket.TextMessage, join); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for s.RoomMembers("order:7") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("room join not recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	testPayload := json.RawMessage(`{"order_id":7,"new_status":"ready"}`)
	s.BroadcastToRoom("order:7", Event{Type: "order_status_updated", Payload: testPayload})

	received := readEvent(t, joined)
	if received.Type != "order_status_updated" {
		t.Errorf("expected type 'order_status_updated', got '%s'", received.Type)
	}
	if string(received.Payload) != string(testPayload) {
		t.Errorf("expected payload '%s', got '%s'", testPayload, received.Payload)
	}

	// The other client is not in the room
	other.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatal("client outside the room received the event")
	}

	if got := s.Received(); len(got) != 1 || got[0].Type != "join_order_room" {
		t.Errorf("unexpected received events %+v", got)
	}
}

func TestReply(t *testing.T) {
	s := NewServer("")
	defer s.Close()
	s.Reply("get_real_time_stats", func(Event) (Event, bool) {
		return NewEvent("real_time_stats", map[string]int{"total_orders": 3}), true
	})

	conn := dial(t, s.URL())
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"get_real_time_stats"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, conn); ev.Type != "real_time_stats" {
		t.Errorf("unexpected reply %+v", ev)
	}
}

func TestRejectAndTokenCheck(t *testing.T) {
	s := NewServer("secret")
	defer s.Close()

	_, resp, err := websocket.DefaultDialer.Dial(s.URL(), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got err=%v", err)
	}

	token, err := auth.GenerateToken("secret", uuid.New(), auth.RoleStaff, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	conn := dial(t, s.URL()+"?token="+token)
	conn.Close()

	s.SetReject(true)
	_, resp, err = websocket.DefaultDialer.Dial(s.URL()+"?token="+token, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while rejecting, got err=%v", err)
	}

	if s.Dials() != 3 {
		t.Errorf("dials: got %d, want 3", s.Dials())
	}
}

func TestRolePermissions(t *testing.T) {
	s := NewServer("secret")
	defer s.Close()
	s.Reply("get_real_time_stats", func(Event) (Event, bool) {
		return NewEvent("real_time_stats", map[string]int{"total_orders": 1}), true
	})

	tests := []struct {
		role string
		want string
	}{
		{auth.RoleAdmin, "real_time_stats"},
		{auth.RoleStaff, "error"},
		{auth.RoleCustomer, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			token, err := auth.GenerateToken("secret", uuid.New(), tt.role, time.Minute)
			if err != nil {
				t.Fatalf("generate token: %v", err)
			}
			conn := dial(t, s.URL()+"?token="+token)
			defer conn.Close()

			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"get_real_time_stats"}`)); err != nil {
				t.Fatalf("write: %v", err)
			}
			if ev := readEvent(t, conn); ev.Type != tt.want {
				t.Errorf("got %s, want %s", ev.Type, tt.want)
			}
		})
	}
}

func TestBearerHeaderAndCustomerTableRoom(t *testing.T) {
	s := NewServer("secret")
	defer s.Close()

	token, err := auth.GenerateToken("secret", uuid.New(), auth.RoleCustomer, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(s.URL(), header)
	if err != nil {
		t.Fatalf("dial with bearer header: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join_table_room","payload":{"table_id":4}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readEvent(t, conn)
	var body struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(ev.Payload, &body)
	if ev.Type != "error" || body.Message != "Permission denied" {
		t.Errorf("unexpected event %+v", ev)
	}
	if n := s.RoomMembers("table:4"); n != 0 {
		t.Errorf("customer joined a table room: %d", n)
	}
}
