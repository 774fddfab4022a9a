package orderedit_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/client/internal/api"
	"github.com/kiwari-pos/client/internal/filter"
	"github.com/kiwari-pos/client/internal/orderedit"
	"github.com/shopspring/decimal"
)

// --- Mock Notifier ---

type notice struct {
	level, title, message string
}

type mockNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (m *mockNotifier) Notify(level, title, message string) {
	m.mu.Lock()
	m.notices = append(m.notices, notice{level, title, message})
	m.mu.Unlock()
}

func (m *mockNotifier) last() notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.notices) == 0 {
		return notice{}
	}
	return m.notices[len(m.notices)-1]
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notices)
}

// --- Mock Requester ---

type mockRequester struct {
	doFn func(ctx context.Context, method, path string, body, out any) error
}

func (m *mockRequester) Do(ctx context.Context, method, path string, body, out any) error {
	return m.doFn(ctx, method, path, body, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ordersTable() *orderedit.Table {
	return orderedit.NewTable([]orderedit.TableRow{
		{OrderRow: filter.OrderRow{ID: 6, Type: "takeaway", Status: "new"}, Badge: "new", Total: decimal.RequireFromString("40")},
		{OrderRow: filter.OrderRow{ID: 7, Type: "dine_in", Status: "new"}, Badge: "new", Total: decimal.RequireFromString("120")},
	})
}

type fakeAPI struct {
	mu      sync.Mutex
	putBody []byte
	csrf    string
	putResp func(w http.ResponseWriter)
}

func newFakeAPI(t *testing.T) (*fakeAPI, *api.Client) {
	t.Helper()
	f := &fakeAPI{}
	r := chi.NewRouter()
	r.Get("/api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch chi.URLParam(r, "id") {
		case "7":
			writeJSON(w, http.StatusOK, map[string]any{
				"status": "success",
				"data": map[string]any{
					"order_id":     7,
					"status":       "new",
					"notes":        "no onions",
					"total_amount": "120.00",
					"items": []map[string]any{
						{"id": 101, "name": "Burger", "unit_price": "60.00", "quantity": 2},
					},
				},
			})
		case "8":
			writeJSON(w, http.StatusOK, map[string]any{
				"order_id": 8,
				"total":    15.5,
				"items": []map[string]any{
					{"item_id": 55, "name": "Tea", "quantity": 1, "note": "sugar"},
					{"name": "Mystery", "quantity": 1},
				},
			})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Order not found"})
		}
	})
	r.Put("/api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.putBody = body
		f.csrf = r.Header.Get("X-CSRFToken")
		respond := f.putResp
		f.mu.Unlock()
		if respond != nil {
			respond(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"data":   map[string]any{"order_id": 7, "status": "Processing", "total_amount": "180.00"},
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, api.New(srv.URL, "csrf-abc", nil)
}

func TestEditScenarioUpdatesRowInPlace(t *testing.T) {
	f, client := newFakeAPI(t)
	table := ordersTable()
	notes := &mockNotifier{}
	c := orderedit.NewController(client, table, notes)

	buf, err := c.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(buf.Rows) != 1 || buf.Rows[0].ItemID != 101 || buf.Rows[0].Quantity != 2 {
		t.Fatalf("unexpected rows %+v", buf.Rows)
	}
	if buf.DisplayTotal() != "120.00 EGP" || buf.Notes != "no onions" {
		t.Errorf("unexpected buffer %+v", buf)
	}

	buf.SetQuantity(0, 3)
	buf.Status = "processing"
	if err := c.Save(context.Background(), 7, buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	f.mu.Lock()
	body, csrf := string(f.putBody), f.csrf
	f.mu.Unlock()
	want := `{"items":[{"item_id":101,"quantity":3,"note":""}],"notes":"no onions","status":"processing"}`
	if body != want {
		t.Errorf("PUT body:\n got %s\nwant %s", body, want)
	}
	if csrf != "csrf-abc" {
		t.Errorf("csrf header %q", csrf)
	}

	row, ok := table.Row(7)
	if !ok {
		t.Fatal("row 7 missing")
	}
	if row.DisplayTotal() != "180.00 EGP" || row.Badge != "Processing" || row.Status != "processing" {
		t.Errorf("row not updated: %+v", row)
	}
	if other, _ := table.Row(6); other.DisplayTotal() != "40.00 EGP" {
		t.Errorf("row 6 touched: %+v", other)
	}
	if c.Session() != nil {
		t.Error("session should close after a successful save")
	}
	if n := notes.last(); n.level != "success" || n.message != "Order updated successfully" {
		t.Errorf("notice %+v", n)
	}
}

func TestLoadBareResponseAndItemIDFallback(t *testing.T) {
	_, client := newFakeAPI(t)
	c := orderedit.NewController(client, nil, &mockNotifier{})

	buf, err := c.Load(context.Background(), 8)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if buf.OrderID != 8 || buf.Status != "new" || buf.DisplayTotal() != "15.50 EGP" {
		t.Errorf("unexpected buffer %+v", buf)
	}
	if buf.Rows[0].ItemID != 55 || buf.Rows[0].Note != "sugar" || buf.Rows[1].ItemID != 0 {
		t.Errorf("unexpected rows %+v", buf.Rows)
	}
}

func TestLoadFailureKeepsSession(t *testing.T) {
	_, client := newFakeAPI(t)
	notes := &mockNotifier{}
	c := orderedit.NewController(client, nil, notes)

	if _, err := c.Load(context.Background(), 7); err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err := c.Load(context.Background(), 404)
	var se *api.ServerError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("expected 404 ServerError, got %v", err)
	}
	if s := c.Session(); s == nil || s.OrderID != 7 {
		t.Errorf("session changed on failure: %+v", s)
	}
	if n := notes.last(); n.level != "danger" || n.message != "Failed to load order details: Order not found" {
		t.Errorf("notice %+v", n)
	}
}

func TestSaveSkipsRowsWithoutReference(t *testing.T) {
	f, client := newFakeAPI(t)
	c := orderedit.NewController(client, ordersTable(), &mockNotifier{})

	buf, err := c.Load(context.Background(), 8)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Save(context.Background(), 8, buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var sent struct {
		Items []struct {
			ItemID int64 `json:"item_id"`
		} `json:"items"`
	}
	f.mu.Lock()
	_ = json.Unmarshal(f.putBody, &sent)
	f.mu.Unlock()
	if len(sent.Items) != 1 || sent.Items[0].ItemID != 55 {
		t.Errorf("unexpected items %+v", sent.Items)
	}
}

func TestSaveLocalErrors(t *testing.T) {
	calls := 0
	req := &mockRequester{doFn: func(ctx context.Context, method, path string, body, out any) error {
		calls++
		return nil
	}}
	notes := &mockNotifier{}
	c := orderedit.NewController(req, nil, notes)

	tests := []struct {
		name string
		id   int64
		buf  *orderedit.Buffer
		want error
	}{
		{"no order id", 0, &orderedit.Buffer{}, orderedit.ErrNoSession},
		{"nil buffer", 3, nil, orderedit.ErrNoSession},
		{"empty", 3, &orderedit.Buffer{OrderID: 3, Status: "new"}, orderedit.ErrNothingToSave},
		{"only unresolved rows", 3, &orderedit.Buffer{OrderID: 3, Status: "new", Rows: []orderedit.Row{{Name: "x", Quantity: 1}}}, orderedit.ErrNothingToSave},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Save(context.Background(), tt.id, tt.buf); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
	if calls != 0 {
		t.Errorf("local errors must not reach the network, got %d calls", calls)
	}
	if notes.count() != len(tests) {
		t.Errorf("expected a notice per failure, got %d", notes.count())
	}
}

func TestSaveSendsStatusAsLoaded(t *testing.T) {
	var (
		mu   sync.Mutex
		puts []json.RawMessage
	)
	req := &mockRequester{doFn: func(ctx context.Context, method, path string, body, out any) error {
		raw := out.(*json.RawMessage)
		if method == http.MethodGet {
			*raw = json.RawMessage(`{"order_id":9,"status":"preparing","items":[{"item_id":101,"name":"Burger","quantity":2}]}`)
			return nil
		}
		b, _ := json.Marshal(body)
		mu.Lock()
		puts = append(puts, b)
		mu.Unlock()
		*raw = json.RawMessage(`{"order_id":9,"status":"preparing","total":90}`)
		return nil
	}}
	c := orderedit.NewController(req, nil, &mockNotifier{})

	buf, err := c.Load(context.Background(), 9)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	buf.SetQuantity(0, 3)
	if err := c.Save(context.Background(), 9, buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(puts) != 1 {
		t.Fatalf("expected one PUT, got %d", len(puts))
	}
	var sent struct {
		Status string `json:"status"`
		Items  []struct {
			ItemID   int64 `json:"item_id"`
			Quantity int   `json:"quantity"`
		} `json:"items"`
	}
	if err := json.Unmarshal(puts[0], &sent); err != nil {
		t.Fatalf("decode PUT body: %v", err)
	}
	if sent.Status != "preparing" {
		t.Errorf("status %q, want preparing", sent.Status)
	}
	if len(sent.Items) != 1 || sent.Items[0].ItemID != 101 || sent.Items[0].Quantity != 3 {
		t.Errorf("unexpected items %+v", sent.Items)
	}
}

func TestSaveRejectsConcurrentSave(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	req := &mockRequester{doFn: func(ctx context.Context, method, path string, body, out any) error {
		close(started)
		<-release
		*out.(*json.RawMessage) = json.RawMessage(`{"order_id":7,"status":"new","total":40}`)
		return nil
	}}
	c := orderedit.NewController(req, nil, &mockNotifier{})
	buf := &orderedit.Buffer{OrderID: 7, Status: "new", Rows: []orderedit.Row{{ItemID: 101, Quantity: 1}}}

	errc := make(chan error, 1)
	go func() {
		errc <- c.Save(context.Background(), 7, buf)
	}()
	<-started

	if !c.Saving() {
		t.Error("Saving() should be true while a save is in flight")
	}
	if err := c.Save(context.Background(), 7, buf); !errors.Is(err, orderedit.ErrSaving) {
		t.Errorf("second save: got %v, want ErrSaving", err)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("first save: %v", err)
	}
	if c.Saving() {
		t.Error("save control not re-enabled after the save finished")
	}
}

func TestSaveServerFailure(t *testing.T) {
	tests := []struct {
		name    string
		respond func(w http.ResponseWriter)
		message string
	}{
		{
			name: "error status with message",
			respond: func(w http.ResponseWriter) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid status"})
			},
			message: "Invalid status",
		},
		{
			name: "error status without message",
			respond: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			message: "Failed to update order",
		},
		{
			name: "ok status but not success",
			respond: func(w http.ResponseWriter) {
				writeJSON(w, http.StatusOK, map[string]string{"status": "error", "error": "Order is locked"})
			},
			message: "Order is locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, client := newFakeAPI(t)
			f.putResp = tt.respond
			table := ordersTable()
			notes := &mockNotifier{}
			c := orderedit.NewController(client, table, notes)

			buf, err := c.Load(context.Background(), 7)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if err := c.Save(context.Background(), 7, buf); err == nil {
				t.Fatal("expected an error")
			}
			if n := notes.last(); n.message != tt.message {
				t.Errorf("notice %q, want %q", n.message, tt.message)
			}
			if c.Saving() {
				t.Error("save control not re-enabled")
			}
			if c.Session() == nil {
				t.Error("session should stay open for resubmission")
			}
			if row, _ := table.Row(7); row.DisplayTotal() != "120.00 EGP" {
				t.Errorf("row changed on failure: %+v", row)
			}
		})
	}
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	req := &mockRequester{doFn: func(ctx context.Context, method, path string, body, out any) error {
		raw := out.(*json.RawMessage)
		if path == "/api/orders/1" {
			close(started)
			<-release
			*raw = json.RawMessage(`{"order_id":1,"items":[]}`)
			return nil
		}
		*raw = json.RawMessage(`{"order_id":2,"items":[{"id":9,"name":"Soup","quantity":1}]}`)
		return nil
	}}
	c := orderedit.NewController(req, nil, &mockNotifier{})

	errc := make(chan error, 1)
	go func() {
		_, err := c.Load(context.Background(), 1)
		errc <- err
	}()
	<-started

	if _, err := c.Load(context.Background(), 2); err != nil {
		t.Fatalf("Load(2): %v", err)
	}
	close(release)

	if err := <-errc; !errors.Is(err, orderedit.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if s := c.Session(); s == nil || s.OrderID != 2 {
		t.Errorf("stale response overwrote the session: %+v", s)
	}
}

func TestBufferQuantityClamp(t *testing.T) {
	buf := &orderedit.Buffer{Rows: []orderedit.Row{{ItemID: 1, Quantity: 2}}}
	tests := []struct{ in, want int }{
		{0, 1}, {-4, 1}, {5, 5}, {99, 99}, {150, 99},
	}
	for _, tt := range tests {
		buf.SetQuantity(0, tt.in)
		if buf.Rows[0].Quantity != tt.want {
			t.Errorf("SetQuantity(%d) = %d, want %d", tt.in, buf.Rows[0].Quantity, tt.want)
		}
	}
	if buf.SetQuantity(3, 1) || buf.SetNote(-1, "x") {
		t.Error("out of range rows must report false")
	}
}

func TestTableFiltersReapplyAfterUpdate(t *testing.T) {
	table := ordersTable()
	if n := table.SetCriteria(filter.OrderCriteria{Status: "new"}); n != 2 {
		t.Fatalf("visible: %d", n)
	}
	if !table.UpdateRow(orderedit.Summary{OrderID: 7, Status: "Completed"}) {
		t.Fatal("row 7 not found")
	}
	row, _ := table.Row(7)
	if row.Visible || row.Status != "completed" || row.DisplayTotal() != "120.00 EGP" {
		t.Errorf("unexpected row %+v", row)
	}
	if table.UpdateRow(orderedit.Summary{OrderID: 99, Status: "new"}) {
		t.Error("unknown order reported as updated")
	}
}

func TestSaveAcceptsBareSummary(t *testing.T) {
	f, client := newFakeAPI(t)
	f.putResp = func(w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, map[string]any{
			"order_id": 7,
			"status":   "completed",
			"total":    95.5,
			"message":  "Order updated successfully",
		})
	}
	table := ordersTable()
	c := orderedit.NewController(client, table, &mockNotifier{})

	buf, err := c.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Save(context.Background(), 7, buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	row, _ := table.Row(7)
	if row.DisplayTotal() != "95.50 EGP" || row.Status != "completed" {
		t.Errorf("row not updated: %+v", row)
	}
}
