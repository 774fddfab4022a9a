// Package ui holds the staff dashboard view model: the order queue, the
// service request queue, payment badges, statistics cards and the connection
// indicator. The real-time client writes to it; renderers read from it.
package ui

import (
	"strings"
	"sync"

	"github.com/kiwari-pos/client/internal/enum"
	"github.com/shopspring/decimal"
)

// Statistic card ids.
const (
	StatTotalOrders            = "total-orders"
	StatPendingOrders          = "pending-orders"
	StatCompletedOrders        = "completed-orders"
	StatTotalRevenue           = "total-revenue"
	StatPendingServiceRequests = "pending-service-requests"
)

// Order is one card in the order queue.
type Order struct {
	ID           int64
	CustomerName string
	TableNumber  string
	Total        decimal.Decimal
	ItemCount    int
	Status       string
	Progress     int
}

// TableLabel is the table number, or "Takeaway" when the order has none.
func (o Order) TableLabel() string {
	if o.TableNumber == "" {
		return "Takeaway"
	}
	return o.TableNumber
}

// ServiceRequest is one card in the service request queue.
type ServiceRequest struct {
	ID           int64
	Type         string
	CustomerName string
	TableNumber  string
	Message      string
	Status       string
}

// Connection is the text and level of the connection indicator.
type Connection struct {
	Text  string
	Level string
}

// StatusLabel capitalises a status for display: "ready" becomes "Ready".
func StatusLabel(status string) string {
	if status == "" {
		return ""
	}
	return strings.ToUpper(status[:1]) + status[1:]
}

// Board is a thread-safe in-memory dashboard.
type Board struct {
	mu        sync.RWMutex
	orders    []Order
	requests  []ServiceRequest
	payments  map[int64]string
	stats     map[string]string
	conn      Connection
	chimes    int
	listeners []func()
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{
		payments: make(map[int64]string),
		stats:    make(map[string]string),
	}
}

// OnChange registers fn to run after every change, outside the lock.
func (b *Board) OnChange(fn func()) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

func (b *Board) changed() {
	listeners := append([]func(){}, b.listeners...)
	b.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// AddOrder puts a new order at the top of the queue.
func (b *Board) AddOrder(o Order) {
	o.Progress = enum.OrderProgress(o.Status)
	b.mu.Lock()
	b.orders = append([]Order{o}, b.orders...)
	b.changed()
}

// SetOrderStatus updates the status badge and progress bar of every card for
// order id. It reports whether any card was on the board.
func (b *Board) SetOrderStatus(id int64, status string) bool {
	b.mu.Lock()
	found := false
	for i := range b.orders {
		if b.orders[i].ID == id {
			b.orders[i].Status = status
			b.orders[i].Progress = enum.OrderProgress(status)
			found = true
		}
	}
	if !found {
		b.mu.Unlock()
		return false
	}
	b.changed()
	return true
}

// Orders returns the order queue, newest first.
func (b *Board) Orders() []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Order(nil), b.orders...)
}

// Order returns the first card for order id.
func (b *Board) Order(id int64) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, o := range b.orders {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}

// AddRequest puts a new service request at the top of its queue.
func (b *Board) AddRequest(r ServiceRequest) {
	b.mu.Lock()
	b.requests = append([]ServiceRequest{r}, b.requests...)
	b.changed()
}

// SetRequestStatus updates every card for request id and reports whether any
// was on the board.
func (b *Board) SetRequestStatus(id int64, status string) bool {
	b.mu.Lock()
	found := false
	for i := range b.requests {
		if b.requests[i].ID == id {
			b.requests[i].Status = status
			found = true
		}
	}
	if !found {
		b.mu.Unlock()
		return false
	}
	b.changed()
	return true
}

// Requests returns the service request queue, newest first.
func (b *Board) Requests() []ServiceRequest {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]ServiceRequest(nil), b.requests...)
}

// TrackPayment puts a payment badge on the board.
func (b *Board) TrackPayment(id int64, status string) {
	b.mu.Lock()
	b.payments[id] = status
	b.changed()
}

// SetPaymentStatus updates a tracked payment badge. Untracked payments are
// ignored and reported as false.
func (b *Board) SetPaymentStatus(id int64, status string) bool {
	b.mu.Lock()
	if _, ok := b.payments[id]; !ok {
		b.mu.Unlock()
		return false
	}
	b.payments[id] = status
	b.changed()
	return true
}

// PaymentStatus returns the badge text of a tracked payment.
func (b *Board) PaymentStatus(id int64) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.payments[id]
	return s, ok
}

// SetStat sets the text of a statistics card.
func (b *Board) SetStat(id, value string) {
	b.mu.Lock()
	b.stats[id] = value
	b.changed()
}

// Stat returns the text of a statistics card.
func (b *Board) Stat(id string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats[id]
}

// SetConnection sets the connection indicator.
func (b *Board) SetConnection(text, level string) {
	b.mu.Lock()
	b.conn = Connection{Text: text, Level: level}
	b.changed()
}

// Connection returns the connection indicator.
func (b *Board) Connection() Connection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn
}

// Chime records that the new-activity sound was played.
func (b *Board) Chime() {
	b.mu.Lock()
	b.chimes++
	b.changed()
}

// Chimes is the number of times Chime was called.
func (b *Board) Chimes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chimes
}
