package orderedit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/kiwari-pos/client/internal/api"
	"github.com/kiwari-pos/client/internal/enum"
)

var (
	ErrNoSession     = errors.New("orderedit: no order id")
	ErrNothingToSave = errors.New("orderedit: no valid items to save")
	ErrStale         = errors.New("orderedit: superseded by a newer load")
	ErrSaving        = errors.New("orderedit: save already in progress")
	ErrRejected      = errors.New("orderedit: update rejected")
)

const saveFailed = "Failed to update order"

// Requester sends one JSON request. *api.Client satisfies it.
type Requester interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// Notifier shows a message to the user.
type Notifier interface {
	Notify(level, title, message string)
}

type logNotifier struct{}

func (logNotifier) Notify(level, title, message string) {
	log.Printf("orderedit %s: %s: %s", level, title, message)
}

// Controller runs the edit dialog of the admin orders page. At most one edit
// session is open; the latest Load owns it.
type Controller struct {
	req      Requester
	table    *Table
	notifier Notifier

	mu      sync.Mutex
	seq     uint64
	session *Buffer
	saving  bool
}

// NewController creates a controller writing saved orders into table. A nil
// notifier logs.
func NewController(req Requester, table *Table, notifier Notifier) *Controller {
	if table == nil {
		table = NewTable(nil)
	}
	if notifier == nil {
		notifier = logNotifier{}
	}
	return &Controller{req: req, table: table, notifier: notifier}
}

func orderPath(id int64) string {
	return fmt.Sprintf("/api/orders/%d", id)
}

// Load fetches order id and opens an edit session on it. A Load overtaken by
// a later one returns ErrStale and changes nothing. On failure the open
// session, if any, is kept.
func (c *Controller) Load(ctx context.Context, id int64) (*Buffer, error) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	var raw json.RawMessage
	err := c.req.Do(ctx, http.MethodGet, orderPath(id), nil, &raw)
	var buf *Buffer
	if err == nil {
		buf, err = decodeOrder(raw, id)
	}

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		log.Printf("orderedit: discarding load of order %d, a newer load started", id)
		return nil, ErrStale
	}
	if err != nil {
		c.mu.Unlock()
		log.Printf("orderedit: load order %d: %v", id, err)
		c.notifier.Notify(enum.LevelDanger, "Error", "Failed to load order details: "+api.MessageOr(err, err.Error()))
		return nil, err
	}
	c.session = buf
	c.mu.Unlock()

	return buf.Clone(), nil
}

// Session returns a copy of the open session, or nil.
func (c *Controller) Session() *Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return c.session.Clone()
}

// Close discards the open session.
func (c *Controller) Close() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// Saving reports whether a save is in flight, which keeps the save control
// disabled.
func (c *Controller) Saving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saving
}

// Save submits buf as the new state of order id. The status is sent as-is;
// the server decides which transitions it accepts. Rows without an item
// reference are skipped. On success the table row is updated in place and
// the session is closed; on failure the session stays open for another try.
func (c *Controller) Save(ctx context.Context, id int64, buf *Buffer) error {
	if id == 0 || buf == nil {
		log.Printf("orderedit: save without an order id")
		c.notifier.Notify(enum.LevelDanger, "Error", "Cannot save order - no order ID found")
		return ErrNoSession
	}

	body := saveRequest{Notes: buf.Notes, Status: buf.Status, Items: make([]saveItem, 0, len(buf.Rows))}
	for i, r := range buf.Rows {
		if r.ItemID == 0 {
			log.Printf("orderedit: order %d row %d (%s) has no item id, skipping", id, i, r.Name)
			continue
		}
		body.Items = append(body.Items, saveItem{ItemID: r.ItemID, Quantity: r.Quantity, Note: r.Note})
	}
	if len(body.Items) == 0 {
		c.notifier.Notify(enum.LevelDanger, "Error", "No valid items to save")
		return ErrNothingToSave
	}

	c.mu.Lock()
	if c.saving {
		c.mu.Unlock()
		return ErrSaving
	}
	c.saving = true
	c.mu.Unlock()

	var raw json.RawMessage
	err := c.req.Do(ctx, http.MethodPut, orderPath(id), body, &raw)

	c.mu.Lock()
	c.saving = false
	c.mu.Unlock()

	if err != nil {
		log.Printf("orderedit: save order %d: %v", id, err)
		c.notifier.Notify(enum.LevelDanger, "Error", api.MessageOr(err, saveFailed))
		return err
	}
	summary, msg, ok := decodeSummary(raw)
	if !ok {
		if msg == "" {
			msg = saveFailed
		}
		c.notifier.Notify(enum.LevelDanger, "Error", msg)
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}

	c.notifier.Notify(enum.LevelSuccess, "Success", "Order updated successfully")
	if !c.table.UpdateRow(summary) {
		log.Printf("orderedit: order %d is not in the table, reload needed", summary.OrderID)
	}

	c.mu.Lock()
	if c.session != nil && c.session.OrderID == id {
		c.session = nil
	}
	c.mu.Unlock()
	return nil
}

// Table returns the orders table the controller writes into.
func (c *Controller) Table() *Table {
	return c.table
}
