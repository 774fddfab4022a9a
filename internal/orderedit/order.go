// Package orderedit loads one order into an edit session, lets staff adjust
// item quantities and notes, and saves the result back into the rendered
// orders table without a reload.
package orderedit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/kiwari-pos/client/internal/enum"
	"github.com/shopspring/decimal"
)

// Quantity bounds of an edit row.
const (
	MinQuantity = 1
	MaxQuantity = 99
)

// Row is one editable line of the order. ItemID 0 means the server sent no
// usable reference and the row cannot be saved.
type Row struct {
	ItemID    int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Note      string
}

// Buffer is the editable copy of an order held while the edit session is
// open.
type Buffer struct {
	OrderID int64
	Status  string
	Notes   string
	Total   decimal.Decimal
	Rows    []Row
}

// Clone returns a deep copy of b.
func (b *Buffer) Clone() *Buffer {
	out := *b
	out.Rows = slices.Clone(b.Rows)
	return &out
}

// SetQuantity sets row i's quantity clamped to [MinQuantity, MaxQuantity].
// It reports false when i is out of range.
func (b *Buffer) SetQuantity(i, n int) bool {
	if i < 0 || i >= len(b.Rows) {
		return false
	}
	b.Rows[i].Quantity = min(max(n, MinQuantity), MaxQuantity)
	return true
}

// SetNote sets row i's note. It reports false when i is out of range.
func (b *Buffer) SetNote(i int, note string) bool {
	if i < 0 || i >= len(b.Rows) {
		return false
	}
	b.Rows[i].Note = note
	return true
}

// DisplayTotal formats the order total the way the edit dialog shows it.
func (b *Buffer) DisplayTotal() string {
	return b.Total.StringFixed(2) + " EGP"
}

// refID is an item reference that may arrive as a number, a numeric string or
// null.
type refID int64

func (r *refID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = 0
		return nil
	}
	data = bytes.Trim(data, `"`)
	if len(data) == 0 {
		*r = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("orderedit: item reference %q: %w", data, err)
	}
	*r = refID(n)
	return nil
}

type itemDetail struct {
	ID        refID           `json:"id"`
	ItemID    refID           `json:"item_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Note      string          `json:"note"`
}

type orderDetail struct {
	OrderID     refID            `json:"order_id"`
	Status      string           `json:"status"`
	Notes       string           `json:"notes"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
	Total       *decimal.Decimal `json:"total"`
	Items       []itemDetail     `json:"items"`
}

// decodeOrder builds a Buffer from an order detail response, bare or wrapped
// in a "data" envelope. Item references come from "id" and fall back to
// "item_id".
func decodeOrder(raw json.RawMessage, orderID int64) (*Buffer, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 && envelope.Data[0] == '{' {
		raw = envelope.Data
	}

	var d orderDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("orderedit: decode order: %w", err)
	}

	b := &Buffer{
		OrderID: int64(d.OrderID),
		Status:  d.Status,
		Notes:   d.Notes,
		Rows:    make([]Row, 0, len(d.Items)),
	}
	if b.OrderID == 0 {
		b.OrderID = orderID
	}
	if b.Status == "" {
		b.Status = enum.OrderStatusNew
	}
	switch {
	case d.TotalAmount != nil:
		b.Total = *d.TotalAmount
	case d.Total != nil:
		b.Total = *d.Total
	}

	for _, it := range d.Items {
		id := int64(it.ID)
		if id == 0 {
			id = int64(it.ItemID)
		}
		b.Rows = append(b.Rows, Row{
			ItemID:    id,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Note:      it.Note,
		})
	}
	return b, nil
}

type saveItem struct {
	ItemID   int64  `json:"item_id"`
	Quantity int    `json:"quantity"`
	Note     string `json:"note"`
}

type saveRequest struct {
	Items  []saveItem `json:"items"`
	Notes  string     `json:"notes"`
	Status string     `json:"status"`
}

// Summary is the updated order the server returns after a save.
type Summary struct {
	OrderID     int64
	Status      string
	TotalAmount decimal.Decimal
}

type summaryDetail struct {
	OrderID     refID            `json:"order_id"`
	Status      string           `json:"status"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
	Total       *decimal.Decimal `json:"total"`
}

// decodeSummary reads a save response. Two shapes are accepted: an envelope
// {"status":"success","data":{order}} and a bare order summary. ok is false
// when the response names no order; msg is then the server's explanation,
// if it gave one.
func decodeSummary(raw json.RawMessage) (s Summary, msg string, ok bool) {
	var env struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Summary{}, "", false
	}
	msg = env.Message
	if msg == "" {
		msg = env.Error
	}

	detail := raw
	if len(env.Data) > 0 && env.Data[0] == '{' {
		if env.Status != "success" {
			return Summary{}, msg, false
		}
		detail = env.Data
	}

	var d summaryDetail
	if err := json.Unmarshal(detail, &d); err != nil || d.OrderID == 0 {
		return Summary{}, msg, false
	}

	s = Summary{OrderID: int64(d.OrderID), Status: d.Status}
	switch {
	case d.TotalAmount != nil:
		s.TotalAmount = *d.TotalAmount
	case d.Total != nil:
		s.TotalAmount = *d.Total
	}
	return s, "", true
}
