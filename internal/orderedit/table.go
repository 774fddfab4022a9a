package orderedit

import (
	"slices"
	"strings"
	"sync"

	"github.com/kiwari-pos/client/internal/filter"
	"github.com/shopspring/decimal"
)

// TableRow is one rendered row of the admin orders table. Badge is the status
// text as the server spelled it; the embedded Status is the normalized value
// the type and status selects filter on.
type TableRow struct {
	filter.OrderRow
	Badge string
	Total decimal.Decimal
}

// DisplayTotal is the total cell text.
func (r TableRow) DisplayTotal() string {
	return r.Total.StringFixed(2) + " EGP"
}

// Table is the orders table the edit dialog writes saved orders back into.
type Table struct {
	mu       sync.Mutex
	rows     []TableRow
	criteria filter.OrderCriteria
}

// NewTable renders rows with no filters applied.
func NewTable(rows []TableRow) *Table {
	t := &Table{rows: slices.Clone(rows)}
	t.applyLocked()
	return t
}

// SetCriteria applies the type and status selects and returns how many rows
// are visible.
func (t *Table) SetCriteria(c filter.OrderCriteria) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.criteria = c
	return t.applyLocked()
}

// UpdateRow writes a saved order into its row in place, then re-applies the
// active filters. It reports false when the order is not rendered.
func (t *Table) UpdateRow(s Summary) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := slices.IndexFunc(t.rows, func(r TableRow) bool { return r.ID == s.OrderID })
	if i < 0 {
		return false
	}
	row := &t.rows[i]
	if s.Status != "" {
		row.Badge = s.Status
		row.Status = statusClass(s.Status)
	}
	if !s.TotalAmount.IsZero() {
		row.Total = s.TotalAmount
	}
	t.applyLocked()
	return true
}

// Row returns the row for order id.
func (t *Table) Row(id int64) (TableRow, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.rows {
		if r.ID == id {
			return r, true
		}
	}
	return TableRow{}, false
}

// Rows returns every row in display order.
func (t *Table) Rows() []TableRow {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.rows)
}

func (t *Table) applyLocked() int {
	visible := 0
	for i := range t.rows {
		t.rows[i].Visible = t.criteria.Matches(t.rows[i].OrderRow)
		if t.rows[i].Visible {
			visible++
		}
	}
	return visible
}

// statusClass lowercases a status and replaces its first space with a dash,
// matching the data-status values the status select uses.
func statusClass(status string) string {
	return strings.Replace(strings.ToLower(status), " ", "-", 1)
}
