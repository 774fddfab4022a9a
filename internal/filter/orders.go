package filter

// OrderRow is one row of the orders table.
type OrderRow struct {
	ID      int64
	Type    string
	Status  string
	Visible bool
}

// OrderCriteria is the orders table's type and status selects. Empty fields
// match everything.
type OrderCriteria struct {
	Type   string
	Status string
}

func (c OrderCriteria) Matches(r OrderRow) bool {
	if c.Type != "" && r.Type != c.Type {
		return false
	}
	if c.Status != "" && r.Status != c.Status {
		return false
	}
	return true
}

// ApplyOrders sets Visible on every row and returns how many are shown.
func ApplyOrders(rows []OrderRow, c OrderCriteria) int {
	visible := 0
	for i := range rows {
		rows[i].Visible = c.Matches(rows[i])
		if rows[i].Visible {
			visible++
		}
	}
	return visible
}
