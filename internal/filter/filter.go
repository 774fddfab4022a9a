// Package filter implements the admin menu filters: search, category and
// status selects, quick-filter pills and sorting, plus the order table's type
// and status filters.
package filter

import (
	"fmt"
	"strings"

	"github.com/kiwari-pos/client/internal/enum"
	"github.com/shopspring/decimal"
)

// QuickFilter is a toggleable pill. Active pills combine with AND.
type QuickFilter string

const (
	TagAvailable QuickFilter = "available"
	TagLowStock  QuickFilter = "low_stock"
	TagHighPrice QuickFilter = "high_price"
	TagNewItems  QuickFilter = "new_items"
	TagPopular   QuickFilter = "popular"
)

const (
	LowStockMax = 10
	PopularMin  = 8
)

// HighPriceMin is the inclusive lower bound of the high_price pill.
var HighPriceMin = decimal.NewFromInt(100)

// MenuItem is one rendered menu card or table row. Visible is the only field
// the filters write.
type MenuItem struct {
	ID         int64
	Name       string
	Category   string
	Status     string
	Price      decimal.Decimal
	Stock      int
	Popularity int
	IsNew      bool
	Created    string
	Visible    bool
}

// Criteria is the state of the filter controls. Empty fields match everything.
type Criteria struct {
	Search   string
	Category string
	Status   string
	Tags     []QuickFilter
}

// ActiveCount is the number shown on the filter badge: one each for search,
// category and status when set, plus one per active pill.
func (c Criteria) ActiveCount() int {
	n := len(c.Tags)
	for _, v := range []string{c.Search, c.Category, c.Status} {
		if v != "" {
			n++
		}
	}
	return n
}

// Matches reports whether it passes every active criterion.
func (c Criteria) Matches(it MenuItem) bool {
	if c.Search != "" && !strings.Contains(strings.ToLower(it.Name), strings.ToLower(c.Search)) {
		return false
	}
	if c.Category != "" && it.Category != c.Category {
		return false
	}
	if c.Status != "" && it.Status != c.Status {
		return false
	}
	for _, tag := range c.Tags {
		if !tag.Matches(it) {
			return false
		}
	}
	return true
}

// Matches reports whether it satisfies the pill. Unknown pills match
// everything.
func (q QuickFilter) Matches(it MenuItem) bool {
	switch q {
	case TagAvailable:
		return it.Status == enum.MenuItemAvailable
	case TagLowStock:
		return it.Stock > 0 && it.Stock <= LowStockMax
	case TagHighPrice:
		return it.Price.GreaterThanOrEqual(HighPriceMin)
	case TagNewItems:
		return it.IsNew
	case TagPopular:
		return it.Popularity >= PopularMin
	}
	return true
}

// Result is what the filter bar displays after Apply.
type Result struct {
	Visible       []int64
	VisibleCount  int
	ActiveFilters int
	Summary       string
}

// Apply sets Visible on every item and returns the counts. Nothing else on
// the items changes.
func Apply(items []MenuItem, c Criteria) Result {
	res := Result{ActiveFilters: c.ActiveCount()}
	for i := range items {
		items[i].Visible = c.Matches(items[i])
		if items[i].Visible {
			res.Visible = append(res.Visible, items[i].ID)
		}
	}
	res.VisibleCount = len(res.Visible)
	res.Summary = Summary(res.VisibleCount)
	return res
}

// Summary is the results line under the search box.
func Summary(visible int) string {
	if visible == 0 {
		return "No items found matching your criteria"
	}
	return fmt.Sprintf("Showing %d items", visible)
}
