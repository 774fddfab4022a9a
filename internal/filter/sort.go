package filter

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Sort keys as sent by the sort select and sortable headers.
const (
	SortNameAsc     = "name_asc"
	SortNameDesc    = "name_desc"
	SortPriceAsc    = "price_asc"
	SortPriceDesc   = "price_desc"
	SortCreatedAsc  = "created_asc"
	SortCreatedDesc = "created_desc"
)

// priceWidth is the zero-padded width of the price sort projection.
const priceWidth = 16

// ValidSortKey reports whether key names a known ordering.
func ValidSortKey(key string) bool {
	switch key {
	case SortNameAsc, SortNameDesc, SortPriceAsc, SortPriceDesc, SortCreatedAsc, SortCreatedDesc:
		return true
	}
	return false
}

// sortValue is the string projection items are compared on.
func sortValue(it MenuItem, key string) string {
	switch key {
	case SortNameAsc, SortNameDesc:
		return it.Name
	case SortPriceAsc, SortPriceDesc:
		s := it.Price.StringFixed(2)
		if len(s) < priceWidth {
			s = strings.Repeat("0", priceWidth-len(s)) + s
		}
		return s
	case SortCreatedAsc, SortCreatedDesc:
		return it.Created
	}
	return ""
}

// Sort orders items in place by key using locale-aware comparison of the
// projection. A _desc key reverses it. The sort is stable and an unknown key
// leaves the order unchanged; Sort reports whether it sorted.
func Sort(items []MenuItem, key string) bool {
	if !ValidSortKey(key) {
		return false
	}
	col := collate.New(language.English)
	desc := strings.HasSuffix(key, "_desc")

	slices.SortStableFunc(items, func(a, b MenuItem) int {
		c := col.CompareString(sortValue(a, key), sortValue(b, key))
		if desc {
			return -c
		}
		return c
	})
	return true
}
