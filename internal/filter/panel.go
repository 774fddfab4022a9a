package filter

import (
	"slices"
	"sync"
)

// Panel owns the admin filter controls and the menu items they act on.
// Every control change rebuilds the criteria and re-applies them; typing in
// the search box and clicking sort headers are debounced.
type Panel struct {
	mu       sync.Mutex
	items    []MenuItem
	criteria Criteria
	sortKey  string
	last     Result

	search   *Debouncer
	sort     *Debouncer
	onResult []func(Result)
}

// NewPanel applies empty criteria to items and returns the panel.
func NewPanel(items []MenuItem) *Panel {
	p := &Panel{
		items:  slices.Clone(items),
		search: NewDebouncer(SearchDebounce),
		sort:   NewDebouncer(SortDebounce),
	}
	p.last = Apply(p.items, p.criteria)
	return p
}

// OnResult registers fn to receive every new Result.
func (p *Panel) OnResult(fn func(Result)) {
	p.mu.Lock()
	p.onResult = append(p.onResult, fn)
	p.mu.Unlock()
}

// SetItems replaces the rendered items and re-applies the filters.
func (p *Panel) SetItems(items []MenuItem) {
	p.mu.Lock()
	p.items = slices.Clone(items)
	p.applyLocked()
}

// SetSearch records the search box text. The filters run once typing has
// paused for SearchDebounce.
func (p *Panel) SetSearch(text string) {
	p.mu.Lock()
	p.criteria.Search = text
	p.mu.Unlock()
	p.search.Trigger(p.Refresh)
}

// Searching reports whether a debounced search is still pending.
func (p *Panel) Searching() bool {
	return p.search.Pending()
}

func (p *Panel) SetCategory(category string) {
	p.mu.Lock()
	p.criteria.Category = category
	p.applyLocked()
}

func (p *Panel) SetStatus(status string) {
	p.mu.Lock()
	p.criteria.Status = status
	p.applyLocked()
}

// ToggleTag switches a quick-filter pill on or off.
func (p *Panel) ToggleTag(tag QuickFilter) {
	p.mu.Lock()
	if i := slices.Index(p.criteria.Tags, tag); i >= 0 {
		p.criteria.Tags = slices.Delete(p.criteria.Tags, i, i+1)
	} else {
		p.criteria.Tags = append(p.criteria.Tags, tag)
	}
	p.applyLocked()
}

// SetSortKey sets the sort select. The ordering is re-applied with the
// filters on every change.
func (p *Panel) SetSortKey(key string) {
	p.mu.Lock()
	p.sortKey = key
	p.applyLocked()
}

// SortBy handles a sortable header click. Clicks are debounced by
// SortDebounce and do not change the sort select.
func (p *Panel) SortBy(key string) {
	p.sort.Trigger(func() {
		p.mu.Lock()
		Sort(p.items, key)
		p.mu.Unlock()
	})
}

// Clear resets search, selects, sort and pills, then re-applies.
func (p *Panel) Clear() {
	p.search.Stop()
	p.mu.Lock()
	p.criteria = Criteria{}
	p.sortKey = ""
	p.applyLocked()
}

// Refresh re-applies the current criteria now.
func (p *Panel) Refresh() {
	p.mu.Lock()
	p.applyLocked()
}

// applyLocked sorts when a sort key is set, filters, unlocks and publishes.
func (p *Panel) applyLocked() {
	if p.sortKey != "" {
		Sort(p.items, p.sortKey)
	}
	p.last = Apply(p.items, p.criteria)
	res := p.last
	listeners := append([]func(Result){}, p.onResult...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(res)
	}
}

// Result returns the last published result.
func (p *Panel) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Criteria returns a copy of the current control state.
func (p *Panel) Criteria() Criteria {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.criteria
	c.Tags = slices.Clone(c.Tags)
	return c
}

// Items returns the items in display order.
func (p *Panel) Items() []MenuItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.items)
}
