// Package cart keeps the customer's cart: an ordered list of line items that
// is mirrored to local storage after every change.
package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/kiwari-pos/client/internal/enum"
	"github.com/kiwari-pos/client/internal/storage"
	"github.com/shopspring/decimal"
)

// Errors returned by the cart store.
var (
	ErrInvalidItem           = errors.New("invalid item data")
	ErrQuantityLimitExceeded = errors.New("maximum quantity reached")
	ErrItemNotFound          = errors.New("item not in cart")
	ErrClearCancelled        = errors.New("clear cart not confirmed")
	ErrStorage               = errors.New("cart storage unreadable")
	ErrCartEmpty             = errors.New("cart is empty")
)

const (
	DefaultStorageKey  = "restaurant_cart"
	DefaultMaxQuantity = 99
	DefaultCurrency    = "EGP"
)

// Config holds the cart settings.
type Config struct {
	StorageKey  string `yaml:"storage_key"`
	MaxQuantity int    `yaml:"max_quantity"`
	Currency    string `yaml:"currency"`
}

func (c Config) withDefaults() Config {
	if c.StorageKey == "" {
		c.StorageKey = DefaultStorageKey
	}
	if c.MaxQuantity <= 0 {
		c.MaxQuantity = DefaultMaxQuantity
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	return c
}

// Notifier shows a message to the user.
type Notifier interface {
	Notify(level, title, message string)
}

// Confirmer asks the user a yes/no question and blocks for the answer.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

type logNotifier struct{}

func (logNotifier) Notify(level, title, message string) {
	log.Printf("cart %s: %s: %s", level, title, message)
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier routes user messages to n.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithConfirmer sets the confirmation step Clear goes through.
func WithConfirmer(c Confirmer) Option {
	return func(s *Store) { s.confirm = c }
}

// NewItem is the input to Add. Quantity 0 means 1.
type NewItem struct {
	ID                  int64
	Name                string
	Price               decimal.NullDecimal
	Quantity            int
	Image               string
	SpecialInstructions string
	Category            string
}

// Snapshot is the cart state handed to change listeners.
type Snapshot struct {
	Items []Item
	Count int
	Total decimal.Decimal
}

// Store owns the cart. Every mutation runs mutate, persist and snapshot under
// one lock; listeners run after the lock is released.
type Store struct {
	mu        sync.Mutex
	kv        storage.KV
	cfg       Config
	items     []Item
	notifier  Notifier
	confirm   Confirmer
	listeners []func(Snapshot)
}

// Open creates a store backed by kv and loads the persisted cart.
func Open(kv storage.KV, cfg Config, opts ...Option) *Store {
	s := &Store{
		kv:       kv,
		cfg:      cfg.withDefaults(),
		notifier: logNotifier{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load()
	return s
}

// load reads the stored cart once. Unreadable data leaves an empty cart, and
// a slot that is not a JSON array is removed. Lines that fail to decode or
// carry invalid or duplicate ids are dropped and the cleaned cart is written
// back.
func (s *Store) load() {
	data, ok, err := s.kv.Get(s.cfg.StorageKey)
	if err != nil {
		log.Printf("error loading cart from storage: %v", fmt.Errorf("%w: %w", ErrStorage, err))
		return
	}
	if !ok || len(data) == 0 {
		return
	}

	var lines []json.RawMessage
	if err := json.Unmarshal(data, &lines); err != nil {
		log.Printf("error loading cart from storage: %v", fmt.Errorf("%w: %w", ErrStorage, err))
		if err := s.kv.Delete(s.cfg.StorageKey); err != nil {
			log.Printf("error removing unreadable cart: %v", err)
		}
		return
	}

	seen := make(map[int64]bool, len(lines))
	cleaned := 0
	for _, line := range lines {
		var it Item
		if err := json.Unmarshal(line, &it); err != nil {
			log.Printf("dropping unreadable cart item: %v", err)
			cleaned++
			continue
		}
		if !ValidID(it.ID) || seen[it.ID] {
			log.Printf("dropping invalid cart item %q (id %d)", it.Name, it.ID)
			cleaned++
			continue
		}
		if it.Quantity < 1 || it.Quantity > s.cfg.MaxQuantity {
			it.Quantity = min(max(it.Quantity, 1), s.cfg.MaxQuantity)
			cleaned++
		}
		seen[it.ID] = true
		s.items = append(s.items, it)
	}

	if cleaned > 0 {
		log.Printf("cleaned cart: removed or repaired %d of %d items", cleaned, len(lines))
		s.persistLocked()
	}
}

func (s *Store) persistLocked() {
	items := s.items
	if items == nil {
		items = []Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		log.Printf("error saving cart to storage: %v", err)
		return
	}
	if err := s.kv.Set(s.cfg.StorageKey, data); err != nil {
		log.Printf("error saving cart to storage: %v", err)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	items := make([]Item, len(s.items))
	total := decimal.Zero
	count := 0
	for i, it := range s.items {
		items[i] = it.clone()
		total = total.Add(it.LineTotal())
		count += it.Quantity
	}
	return Snapshot{Items: items, Count: count, Total: total}
}

// commitLocked persists the cart and unlocks; listeners receive the new state.
func (s *Store) commitLocked() {
	s.persistLocked()
	snap := s.snapshotLocked()
	listeners := append([]func(Snapshot){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (s *Store) indexLocked(id int64) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// OnChange registers a listener called after every successful mutation.
func (s *Store) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Add puts an item in the cart or raises the quantity of the existing line.
func (s *Store) Add(in NewItem) error {
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}
	if !ValidID(in.ID) || in.Name == "" || !in.Price.Valid || in.Price.Decimal.IsNegative() || qty < 0 {
		log.Printf("invalid item data: %+v", in)
		s.notifier.Notify(enum.LevelDanger, "Error", "Invalid item data")
		return ErrInvalidItem
	}

	s.mu.Lock()
	if i := s.indexLocked(in.ID); i != -1 {
		newQty := s.items[i].Quantity + qty
		if newQty > s.cfg.MaxQuantity {
			s.mu.Unlock()
			s.notifier.Notify(enum.LevelWarning, "Warning",
				fmt.Sprintf("Maximum quantity (%d) reached for this item", s.cfg.MaxQuantity))
			return ErrQuantityLimitExceeded
		}
		s.items[i].Quantity = newQty
	} else {
		if qty > s.cfg.MaxQuantity {
			s.mu.Unlock()
			s.notifier.Notify(enum.LevelWarning, "Warning",
				fmt.Sprintf("Maximum quantity (%d) reached for this item", s.cfg.MaxQuantity))
			return ErrQuantityLimitExceeded
		}
		it := Item{
			ID:                  in.ID,
			Name:                in.Name,
			Price:               in.Price.Decimal,
			Quantity:            qty,
			Image:               in.Image,
			SpecialInstructions: in.SpecialInstructions,
			Category:            in.Category,
		}
		if it.Image == "" {
			it.Image = DefaultImage
		}
		if it.Category == "" {
			it.Category = DefaultCategory
		}
		s.items = append(s.items, it)
	}
	s.commitLocked()

	s.notifier.Notify(enum.LevelSuccess, "Success", in.Name+" added to cart")
	return nil
}

// Remove deletes the line for id. A missing id returns ErrItemNotFound and
// changes nothing.
func (s *Store) Remove(id int64) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i == -1 {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	removed := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.commitLocked()

	s.notifier.Notify(enum.LevelInfo, "Info", removed.Name+" removed from cart")
	return nil
}

// SetQuantity sets the quantity of a line exactly. n <= 0 removes the line.
func (s *Store) SetQuantity(id int64, n int) error {
	if n <= 0 {
		return s.Remove(id)
	}

	s.mu.Lock()
	i := s.indexLocked(id)
	if i == -1 {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	if n > s.cfg.MaxQuantity {
		s.mu.Unlock()
		s.notifier.Notify(enum.LevelWarning, "Warning",
			fmt.Sprintf("Maximum quantity (%d) reached", s.cfg.MaxQuantity))
		return ErrQuantityLimitExceeded
	}
	s.items[i].Quantity = n
	s.commitLocked()
	return nil
}

// Increase adds one to the line for id.
func (s *Store) Increase(id int64) error {
	it, ok := s.Get(id)
	if !ok {
		return ErrItemNotFound
	}
	return s.SetQuantity(id, it.Quantity+1)
}

// Decrease removes one from the line for id, dropping the line at zero.
func (s *Store) Decrease(id int64) error {
	it, ok := s.Get(id)
	if !ok {
		return ErrItemNotFound
	}
	return s.SetQuantity(id, it.Quantity-1)
}

// SetInstructions replaces the special instructions of a line.
func (s *Store) SetInstructions(id int64, text string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i == -1 {
		s.mu.Unlock()
		s.notifier.Notify(enum.LevelError, "Error", "Item not found in cart")
		return ErrItemNotFound
	}
	s.items[i].SpecialInstructions = text
	s.commitLocked()

	s.notifier.Notify(enum.LevelSuccess, "Success", "Item updated successfully")
	return nil
}

// Clear empties the cart after the user confirms. Without a configured
// Confirmer, or when the user declines, it returns ErrClearCancelled.
func (s *Store) Clear() error {
	s.mu.Lock()
	empty := len(s.items) == 0
	s.mu.Unlock()
	if empty {
		s.notifier.Notify(enum.LevelInfo, "Info", "Cart is already empty")
		return nil
	}

	if s.confirm == nil || !s.confirm.Confirm("Are you sure you want to clear your cart?") {
		return ErrClearCancelled
	}

	s.mu.Lock()
	s.items = nil
	s.commitLocked()

	s.notifier.Notify(enum.LevelInfo, "Info", "Cart cleared")
	return nil
}

// Checkout hands the cart over to the checkout step. An empty cart is
// refused with a warning.
func (s *Store) Checkout() (Snapshot, error) {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if len(snap.Items) == 0 {
		s.notifier.Notify(enum.LevelWarning, "Warning", "Your cart is empty!")
		return Snapshot{}, ErrCartEmpty
	}
	return snap, nil
}

// Get returns a copy of the line for id.
func (s *Store) Get(id int64) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i == -1 {
		return Item{}, false
	}
	return s.items[i].clone(), true
}

// Items returns a copy of the cart lines in order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked().Items
}

// Total is Σ price × quantity at full precision.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked().Total
}

// DisplayTotal is the total rounded to two places with the currency code.
func (s *Store) DisplayTotal() string {
	return s.Total().StringFixed(2) + " " + s.cfg.Currency
}

// ItemCount is Σ quantity.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked().Count
}
