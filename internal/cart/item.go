package cart

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// IDSentinel is the exclusive upper bound for catalog item ids. Larger values
// are client-generated timestamps that never referenced a menu item.
const IDSentinel = 1_000_000

const (
	DefaultImage    = "https://images.unsplash.com/photo-1546833999-b9f581a1996d?w=300&h=200&fit=crop"
	DefaultCategory = "Main Courses"
)

// ValidID reports whether id can reference a real catalog record.
func ValidID(id int64) bool {
	return id > 0 && id < IDSentinel
}

// Item is one cart line. Extra carries stored keys this client does not know
// about so they survive a load/save cycle.
type Item struct {
	ID                  int64
	Name                string
	Price               decimal.Decimal
	Quantity            int
	Image               string
	SpecialInstructions string
	Category            string
	Extra               map[string]json.RawMessage
}

// LineTotal is price × quantity at full precision.
func (it Item) LineTotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

func (it Item) clone() Item {
	out := it
	if it.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(it.Extra))
		for k, v := range it.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

var knownKeys = []string{"id", "name", "price", "quantity", "image", "specialInstructions", "category"}

// MarshalJSON writes the stored cart shape: price as a bare number, extra keys
// merged back in.
func (it Item) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(it.Extra)+len(knownKeys))
	for k, v := range it.Extra {
		m[k] = v
	}

	put := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		m[key] = b
		return nil
	}

	if err := put("id", it.ID); err != nil {
		return nil, err
	}
	if err := put("name", it.Name); err != nil {
		return nil, err
	}
	m["price"] = json.RawMessage(it.Price.String())
	if err := put("quantity", it.Quantity); err != nil {
		return nil, err
	}
	if err := put("image", it.Image); err != nil {
		return nil, err
	}
	if err := put("specialInstructions", it.SpecialInstructions); err != nil {
		return nil, err
	}
	if err := put("category", it.Category); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads a stored cart line. Lines written by older pages carry
// item_id instead of id. A non-integer or string id decodes to 0, which
// ValidID rejects. Missing optional fields get their defaults.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*it = Item{}

	if v, ok := raw["id"]; ok {
		it.ID = decodeID(v)
	} else if v, ok := raw["item_id"]; ok {
		it.ID = decodeID(v)
		delete(raw, "item_id")
	}
	if v, ok := raw["name"]; ok {
		if err := json.Unmarshal(v, &it.Name); err != nil {
			return fmt.Errorf("name: %w", err)
		}
	}
	if v, ok := raw["price"]; ok {
		if err := it.Price.UnmarshalJSON(v); err != nil {
			return fmt.Errorf("price: %w", err)
		}
	}
	if v, ok := raw["quantity"]; ok {
		if err := json.Unmarshal(v, &it.Quantity); err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
	}
	if v, ok := raw["image"]; ok {
		_ = json.Unmarshal(v, &it.Image)
	}
	if v, ok := raw["specialInstructions"]; ok {
		_ = json.Unmarshal(v, &it.SpecialInstructions)
	}
	if v, ok := raw["category"]; ok {
		_ = json.Unmarshal(v, &it.Category)
	}

	if it.Quantity == 0 {
		it.Quantity = 1
	}
	if it.Image == "" {
		it.Image = DefaultImage
	}
	if it.Category == "" {
		it.Category = DefaultCategory
	}

	for _, k := range knownKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		it.Extra = raw
	}
	return nil
}

func decodeID(v json.RawMessage) int64 {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || v[0] == '"' {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return 0
	}
	id, err := n.Int64()
	if err != nil {
		return 0
	}
	return id
}
