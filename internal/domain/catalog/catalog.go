// Package catalog holds the terminal's read-only view of sellable items.
//
// The inventory backend is the single source of truth for stock levels; the
// terminal works against an immutable Snapshot taken at a point in time and
// replaced wholesale on refresh. Nothing in this package mutates stock.
package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested item is not in the snapshot.
var ErrNotFound = errors.New("item not found in catalog")

// Item represents a sellable catalog entry as reported by the backend.
type Item struct {
	ID       string
	Name     string
	Category string
	ImageURL string

	// UnitPrice is the regular selling price.
	UnitPrice decimal.Decimal
	// PromoPrice, when set, is the active selling price and is expected to
	// be at most UnitPrice.
	PromoPrice *decimal.Decimal
	// AvailableQuantity is the stock ceiling at snapshot time.
	AvailableQuantity int
}

// EffectivePrice returns the promotional price when one is set, otherwise the
// regular unit price.
func (i Item) EffectivePrice() decimal.Decimal {
	if i.PromoPrice != nil {
		return *i.PromoPrice
	}
	return i.UnitPrice
}

// InStock reports whether at least one unit can be sold.
func (i Item) InStock() bool {
	return i.AvailableQuantity > 0
}

// Snapshot is an immutable point-in-time view of the catalog.
type Snapshot struct {
	items   []Item
	byID    map[string]int
	takenAt time.Time
}

// NewSnapshot builds a snapshot from the given items. The slice is copied;
// later mutations by the caller do not affect the snapshot.
func NewSnapshot(items []Item, takenAt time.Time) *Snapshot {
	copied := make([]Item, len(items))
	copy(copied, items)

	byID := make(map[string]int, len(copied))
	for i, item := range copied {
		byID[item.ID] = i
	}
	return &Snapshot{
		items:   copied,
		byID:    byID,
		takenAt: takenAt,
	}
}

// Items returns a copy of every item in the snapshot, in backend order.
func (s *Snapshot) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Lookup returns the item with the given id.
func (s *Snapshot) Lookup(id string) (Item, error) {
	i, ok := s.byID[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return s.items[i], nil
}

// Len returns the number of items in the snapshot.
func (s *Snapshot) Len() int { return len(s.items) }

// TakenAt returns when the snapshot was fetched.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// Fetcher retrieves the current catalog from the inventory backend.
type Fetcher interface {
	FetchCatalog(ctx context.Context) ([]Item, error)
}
