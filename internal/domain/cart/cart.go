// Package cart implements the in-memory shopping cart a cashier builds
// against a catalog snapshot.
//
// A cart is exclusively owned by one terminal session. Every mutation either
// fully applies or leaves the cart untouched; quantities never exceed the
// stock ceiling captured from the catalog, and each item appears in at most
// one line.
package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/salepoint/pos-terminal/internal/domain/catalog"
)

// OutOfStockError indicates an attempt to add an item with no available stock.
type OutOfStockError struct {
	ItemID string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("item %s is out of stock", e.ItemID)
}

// StockLimitError indicates an attempt to raise a line past the stock ceiling
// captured for its item. The cart is left unchanged.
type StockLimitError struct {
	ItemID string
	Limit  int
}

func (e *StockLimitError) Error() string {
	return fmt.Sprintf("item %s is limited to %d unit(s) in stock", e.ItemID, e.Limit)
}

// NotInCartError indicates an operation referenced an item with no cart line.
type NotInCartError struct {
	ItemID string
}

func (e *NotInCartError) Error() string {
	return fmt.Sprintf("item %s is not in the cart", e.ItemID)
}

// Line is a single cart entry: the catalog item captured at the time it was
// added (recording the stock ceiling and prices) plus a requested quantity.
type Line struct {
	Item     catalog.Item
	Quantity int
}

// EffectivePrice returns the price a unit of this line is charged at.
func (l Line) EffectivePrice() decimal.Decimal {
	return l.Item.EffectivePrice()
}

// Total returns effective price multiplied by quantity.
func (l Line) Total() decimal.Decimal {
	return l.EffectivePrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered collection of lines, at most one per item id.
//
// Cart is not safe for concurrent use; the owning session serializes access.
type Cart struct {
	lines []Line
	index map[string]int
}

// New creates an empty cart.
func New() *Cart {
	return &Cart{index: make(map[string]int)}
}

// Add puts one unit of the given item into the cart. If a line for the item
// already exists, the captured catalog data is replaced with the incoming
// item (lazy re-validation against a newer snapshot happens here) and the
// quantity is incremented, subject to the stock ceiling.
func (c *Cart) Add(item catalog.Item) error {
	if i, ok := c.index[item.ID]; ok {
		c.lines[i].Item = item
		return c.incrementAt(i)
	}

	if !item.InStock() {
		return &OutOfStockError{ItemID: item.ID}
	}
	c.lines = append(c.lines, Line{Item: item, Quantity: 1})
	c.index[item.ID] = len(c.lines) - 1
	return nil
}

// Increment raises the line's quantity by one. It fails with StockLimitError
// when the new quantity would exceed the recorded stock ceiling; the cart is
// left unchanged, never clamped.
func (c *Cart) Increment(itemID string) error {
	i, ok := c.index[itemID]
	if !ok {
		return &NotInCartError{ItemID: itemID}
	}
	return c.incrementAt(i)
}

func (c *Cart) incrementAt(i int) error {
	line := c.lines[i]
	if line.Quantity+1 > line.Item.AvailableQuantity {
		return &StockLimitError{ItemID: line.Item.ID, Limit: line.Item.AvailableQuantity}
	}
	c.lines[i].Quantity++
	return nil
}

// Decrement lowers the line's quantity by one. At quantity 1 it is a no-op:
// removal is an explicit, separate operation, never implicit.
func (c *Cart) Decrement(itemID string) error {
	i, ok := c.index[itemID]
	if !ok {
		return &NotInCartError{ItemID: itemID}
	}
	if c.lines[i].Quantity > 1 {
		c.lines[i].Quantity--
	}
	return nil
}

// Remove deletes the line regardless of its quantity.
func (c *Cart) Remove(itemID string) error {
	i, ok := c.index[itemID]
	if !ok {
		return &NotInCartError{ItemID: itemID}
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	delete(c.index, itemID)
	for j := i; j < len(c.lines); j++ {
		c.index[c.lines[j].Item.ID] = j
	}
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[string]int)
}

// Total returns the sum of all line totals. It is recomputed on every call;
// there is no cached value to go stale.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Total())
	}
	return total
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of lines in the cart.
func (c *Cart) Len() int { return len(c.lines) }

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool { return len(c.lines) == 0 }
