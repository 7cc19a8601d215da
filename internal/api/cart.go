package api

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/salepoint/pos-terminal/internal/domain/cart"
)

// getCart returns the session's cart with recomputed totals.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	var lines []cart.Line
	if err := s.Do(func(c *cart.Cart) error {
		lines = c.Lines()
		return nil
	}); err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeCart(&e, lines)
	writeJSON(w, http.StatusOK, &e)
}

// addItem adds one unit of a catalog item to the cart. The item's current
// snapshot data (price, stock ceiling) is captured at this point.
//
// Body: {"itemId": "..."}.
func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	data, err := readBody(r)
	if err != nil {
		badRequest(w, "unreadable request body")
		return
	}

	var id string
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "itemId":
			id, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil || id == "" {
		badRequest(w, "itemId is required")
		return
	}

	item, err := h.catalog.Current().Lookup(id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.mutateCart(w, r, s.Do, func(c *cart.Cart) error {
		return c.Add(item)
	})
}

// incrementItem raises a line's quantity by one, bounded by the stock
// ceiling captured for the item.
func (h *Handler) incrementItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	id := itemID(r)
	h.mutateCart(w, r, s.Do, func(c *cart.Cart) error {
		return c.Increment(id)
	})
}

// decrementItem lowers a line's quantity by one; at one unit it is a no-op.
func (h *Handler) decrementItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	id := itemID(r)
	h.mutateCart(w, r, s.Do, func(c *cart.Cart) error {
		return c.Decrement(id)
	})
}

// removeItem deletes a line regardless of quantity.
func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	id := itemID(r)
	h.mutateCart(w, r, s.Do, func(c *cart.Cart) error {
		return c.Remove(id)
	})
}

// clearCart empties the cart.
func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	h.mutateCart(w, r, s.Do, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

// mutateCart applies one cart operation and responds with the updated cart.
// A failed operation leaves the cart unchanged and maps to a typed error.
func (h *Handler) mutateCart(
	w http.ResponseWriter,
	r *http.Request,
	do func(func(c *cart.Cart) error) error,
	op func(c *cart.Cart) error,
) {
	var lines []cart.Line
	err := do(func(c *cart.Cart) error {
		if err := op(c); err != nil {
			return err
		}
		lines = c.Lines()
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeCart(&e, lines)
	writeJSON(w, http.StatusOK, &e)
}

// encodeCart writes the cart view: lines in insertion order plus the total,
// both computed from the captured catalog data.
func encodeCart(e *jx.Encoder, lines []cart.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range lines {
					encodeLine(e, l)
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) {
			total := decimal.Zero
			for _, l := range lines {
				total = total.Add(l.Total())
			}
			encodeDecimal(e, total)
		})
	})
}

func encodeLine(e *jx.Encoder, l cart.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("itemId", func(e *jx.Encoder) { e.Str(l.Item.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(l.Item.Name) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("unitPrice", func(e *jx.Encoder) { encodeDecimal(e, l.Item.UnitPrice) })
		if l.Item.PromoPrice != nil {
			e.Field("promoPrice", func(e *jx.Encoder) { encodeDecimal(e, *l.Item.PromoPrice) })
		}
		e.Field("effectivePrice", func(e *jx.Encoder) { encodeDecimal(e, l.EffectivePrice()) })
		e.Field("lineTotal", func(e *jx.Encoder) { encodeDecimal(e, l.Total()) })
		e.Field("stockCeiling", func(e *jx.Encoder) { e.Int(l.Item.AvailableQuantity) })
	})
}
