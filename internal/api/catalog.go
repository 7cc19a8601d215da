package api

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/salepoint/pos-terminal/internal/domain/catalog"
)

// getCatalog returns the current catalog snapshot.
func (h *Handler) getCatalog(w http.ResponseWriter, r *http.Request) {
	snap := h.catalog.Current()

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("takenAt", func(e *jx.Encoder) { e.Str(snap.TakenAt().Format(time.RFC3339)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range snap.Items() {
					encodeItem(e, item)
				}
			})
		})
	})
	writeJSON(w, http.StatusOK, &e)
}

// refreshCatalog fetches a new snapshot from the backend and returns it.
// Carts in progress are not retroactively re-validated; they pick up the new
// ceilings on their next mutating operation.
func (h *Handler) refreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Refresh(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	h.getCatalog(w, r)
}

func encodeItem(e *jx.Encoder, item catalog.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(item.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(item.Name) })
		if item.Category != "" {
			e.Field("category", func(e *jx.Encoder) { e.Str(item.Category) })
		}
		if item.ImageURL != "" {
			e.Field("imageUrl", func(e *jx.Encoder) { e.Str(item.ImageURL) })
		}
		e.Field("price", func(e *jx.Encoder) { encodeDecimal(e, item.UnitPrice) })
		if item.PromoPrice != nil {
			e.Field("promoPrice", func(e *jx.Encoder) { encodeDecimal(e, *item.PromoPrice) })
		}
		e.Field("quantity", func(e *jx.Encoder) { e.Int(item.AvailableQuantity) })
	})
}
