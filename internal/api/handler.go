// Package api exposes the cart/checkout engine to the terminal UI over REST.
package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/salepoint/pos-terminal/internal/domain/cart"
	"github.com/salepoint/pos-terminal/internal/domain/catalog"
	"github.com/salepoint/pos-terminal/internal/domain/checkout"
	"github.com/salepoint/pos-terminal/internal/domain/session"
)

// maxRequestBody caps request bodies; every request in this API is tiny.
const maxRequestBody = 64 << 10

// Handler routes terminal UI requests to the session manager and catalog
// store.
type Handler struct {
	sessions *session.Manager
	catalog  *catalog.Store
}

// NewHandler creates the API handler.
func NewHandler(sessions *session.Manager, store *catalog.Store) *Handler {
	return &Handler{sessions: sessions, catalog: store}
}

// Routes builds the /api router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.getCatalog)
		r.Post("/catalog/refresh", h.refreshCatalog)

		r.Post("/sessions", h.openSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Delete("/", h.closeSession)

			r.Get("/cart", h.getCart)
			r.Delete("/cart", h.clearCart)
			r.Post("/cart/items", h.addItem)
			r.Post("/cart/items/{itemID}/increment", h.incrementItem)
			r.Post("/cart/items/{itemID}/decrement", h.decrementItem)
			r.Delete("/cart/items/{itemID}", h.removeItem)

			r.Post("/checkout", h.doCheckout)
			r.Post("/checkout/ack", h.acknowledgeCheckout)
			r.Get("/checkout", h.getCheckout)
		})
	})
	return r
}

// readBody reads a size-capped request body.
func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return data, nil
}

// writeJSON sends an encoded body with the given status.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError maps a domain error onto a status code and a {code, message}
// body. Cart-local stock errors map to 409 so the UI can show a dismissible
// warning; checkout failures map to 502 and call for a retry or a session
// fix. The two classes stay distinguishable on the wire.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var (
		oos       *cart.OutOfStockError
		limit     *cart.StockLimitError
		notInCart *cart.NotInCartError
		submit    *checkout.SubmissionError
	)
	switch {
	case errors.As(err, &oos), errors.As(err, &limit):
		status = http.StatusConflict
	case errors.As(err, &notInCart):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, checkout.ErrInvalidPayment):
		status = http.StatusBadRequest
	case errors.Is(err, checkout.ErrSessionInvalid):
		status = http.StatusUnauthorized
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		status = http.StatusConflict
	case errors.As(err, &submit):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(err.Error()) })
	})
	writeJSON(w, status, &e)
}

// badRequest reports a malformed request body or parameter.
func badRequest(w http.ResponseWriter, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusBadRequest) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	writeJSON(w, http.StatusBadRequest, &e)
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func itemID(r *http.Request) string {
	return chi.URLParam(r, "itemID")
}

// lookupSession resolves the {sessionID} path parameter.
func (h *Handler) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(sessionID(r))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return s, true
}

// encodeDecimal writes a decimal as a JSON number.
func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}
