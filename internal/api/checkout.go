package api

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/salepoint/pos-terminal/internal/domain/checkout"
)

// doCheckout submits the session's cart as one atomic sale.
//
// Body: {"paymentMethod": "CASH"|"CARD"}. On success the response carries the
// receipt and the cart is empty; on failure the cart is untouched and the
// operator may retry explicitly.
func (h *Handler) doCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	data, err := readBody(r)
	if err != nil {
		badRequest(w, "unreadable request body")
		return
	}

	var raw string
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "paymentMethod":
			raw, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		badRequest(w, "malformed checkout request")
		return
	}

	method, err := checkout.ParsePaymentMethod(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("pos.payment_method", string(method)))

	receipt, err := s.Checkout(r.Context(), method)
	if err != nil {
		if errors.Is(err, checkout.ErrSessionInvalid) {
			// The backend refused the terminal's credentials; this session
			// cannot complete any sale. Tear it down so the UI
			// re-authenticates instead of retrying.
			_ = h.sessions.Close(s.ID)
		}
		writeError(w, r, err)
		return
	}
	span.SetAttributes(
		attribute.String("pos.sale_reference", receipt.Reference),
		attribute.Int("pos.sale_lines", len(receipt.Lines)),
	)

	var e jx.Encoder
	encodeReceipt(&e, receipt)
	writeJSON(w, http.StatusCreated, &e)
}

// acknowledgeCheckout returns the session's checkout state machine to idle
// after the UI has shown the outcome.
func (h *Handler) acknowledgeCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	if err := s.Acknowledge(); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getCheckout reports the coordinator state and, when available, the receipt
// of the last successful checkout.
func (h *Handler) getCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	state, receipt := s.CheckoutState()

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("state", func(e *jx.Encoder) { e.Str(string(state)) })
		if receipt != nil {
			e.Field("receipt", func(e *jx.Encoder) { encodeReceipt(e, receipt) })
		}
	})
	writeJSON(w, http.StatusOK, &e)
}

func encodeReceipt(e *jx.Encoder, rc *checkout.Receipt) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("reference", func(e *jx.Encoder) { e.Str(rc.Reference) })
		e.Field("operatorId", func(e *jx.Encoder) { e.Str(rc.Operator.ID) })
		e.Field("operatorName", func(e *jx.Encoder) { e.Str(rc.Operator.Name) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(rc.PaymentMethod)) })
		e.Field("timestamp", func(e *jx.Encoder) { e.Str(rc.Timestamp.Format(time.RFC3339)) })
		e.Field("total", func(e *jx.Encoder) { encodeDecimal(e, rc.Total) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range rc.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("itemId", func(e *jx.Encoder) { e.Str(l.ItemID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("unitPrice", func(e *jx.Encoder) { encodeDecimal(e, l.UnitPrice) })
					})
				}
			})
		})
	})
}
