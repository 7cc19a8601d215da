package api

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/salepoint/pos-terminal/internal/domain/checkout"
	"github.com/salepoint/pos-terminal/internal/domain/session"
)

// openSession starts a terminal session for a resolved operator.
//
// Body: {"operatorId": "...", "operatorName": "..."}.
func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		badRequest(w, "unreadable request body")
		return
	}

	var op checkout.Operator
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "operatorId":
			op.ID, err = d.Str()
		case "operatorName":
			op.Name, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		badRequest(w, "malformed session request")
		return
	}

	s, err := h.sessions.Open(op)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeSession(&e, s)
	writeJSON(w, http.StatusCreated, &e)
}

// closeSession ends a session; its cart and any pending checkout outcome are
// discarded.
func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(sessionID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeSession(e *jx.Encoder, s *session.Session) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(s.ID) })
		e.Field("operatorId", func(e *jx.Encoder) { e.Str(s.Operator.ID) })
		e.Field("operatorName", func(e *jx.Encoder) { e.Str(s.Operator.Name) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(s.CreatedAt.Format(time.RFC3339)) })
	})
}
