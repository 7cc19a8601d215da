package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/salepoint/pos-terminal/internal/domain/catalog"
	"github.com/salepoint/pos-terminal/internal/domain/checkout"
	"github.com/salepoint/pos-terminal/internal/domain/session"
)

// fakeBackend stands in for the inventory backend: it serves catalog items
// and records submitted sales.
type fakeBackend struct {
	sync.Mutex
	items     []catalog.Item
	submitErr error
	sales     []checkout.SaleRequest
	refNum    int
}

func (f *fakeBackend) FetchCatalog(context.Context) ([]catalog.Item, error) {
	f.Lock()
	defer f.Unlock()
	out := make([]catalog.Item, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeBackend) SubmitSale(_ context.Context, req checkout.SaleRequest) (*checkout.Confirmation, error) {
	f.Lock()
	defer f.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.refNum++
	f.sales = append(f.sales, req)
	return &checkout.Confirmation{
		Reference: fmt.Sprintf("SLS-%05d", f.refNum),
		Timestamp: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func promo(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func newTestHandler(t *testing.T) (*Handler, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{
		items: []catalog.Item{
			{ID: "espresso", Name: "Espresso", Category: "coffee",
				UnitPrice: decimal.RequireFromString("2.50"), AvailableQuantity: 3},
			{ID: "latte", Name: "Latte", Category: "coffee",
				UnitPrice: decimal.RequireFromString("4.00"), PromoPrice: promo("3.25"), AvailableQuantity: 10},
			{ID: "stale-bagel", Name: "Bagel", Category: "bakery",
				UnitPrice: decimal.RequireFromString("1.20"), AvailableQuantity: 0},
		},
	}

	store := catalog.NewStore(backend)
	require.NoError(t, store.Refresh(context.Background()))
	sessions := session.NewManager(time.Minute, backend, store, zap.NewNop())
	return NewHandler(sessions, store), backend
}

func doRequest(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func openTestSession(t *testing.T, h *Handler) string {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/api/sessions",
		`{"operatorId": "op-9", "operatorName": "Ana"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestSessionLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)

	t.Run("OpenAndClose", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/api/sessions",
			`{"operatorId": "op-9", "operatorName": "Ana"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "op-9", body["operatorId"])
		assert.Equal(t, "Ana", body["operatorName"])

		id := body["id"].(string)
		rec = doRequest(t, h, http.MethodDelete, "/api/sessions/"+id, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(t, h, http.MethodGet, "/api/sessions/"+id+"/cart", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("OpenWithoutOperator", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/api/sessions", `{}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("UnknownSession", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/sessions/nope/cart", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCatalogEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/api/catalog", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	items := body["items"].([]any)
	require.Len(t, items, 3)
	first := items[0].(map[string]any)
	assert.Equal(t, "espresso", first["id"])
	assert.Equal(t, 2.5, first["price"])

	second := items[1].(map[string]any)
	assert.Equal(t, 3.25, second["promoPrice"])

	rec = doRequest(t, h, http.MethodPost, "/api/catalog/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCartFlow(t *testing.T) {
	h, _ := newTestHandler(t)
	id := openTestSession(t, h)
	base := "/api/sessions/" + id

	t.Run("AddAndTotal", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, base+"/cart/items", `{"itemId": "espresso"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(t, h, http.MethodPost, base+"/cart/items", `{"itemId": "latte"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)

		lines := body["lines"].([]any)
		require.Len(t, lines, 2)
		latte := lines[1].(map[string]any)
		assert.Equal(t, 4.0, latte["unitPrice"])
		assert.Equal(t, 3.25, latte["effectivePrice"], "promo price is charged")
		assert.Equal(t, float64(10), latte["stockCeiling"])
		// 2.50 + 3.25
		assert.Equal(t, 5.75, body["total"])
	})

	t.Run("IncrementToCeiling", func(t *testing.T) {
		// Espresso ceiling is 3 and one unit is already in the cart.
		for i := 0; i < 2; i++ {
			rec := doRequest(t, h, http.MethodPost, base+"/cart/items/espresso/increment", "")
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec := doRequest(t, h, http.MethodPost, base+"/cart/items/espresso/increment", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, decodeBody(t, rec)["message"], "limited to 3")

		// Quantity stayed at the ceiling.
		rec = doRequest(t, h, http.MethodGet, base+"/cart", "")
		lines := decodeBody(t, rec)["lines"].([]any)
		espresso := lines[0].(map[string]any)
		assert.Equal(t, float64(3), espresso["quantity"])
	})

	t.Run("DecrementFloor", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, base+"/cart/items/latte/decrement", "")
		require.Equal(t, http.StatusOK, rec.Code)

		lines := decodeBody(t, rec)["lines"].([]any)
		latte := lines[1].(map[string]any)
		assert.Equal(t, float64(1), latte["quantity"], "decrement at one unit is a no-op")
	})

	t.Run("AddOutOfStock", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, base+"/cart/items", `{"itemId": "stale-bagel"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("AddUnknownItem", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, base+"/cart/items", `{"itemId": "unicorn"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("MutateUnknownLine", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, base+"/cart/items/unicorn/increment", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = doRequest(t, h, http.MethodDelete, base+"/cart/items/unicorn", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("RemoveAndClear", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodDelete, base+"/cart/items/espresso", "")
		require.Equal(t, http.StatusOK, rec.Code)
		lines := decodeBody(t, rec)["lines"].([]any)
		require.Len(t, lines, 1)

		rec = doRequest(t, h, http.MethodDelete, base+"/cart", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Empty(t, body["lines"])
		assert.Equal(t, 0.0, body["total"])
	})
}

func TestCheckoutFlow(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		h, backend := newTestHandler(t)
		id := openTestSession(t, h)
		base := "/api/sessions/" + id

		rec := doRequest(t, h, http.MethodPost, base+"/cart/items", `{"itemId": "espresso"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = doRequest(t, h, http.MethodPost, base+"/cart/items/espresso/increment", "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(t, h, http.MethodPost, base+"/checkout", `{"paymentMethod": "CARD"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		receipt := decodeBody(t, rec)
		assert.Equal(t, "SLS-00001", receipt["reference"])
		assert.Equal(t, "CARD", receipt["paymentMethod"])
		assert.Equal(t, 5.0, receipt["total"])
		require.Len(t, receipt["lines"].([]any), 1)

		backend.Lock()
		require.Len(t, backend.sales, 1)
		sale := backend.sales[0]
		backend.Unlock()
		assert.Equal(t, "op-9", sale.Operator.ID)
		require.Len(t, sale.Lines, 1)
		assert.Equal(t, 2, sale.Lines[0].Quantity)

		// Cart was cleared by the successful sale.
		rec = doRequest(t, h, http.MethodGet, base+"/cart", "")
		assert.Empty(t, decodeBody(t, rec)["lines"])

		// State machine: succeeded until acknowledged.
		rec = doRequest(t, h, http.MethodGet, base+"/checkout", "")
		body := decodeBody(t, rec)
		assert.Equal(t, "succeeded", body["state"])
		assert.NotNil(t, body["receipt"])

		rec = doRequest(t, h, http.MethodPost, base+"/checkout/ack", "")
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(t, h, http.MethodGet, base+"/checkout", "")
		assert.Equal(t, "idle", decodeBody(t, rec)["state"])
	})

	t.Run("EmptyCart", func(t *testing.T) {
		h, backend := newTestHandler(t)
		id := openTestSession(t, h)

		rec := doRequest(t, h, http.MethodPost, "/api/sessions/"+id+"/checkout",
			`{"paymentMethod": "CASH"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		backend.Lock()
		assert.Empty(t, backend.sales, "no sale was submitted")
		backend.Unlock()
	})

	t.Run("InvalidPaymentMethod", func(t *testing.T) {
		h, _ := newTestHandler(t)
		id := openTestSession(t, h)
		base := "/api/sessions/" + id

		rec := doRequest(t, h, http.MethodPost, base+"/cart/items", `{"itemId": "latte"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(t, h, http.MethodPost, base+"/checkout", `{"paymentMethod": "IOU"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("InvalidCredentialsTearDownSession", func(t *testing.T) {
		h, backend := newTestHandler(t)
		id := openTestSession(t, h)
		base := "/api/sessions/" + id

		rec := doRequest(t, h, http.MethodPost, base+"/cart/items", `{"itemId": "latte"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		backend.Lock()
		backend.submitErr = checkout.ErrSessionInvalid
		backend.Unlock()

		rec = doRequest(t, h, http.MethodPost, base+"/checkout", `{"paymentMethod": "CASH"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		// The session is gone; the UI has to re-authenticate.
		rec = doRequest(t, h, http.MethodGet, base+"/cart", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("BackendFailurePreservesCart", func(t *testing.T) {
		h, backend := newTestHandler(t)
		id := openTestSession(t, h)
		base := "/api/sessions/" + id

		rec := doRequest(t, h, http.MethodPost, base+"/cart/items", `{"itemId": "latte"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		backend.Lock()
		backend.submitErr = errors.New("sale rejected")
		backend.Unlock()

		rec = doRequest(t, h, http.MethodPost, base+"/checkout", `{"paymentMethod": "CASH"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		rec = doRequest(t, h, http.MethodGet, base+"/cart", "")
		lines := decodeBody(t, rec)["lines"].([]any)
		require.Len(t, lines, 1, "failed checkout leaves the cart intact")

		rec = doRequest(t, h, http.MethodGet, base+"/checkout", "")
		assert.Equal(t, "failed", decodeBody(t, rec)["state"])

		// Acknowledge, fix the backend, retry the same cart.
		rec = doRequest(t, h, http.MethodPost, base+"/checkout/ack", "")
		require.Equal(t, http.StatusNoContent, rec.Code)

		backend.Lock()
		backend.submitErr = nil
		backend.Unlock()

		rec = doRequest(t, h, http.MethodPost, base+"/checkout", `{"paymentMethod": "CASH"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}
