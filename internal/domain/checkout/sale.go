package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates the payment methods the backend accepts.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentCard PaymentMethod = "CARD"
)

// ParsePaymentMethod validates a client-supplied payment method string.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentCash, PaymentCard:
		return PaymentMethod(s), nil
	default:
		return "", ErrInvalidPayment
	}
}

// Operator is the resolved identity of the cashier driving the terminal.
type Operator struct {
	ID   string
	Name string
}

// SaleLine is one line of a sale as submitted to the backend: the quantity
// and the price actually charged, captured from the cart at submission time.
type SaleLine struct {
	ItemID    string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// SaleRequest carries a whole cart as one unit. The backend records it
// atomically: either every line is committed and stock decremented, or
// nothing is.
type SaleRequest struct {
	Operator      Operator
	PaymentMethod PaymentMethod
	Lines         []SaleLine
}

// Total returns the sum of the captured line amounts.
func (r SaleRequest) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// Confirmation is the backend's acknowledgement of a recorded sale.
type Confirmation struct {
	Reference string
	Timestamp time.Time
}

// Receipt is the immutable record of a completed sale, produced only by a
// successful checkout. It is a presentation artifact: the backend remains the
// system of record.
type Receipt struct {
	Reference     string
	Lines         []SaleLine
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
	Operator      Operator
	Timestamp     time.Time
}

// Submitter submits a sale to the inventory backend as a single call.
type Submitter interface {
	SubmitSale(ctx context.Context, req SaleRequest) (*Confirmation, error)
}

// CatalogRefresher re-fetches the catalog snapshot after a successful sale so
// subsequent cart operations see updated stock.
type CatalogRefresher interface {
	Refresh(ctx context.Context) error
}
