package backend

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/salepoint/pos-terminal/internal/domain/catalog"
	"github.com/salepoint/pos-terminal/internal/domain/checkout"
)

// timestampLayouts covers the backend's sale timestamps: RFC 3339 and the
// zone-less form some JVM serializers emit for LocalDateTime.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// decodeProducts parses the GET /api/products response body.
func decodeProducts(data []byte) ([]catalog.Item, error) {
	d := jx.DecodeBytes(data)

	var items []catalog.Item
	if err := d.Arr(func(d *jx.Decoder) error {
		item, err := decodeProduct(d)
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	}); err != nil {
		return nil, err
	}
	return items, nil
}

func decodeProduct(d *jx.Decoder) (catalog.Item, error) {
	var item catalog.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			item.ID, err = decodeOpaqueID(d)
		case "name":
			item.Name, err = d.Str()
		case "category":
			item.Category, err = decodeNullableStr(d)
		case "imageUrl":
			item.ImageURL, err = decodeNullableStr(d)
		case "price":
			item.UnitPrice, err = decodeDecimal(d)
		case "promoPrice":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var promo decimal.Decimal
			promo, err = decodeDecimal(d)
			if err == nil {
				item.PromoPrice = &promo
			}
		case "quantity":
			item.AvailableQuantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return item, err
}

// decodeOpaqueID accepts both string and numeric identifiers; the core
// treats them as opaque strings either way.
func decodeOpaqueID(d *jx.Decoder) (string, error) {
	if d.Next() == jx.String {
		return d.Str()
	}
	n, err := d.Num()
	if err != nil {
		return "", err
	}
	return string(n), nil
}

func decodeNullableStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	v, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "parse decimal")
	}
	return v, nil
}

// encodeSaleRequest builds the POST /api/sales body: one object carrying the
// operator, the payment method, and every cart line.
func encodeSaleRequest(req checkout.SaleRequest) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("operatorId", func(e *jx.Encoder) { e.Str(req.Operator.ID) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(req.PaymentMethod)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range req.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(l.ItemID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("unitPrice", func(e *jx.Encoder) { e.Num(jx.Num(l.UnitPrice.String())) })
					})
				}
			})
		})
	})
	return e.Bytes()
}

// decodeConfirmation parses the POST /api/sales response body.
func decodeConfirmation(data []byte) (*checkout.Confirmation, error) {
	d := jx.DecodeBytes(data)

	var (
		conf      checkout.Confirmation
		createdAt string
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "reference":
			conf.Reference, err = d.Str()
		case "createdAt":
			createdAt, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}

	if conf.Reference == "" {
		return nil, errors.New("confirmation missing reference")
	}

	conf.Timestamp = parseTimestamp(createdAt)
	return &conf, nil
}

// parseTimestamp is lenient: an unparseable or absent timestamp falls back to
// the terminal clock rather than failing a sale that is already recorded.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}

// decodeErrorMessage extracts a human-readable message from an error response
// body. Returns an empty string when the body is not a recognizable shape.
func decodeErrorMessage(data []byte) string {
	d := jx.DecodeBytes(data)

	var msg string
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "message", "error":
			s, err := d.Str()
			if err != nil {
				return err
			}
			if msg == "" {
				msg = s
			}
			return nil
		default:
			return d.Skip()
		}
	})
	return msg
}
