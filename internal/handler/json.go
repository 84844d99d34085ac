package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/coffee-store/internal/domain/catalog"
	"github.com/xenking/coffee-store/internal/domain/order"
	"github.com/xenking/coffee-store/internal/domain/pricing"
)

const maxBodyBytes = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badRequest("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, errors.Wrap(err, "read body")
	}
	return body, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id %q", raw)
	}
	return id, nil
}

// Money is written as a JSON number with exactly two decimals.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(pricing.Scale)))
}

// decodeMoney accepts a JSON number or a numeric string.
func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = string(n)
	default:
		return decimal.Zero, errors.New("price must be a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Errorf("invalid price %q", raw)
	}
	return v, nil
}

func decodeItemInput(body []byte) (catalog.Input, error) {
	var (
		in       catalog.Input
		hasPrice bool
	)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			in.Name, err = d.Str()
		case "price":
			in.Price, err = decodeMoney(d)
			hasPrice = true
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return catalog.Input{}, badRequest("invalid item body: %v", err)
	}
	if !hasPrice {
		return catalog.Input{}, &catalog.InvalidItemError{Field: "price", Reason: "is required"}
	}
	return in, nil
}

func decodeOrderRequest(body []byte) ([]pricing.LineRequest, error) {
	var lines []pricing.LineRequest
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			var l pricing.LineRequest
			if err := d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "drinkId":
					l.DrinkID, err = d.Int64()
				case "toppingIds":
					err = d.Arr(func(d *jx.Decoder) error {
						id, err := d.Int64()
						if err != nil {
							return err
						}
						l.ToppingIDs = append(l.ToppingIDs, id)
						return nil
					})
				default:
					err = d.Skip()
				}
				return err
			}); err != nil {
				return err
			}
			lines = append(lines, l)
			return nil
		})
	})
	if err != nil {
		return nil, badRequest("invalid order body: %v", err)
	}
	return lines, nil
}

func encodeItem(e *jx.Encoder, it catalog.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, it.Price) })
	})
}

func encodeItems(e *jx.Encoder, items []catalog.Item) {
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			encodeItem(e, it)
		}
	})
}

// encodePricing writes the priced fields shared by quotes and stored orders.
// originalPrice, discount and discountRule are omitted when no discount
// applies.
func encodePricing(e *jx.Encoder, o pricing.Order) {
	if o.Discounted() {
		e.Field("originalPrice", func(e *jx.Encoder) { encodeMoney(e, o.OriginalPrice.Decimal) })
		e.Field("discount", func(e *jx.Encoder) { encodeMoney(e, o.Discount.Decimal) })
		e.Field("discountRule", func(e *jx.Encoder) { e.Str(o.Rule) })
	}
	e.Field("price", func(e *jx.Encoder) { encodeMoney(e, o.Price) })
	e.Field("items", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, l := range o.Lines {
				e.Obj(func(e *jx.Encoder) {
					e.Field("drink", func(e *jx.Encoder) { encodeItem(e, l.Drink) })
					e.Field("toppings", func(e *jx.Encoder) { encodeItems(e, l.Toppings) })
					e.Field("price", func(e *jx.Encoder) { encodeMoney(e, l.Price) })
				})
			}
		})
	})
}

func encodeQuote(e *jx.Encoder, o pricing.Order) {
	e.Obj(func(e *jx.Encoder) { encodePricing(e, o) })
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("owner", func(e *jx.Encoder) { e.Str(o.OwnerID) })
		encodePricing(e, o.Order)
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(timeLayout)) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(o.UpdatedAt.UTC().Format(timeLayout)) })
	})
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
