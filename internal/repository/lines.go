package repository

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/coffee-store/internal/domain/catalog"
	"github.com/xenking/coffee-store/internal/domain/pricing"
)

// Order lines are stored as a JSONB array:
//
//	[{"drink":{"id":1,"name":"Latte","price":"5.00"},"toppings":[...],"price":"7.00"}]
//
// Prices are JSON strings so the exact decimal survives a round trip.

func encodeLines(lines []pricing.Line) []byte {
	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, l := range lines {
			e.Obj(func(e *jx.Encoder) {
				e.Field("drink", func(e *jx.Encoder) { encodeItem(e, l.Drink) })
				e.Field("toppings", func(e *jx.Encoder) {
					e.Arr(func(e *jx.Encoder) {
						for _, t := range l.Toppings {
							encodeItem(e, t)
						}
					})
				})
				e.Field("price", func(e *jx.Encoder) { e.Str(l.Price.String()) })
			})
		}
	})
	return e.Bytes()
}

func encodeItem(e *jx.Encoder, it catalog.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
		e.Field("price", func(e *jx.Encoder) { e.Str(it.Price.String()) })
	})
}

func decodeLines(data []byte) ([]pricing.Line, error) {
	var lines []pricing.Line
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var l pricing.Line
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "drink":
				it, err := decodeItem(d, catalog.KindDrink)
				l.Drink = it
				return err
			case "toppings":
				l.Toppings = []catalog.Item{}
				return d.Arr(func(d *jx.Decoder) error {
					it, err := decodeItem(d, catalog.KindTopping)
					if err != nil {
						return err
					}
					l.Toppings = append(l.Toppings, it)
					return nil
				})
			case "price":
				p, err := decodePrice(d)
				l.Price = p
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order lines")
	}
	return lines, nil
}

func decodeItem(d *jx.Decoder, kind catalog.Kind) (catalog.Item, error) {
	it := catalog.Item{Kind: kind}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			it.ID, err = d.Int64()
		case "name":
			it.Name, err = d.Str()
		case "price":
			it.Price, err = decodePrice(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return it, err
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}
