// Package pricing computes order prices and selects the single most
// favorable discount among a configured set of rules.
//
// The pipeline is one way: line requests are priced against a Catalog,
// summed with Total, and the resulting Order is passed through a Selector.
// Every stage returns a new value; nothing is mutated in place.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/coffee-store/internal/domain/catalog"
)

// Scale is the number of fractional digits of the currency minor unit.
const Scale = 2

// ErrInvalidInput is matched by every validation failure of pricing input
// and rule configuration.
var ErrInvalidInput = errors.New("invalid input")

// InputError describes a rejected request field. It matches ErrInvalidInput.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) hold.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ErrNoLines is returned when an order has no lines.
var ErrNoLines = &InputError{Field: "items", Reason: "at least one item is required"}

// LineRequest references one drink and its toppings by id.
type LineRequest struct {
	DrinkID    int64
	ToppingIDs []int64
}

// Line is one priced drink with its toppings. Price equals the drink price
// plus the sum of topping prices at the time the line was priced.
type Line struct {
	Drink    catalog.Item
	Toppings []catalog.Item
	Price    decimal.Decimal
}

// Order is a priced snapshot of a cart.
//
// When Discount is valid, OriginalPrice holds the cart total and
// Price = OriginalPrice - Discount. Otherwise both are null and Price is the
// cart total.
type Order struct {
	Lines         []Line
	OriginalPrice decimal.NullDecimal
	Discount      decimal.NullDecimal
	// Rule is the name of the applied discount rule, empty when none applied.
	Rule  string
	Price decimal.Decimal
}

// Discounted reports whether a discount was applied.
func (o Order) Discounted() bool {
	return o.Discount.Valid
}

// Total returns the cart total before any discount.
func (o Order) Total() decimal.Decimal {
	if o.OriginalPrice.Valid {
		return o.OriginalPrice.Decimal
	}
	return o.Price
}

// ValidateLines checks the shape of a cart request before any lookups run.
func ValidateLines(lines []LineRequest) error {
	if len(lines) == 0 {
		return ErrNoLines
	}
	for i, l := range lines {
		if l.DrinkID <= 0 {
			return &InputError{
				Field:  fmt.Sprintf("items[%d].drinkId", i),
				Reason: "must be greater than 0",
			}
		}
		for j, id := range l.ToppingIDs {
			if id <= 0 {
				return &InputError{
					Field:  fmt.Sprintf("items[%d].toppingIds[%d]", i, j),
					Reason: "must be greater than 0",
				}
			}
		}
	}
	return nil
}
