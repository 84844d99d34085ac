package pricing

import (
	"context"
	"slices"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Selector evaluates rules against an order and applies the one that yields
// the lowest resulting price. At most one discount is ever applied.
type Selector struct {
	rules []Rule
}

// NewSelector creates a Selector evaluating rules in the given order.
func NewSelector(rules ...Rule) *Selector {
	return &Selector{rules: slices.Clone(rules)}
}

// Rules returns the registered rules in evaluation order.
func (s *Selector) Rules() []Rule {
	return slices.Clone(s.rules)
}

// Select returns a copy of o with the best discount applied. o.Price must
// hold the cart total; any discount fields on o are ignored.
//
// A rule wins only if its resulting price is strictly lower than the best
// found so far, starting from the undiscounted total, so ties keep the
// earlier rule. Rules that fail to evaluate are logged and skipped.
// The winning amount is rounded half up to Scale digits when applied.
func (s *Selector) Select(ctx context.Context, o Order) Order {
	lg := zctx.From(ctx)

	var (
		bestDiscount = decimal.Zero
		bestPrice    = o.Price
		bestRule     string
	)
	for _, r := range s.rules {
		discount, err := r.Apply(o)
		if err != nil {
			lg.Warn("Discount rule evaluation failed",
				zap.String("rule", r.Name()),
				zap.Error(err),
			)
			continue
		}
		if discount.IsNegative() {
			lg.Warn("Discount rule returned negative amount",
				zap.String("rule", r.Name()),
				zap.Stringer("amount", discount),
			)
			continue
		}
		if discount.GreaterThan(o.Price) {
			discount = o.Price
		}

		candidate := o.Price.Sub(discount)
		if candidate.LessThan(bestPrice) {
			bestDiscount = discount
			bestPrice = candidate
			bestRule = r.Name()
		}
	}

	out := Order{
		Lines: slices.Clone(o.Lines),
		Price: o.Price,
	}

	applied := bestDiscount.Round(Scale)
	if !applied.IsPositive() {
		lg.Debug("No discount applied", zap.Stringer("price", o.Price))
		return out
	}

	out.OriginalPrice = decimal.NewNullDecimal(o.Price)
	out.Discount = decimal.NewNullDecimal(applied)
	out.Price = o.Price.Sub(applied)
	out.Rule = bestRule

	lg.Debug("Effective discount",
		zap.String("rule", bestRule),
		zap.Stringer("discount", applied),
		zap.Stringer("price", out.Price),
	)
	return out
}
