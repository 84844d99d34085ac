package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// FreeCheapestItem gives away the cheapest line once the order has at least
// minCount lines.
type FreeCheapestItem struct {
	minCount int
}

var _ Rule = (*FreeCheapestItem)(nil)

// NewFreeCheapestItem creates the rule. minCount must be at least 1.
func NewFreeCheapestItem(minCount int) (*FreeCheapestItem, error) {
	if minCount < 1 {
		return nil, &RuleConfigError{
			Rule:   string(KindFreeCheapestItem),
			Reason: "minimum item count must be at least 1",
		}
	}
	return &FreeCheapestItem{minCount: minCount}, nil
}

// Name implements Rule.
func (r *FreeCheapestItem) Name() string {
	return string(KindFreeCheapestItem)
}

// Apply returns the price of the cheapest line. Among equally cheap lines
// the first one wins.
func (r *FreeCheapestItem) Apply(o Order) (decimal.Decimal, error) {
	if r.minCount < 1 {
		return decimal.Zero, errors.Wrap(ErrRuleMisconfigured, "minimum item count is not set")
	}
	if !o.Price.IsPositive() || len(o.Lines) < r.minCount {
		return decimal.Zero, nil
	}
	return cheapestLine(o.Lines).Price, nil
}

func cheapestLine(lines []Line) Line {
	cheapest := lines[0]
	for _, l := range lines[1:] {
		if l.Price.LessThan(cheapest.Price) {
			cheapest = l
		}
	}
	return cheapest
}
