package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// PercentageAboveThreshold discounts a fixed share of the cart total when
// the total is strictly greater than a threshold.
type PercentageAboveThreshold struct {
	threshold decimal.Decimal
	rate      decimal.Decimal
}

var _ Rule = (*PercentageAboveThreshold)(nil)

// NewPercentageAboveThreshold creates the rule. rate is a fraction in (0, 1],
// so 0.25 means 25%.
func NewPercentageAboveThreshold(threshold, rate decimal.Decimal) (*PercentageAboveThreshold, error) {
	name := string(KindPercentageAboveThreshold)
	if threshold.IsNegative() {
		return nil, &RuleConfigError{Rule: name, Reason: "threshold must not be negative"}
	}
	if !rate.IsPositive() || rate.GreaterThan(one) {
		return nil, &RuleConfigError{Rule: name, Reason: "rate must be in (0, 1]"}
	}
	return &PercentageAboveThreshold{threshold: threshold, rate: rate}, nil
}

// Name implements Rule.
func (r *PercentageAboveThreshold) Name() string {
	return string(KindPercentageAboveThreshold)
}

// Apply returns total × rate, unrounded, or zero when the total does not
// exceed the threshold.
func (r *PercentageAboveThreshold) Apply(o Order) (decimal.Decimal, error) {
	if !r.rate.IsPositive() {
		return decimal.Zero, errors.Wrap(ErrRuleMisconfigured, "rate is not set")
	}
	total := o.Price
	if !total.IsPositive() || !total.GreaterThan(r.threshold) {
		return decimal.Zero, nil
	}
	return total.Mul(r.rate), nil
}
