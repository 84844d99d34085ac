package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Rule is a stateless discount policy. Apply receives the order with lines
// and cart total computed and no discount set, and returns the discount it
// would grant. Zero means the rule does not apply; an error means the rule
// could not be evaluated at all.
type Rule interface {
	Name() string
	Apply(o Order) (decimal.Decimal, error)
}

// ErrRuleMisconfigured is returned by Apply when a rule lacks the
// configuration it needs, for example a zero value that skipped its constructor.
var ErrRuleMisconfigured = errors.New("discount rule misconfigured")

// RuleConfigError reports invalid rule parameters. It matches ErrInvalidInput.
type RuleConfigError struct {
	Rule   string
	Reason string
}

func (e *RuleConfigError) Error() string {
	return fmt.Sprintf("discount rule %s: %s", e.Rule, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) hold.
func (e *RuleConfigError) Is(target error) bool {
	return target == ErrInvalidInput
}

// RuleKind names a rule implementation in configuration.
type RuleKind string

const (
	KindPercentageAboveThreshold RuleKind = "percentage_above_threshold"
	KindFreeCheapestItem         RuleKind = "free_cheapest_item"
)

// RuleConfig holds the parameters of one configured rule. Only the fields
// relevant to Kind are read.
type RuleConfig struct {
	Kind      RuleKind
	Threshold decimal.Decimal
	Rate      decimal.Decimal
	MinCount  int
}

type ruleFactory func(cfg RuleConfig) (Rule, error)

var factories = map[RuleKind]ruleFactory{
	KindPercentageAboveThreshold: func(cfg RuleConfig) (Rule, error) {
		return NewPercentageAboveThreshold(cfg.Threshold, cfg.Rate)
	},
	KindFreeCheapestItem: func(cfg RuleConfig) (Rule, error) {
		return NewFreeCheapestItem(cfg.MinCount)
	},
}

// BuildRules constructs rules in configuration order. That order is the
// evaluation order of the Selector and decides ties.
func BuildRules(cfgs []RuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(cfgs))
	seen := make(map[RuleKind]struct{}, len(cfgs))
	for _, cfg := range cfgs {
		factory, ok := factories[cfg.Kind]
		if !ok {
			return nil, &RuleConfigError{Rule: string(cfg.Kind), Reason: "unknown rule kind"}
		}
		if _, dup := seen[cfg.Kind]; dup {
			return nil, &RuleConfigError{Rule: string(cfg.Kind), Reason: "configured more than once"}
		}
		seen[cfg.Kind] = struct{}{}

		r, err := factory(cfg)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
