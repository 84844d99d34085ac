package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRules(t *testing.T) {
	pct := RuleConfig{Kind: KindPercentageAboveThreshold, Threshold: d("12.00"), Rate: d("0.25")}
	free := RuleConfig{Kind: KindFreeCheapestItem, MinCount: 3}

	tests := []struct {
		name      string
		cfgs      []RuleConfig
		wantNames []string
		wantErr   bool
	}{
		{
			name:      "empty",
			wantNames: []string{},
		},
		{
			name:      "configured order is kept",
			cfgs:      []RuleConfig{free, pct},
			wantNames: []string{"free_cheapest_item", "percentage_above_threshold"},
		},
		{
			name:    "unknown kind",
			cfgs:    []RuleConfig{pct, {Kind: "buy_one_get_one"}},
			wantErr: true,
		},
		{
			name:    "duplicate kind",
			cfgs:    []RuleConfig{pct, pct},
			wantErr: true,
		},
		{
			name:    "invalid parameters",
			cfgs:    []RuleConfig{{Kind: KindFreeCheapestItem}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := BuildRules(tt.cfgs)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidInput)
				assert.Nil(t, rules)
				return
			}
			require.NoError(t, err)

			names := make([]string, 0, len(rules))
			for _, r := range rules {
				names = append(names, r.Name())
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}
