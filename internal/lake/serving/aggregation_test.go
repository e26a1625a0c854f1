package serving

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name           string
		agg            opportunityAgg
		winRate        float64
		avgDealSize    float64
		conversionRate float64
	}{
		{
			name: "two won two lost one open",
			agg: opportunityAgg{
				Total: 5, Open: 1, Won: 2, Lost: 2, WonValue: 1000,
			},
			winRate:        50,
			avgDealSize:    500,
			conversionRate: 40,
		},
		{
			name:           "no closed opportunities leaves every rate at zero",
			agg:            opportunityAgg{Total: 3, Open: 3},
			winRate:        0,
			avgDealSize:    0,
			conversionRate: 0,
		},
		{
			name:           "all won",
			agg:            opportunityAgg{Total: 4, Won: 4, WonValue: 800},
			winRate:        100,
			avgDealSize:    200,
			conversionRate: 100,
		},
		{
			name:           "empty snapshot",
			agg:            opportunityAgg{},
			winRate:        0,
			avgDealSize:    0,
			conversionRate: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			winRate, avgDealSize, conversionRate := derive(tt.agg)
			assert.InDelta(t, tt.winRate, winRate, 1e-9)
			assert.InDelta(t, tt.avgDealSize, avgDealSize, 1e-9)
			assert.InDelta(t, tt.conversionRate, conversionRate, 1e-9)
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-10))
	assert.Equal(t, 0.0, clamp(0))
	assert.Equal(t, 75.0, clamp(75))
	// Overshooting a goal is preserved, not capped.
	assert.Equal(t, 150.0, clamp(150))
}
