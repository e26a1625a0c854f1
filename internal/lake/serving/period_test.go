package serving

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
)

func TestBounds(t *testing.T) {
	// A Wednesday mid-afternoon, mid-quarter.
	now := time.Date(2024, time.August, 14, 15, 42, 7, 123, time.UTC)

	tests := []struct {
		name   string
		period domain.Period
		start  time.Time
		end    time.Time
	}{
		{
			name:   "daily floors to midnight",
			period: domain.PeriodDaily,
			start:  time.Date(2024, time.August, 14, 0, 0, 0, 0, time.UTC),
			end:    time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "weekly anchors on Monday",
			period: domain.PeriodWeekly,
			start:  time.Date(2024, time.August, 12, 0, 0, 0, 0, time.UTC),
			end:    time.Date(2024, time.August, 19, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "monthly uses calendar boundaries",
			period: domain.PeriodMonthly,
			start:  time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
			end:    time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "quarterly starts at July for an August date",
			period: domain.PeriodQuarterly,
			start:  time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC),
			end:    time.Date(2024, time.October, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "yearly covers the calendar year",
			period: domain.PeriodYearly,
			start:  time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			end:    time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bounds := Bounds(tt.period, now)
			assert.Equal(t, tt.start, bounds.Start)
			assert.Equal(t, tt.end, bounds.End)
			// End is exclusive: now always falls inside its own period.
			assert.True(t, !now.Before(bounds.Start) && now.Before(bounds.End))
		})
	}
}

func TestBoundsWeeklyOnMonday(t *testing.T) {
	// A Monday is its own week start.
	monday := time.Date(2024, time.August, 12, 3, 0, 0, 0, time.UTC)
	bounds := Bounds(domain.PeriodWeekly, monday)
	require.Equal(t, time.Date(2024, time.August, 12, 0, 0, 0, 0, time.UTC), bounds.Start)
	require.Equal(t, 7*24*time.Hour, bounds.End.Sub(bounds.Start))
}

func TestBoundsWeeklyOnSunday(t *testing.T) {
	// Sunday belongs to the week that started the previous Monday.
	sunday := time.Date(2024, time.August, 18, 23, 59, 0, 0, time.UTC)
	bounds := Bounds(domain.PeriodWeekly, sunday)
	require.Equal(t, time.Date(2024, time.August, 12, 0, 0, 0, 0, time.UTC), bounds.Start)
}

func TestBoundsQuarterEdges(t *testing.T) {
	for month, wantStart := range map[time.Month]time.Month{
		time.January: time.January, time.March: time.January,
		time.April: time.April, time.June: time.April,
		time.July: time.July, time.September: time.July,
		time.October: time.October, time.December: time.October,
	} {
		now := time.Date(2024, month, 15, 12, 0, 0, 0, time.UTC)
		bounds := Bounds(domain.PeriodQuarterly, now)
		assert.Equal(t, wantStart, bounds.Start.Month(), "month %s", month)
	}
}
