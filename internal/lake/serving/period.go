// Package serving implements the serving zone: pre-aggregated, user-scoped
// dashboard views computed from the canonical zone and cached for fast
// reads.
package serving

import (
	"time"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
)

// PeriodBounds is a half-open [Start, End) window.
type PeriodBounds struct {
	Start time.Time
	End   time.Time
}

// Bounds computes the [start, end) window for a period anchored at now:
// daily is floor(now, day)+1d; weekly is Monday-anchored, +7d;
// monthly/quarterly/yearly use calendar boundaries with end = start of the
// next period. End is always exclusive.
func Bounds(period domain.Period, now time.Time) PeriodBounds {
	now = now.UTC()
	switch period {
	case domain.PeriodDaily:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return PeriodBounds{Start: start, End: start.AddDate(0, 0, 1)}
	case domain.PeriodWeekly:
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		// time.Weekday: Sunday=0 ... Saturday=6; Monday-anchor offset back to Monday.
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return PeriodBounds{Start: start, End: start.AddDate(0, 0, 7)}
	case domain.PeriodMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return PeriodBounds{Start: start, End: start.AddDate(0, 1, 0)}
	case domain.PeriodQuarterly:
		quarterStartMonth := time.Month(((int(now.Month())-1)/3)*3 + 1)
		start := time.Date(now.Year(), quarterStartMonth, 1, 0, 0, 0, 0, time.UTC)
		return PeriodBounds{Start: start, End: start.AddDate(0, 3, 0)}
	case domain.PeriodYearly:
		start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return PeriodBounds{Start: start, End: start.AddDate(1, 0, 0)}
	default:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return PeriodBounds{Start: start, End: start.AddDate(0, 0, 1)}
	}
}

// StalledThreshold is the age beyond which an open opportunity with no
// recent activity is considered stalled.
const StalledThreshold = 14 * 24 * time.Hour
