package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHealth(t *testing.T) {
	now := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	interval := 15 * time.Minute
	recent := now.Add(-5 * time.Minute)
	old := now.Add(-3 * time.Hour)

	tests := []struct {
		name           string
		successRate    float64
		failures24h    int
		failuresLast2h int
		lastSuccess    *time.Time
		want           HealthStatus
	}{
		{"all good", 100, 0, 0, &recent, HealthHealthy},
		{"low rate with enough failures is critical", 40, 5, 5, &recent, HealthCritical},
		{"low rate but too few failures is only degraded", 40, 2, 0, &recent, HealthDegraded},
		{"rate under eighty is degraded", 75, 1, 0, &recent, HealthDegraded},
		{"fresh failure is degraded even at a high rate", 95, 1, 1, &recent, HealthDegraded},
		{"no recent success is stale", 100, 0, 0, &old, HealthStale},
		{"never succeeded is stale", 100, 0, 0, nil, HealthStale},
		{"critical outranks stale", 30, 4, 4, nil, HealthCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyHealth(tt.successRate, tt.failures24h, tt.failuresLast2h, tt.lastSuccess, interval, now)
			assert.Equal(t, tt.want, got)
		})
	}
}
