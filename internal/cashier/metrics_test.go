package cashier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSatisfactionScore(t *testing.T) {
	baseline := ExpectedDuration(5) // 40s
	tests := []struct {
		name   string
		d      time.Duration
		lines  int
		jitter float64
		want   float64
	}{
		{"faster than baseline", 20 * time.Second, 0, 0, 0.9},
		{"at baseline", baseline, 0, 0, 0.7},
		{"more than double", 2*baseline + time.Second, 0, 0, 0.4},
		{"conversation bonus", baseline, 4, 0, 0.74},
		{"conversation bonus is capped", baseline, 40, 0, 0.8},
		{"clamped high", time.Second, 40, 0.05, 1.0},
		{"negative jitter", 2*baseline + time.Second, 0, -0.05, 0.35},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, satisfactionScore(tt.d, 5, tt.lines, tt.jitter), 1e-9)
		})
	}
}

func TestComputeMetrics(t *testing.T) {
	assert.Equal(t, Metrics{}, computeMetrics(nil, 20))

	var history []*Transaction
	// Five old failures fall outside the window of twenty.
	for i := 0; i < 5; i++ {
		history = append(history, &Transaction{Status: StatusFailed})
	}
	for i := 0; i < 18; i++ {
		sat := 0.9
		if i%2 == 0 {
			sat = 0.5
		}
		history = append(history, &Transaction{
			Status:       StatusCompleted,
			StartedAt:    epoch,
			CompletedAt:  epoch.Add(10 * time.Second),
			Satisfaction: sat,
		})
	}
	history = append(history, &Transaction{Status: StatusFailed}, &Transaction{Status: StatusFailed})

	m := computeMetrics(history, 20)
	assert.Equal(t, 10*time.Second, m.AverageDuration)
	assert.InDelta(t, 0.5, m.SatisfactionRate, 1e-9)
	assert.InDelta(t, 0.1, m.ErrorRate, 1e-9)
}
