package cashier

import (
	"time"

	"go.uber.org/zap"
)

const (
	baseSatisfaction      = 0.7
	fastBonus             = 0.2
	slowPenalty           = 0.3
	conversationBonusStep = 0.01
	conversationBonusCap  = 0.1
	satisfiedThreshold    = 0.7

	baselineFixed   = 30 * time.Second
	baselinePerUnit = 2 * time.Second
)

// ExpectedDuration is the baseline processing time for a cart of the given size.
func ExpectedDuration(units int) time.Duration {
	return baselineFixed + time.Duration(units)*baselinePerUnit
}

// satisfactionScore rates a completed transaction. Faster than baseline earns a bonus,
// more than twice the baseline a penalty; chattier transactions earn a little more.
// The result is clamped to [0,1].
func satisfactionScore(d time.Duration, units, lines int, jitter float64) float64 {
	baseline := ExpectedDuration(units)
	score := baseSatisfaction
	if d < baseline {
		score += fastBonus
	}
	if d > 2*baseline {
		score -= slowPenalty
	}
	bonus := float64(lines) * conversationBonusStep
	if bonus > conversationBonusCap {
		bonus = conversationBonusCap
	}
	score += bonus + jitter
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// computeMetrics summarizes the last window terminal transactions in history.
func computeMetrics(history []*Transaction, window int) Metrics {
	recent := history
	if window > 0 && len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	var m Metrics
	if len(recent) == 0 {
		return m
	}

	var total time.Duration
	var completed, satisfied, failed int
	for _, tx := range recent {
		switch tx.Status {
		case StatusCompleted:
			completed++
			total += tx.Duration()
			if tx.Satisfaction >= satisfiedThreshold {
				satisfied++
			}
		case StatusFailed:
			failed++
		}
	}
	if completed > 0 {
		m.AverageDuration = total / time.Duration(completed)
		m.SatisfactionRate = float64(satisfied) / float64(completed)
	}
	m.ErrorRate = float64(failed) / float64(len(recent))
	return m
}

// RefreshMetrics recomputes the rolling metrics. The scheduler calls it periodically.
func (p *Pipeline) RefreshMetrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := computeMetrics(p.history, p.cfg.MetricsWindow)
	p.metrics = p.withCountsLocked(m)
	p.logger.Debug("Cashier metrics refreshed",
		zap.Duration("avg_duration", m.AverageDuration),
		zap.Float64("satisfaction_rate", m.SatisfactionRate),
		zap.Float64("error_rate", m.ErrorRate),
	)
	return p.metrics
}

// Metrics returns the last computed rolling metrics with live counters.
func (p *Pipeline) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.withCountsLocked(p.metrics)
}

func (p *Pipeline) withCountsLocked(m Metrics) Metrics {
	m.Completed = p.completed
	m.Failed = p.failed
	m.Escalated = p.escalated
	m.Queued = len(p.queue)
	m.Processing = len(p.processing)
	return m
}
