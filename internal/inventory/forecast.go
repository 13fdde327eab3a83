package inventory

import (
	"math"
	"time"
)

// trendBand is the relative change between the first and last third of the window
// that counts as a trend.
const trendBand = 0.10

// ComputeForecast builds a forecast from daily unit sales, oldest first. Demand is the
// simple moving average over the whole window. Trend compares the mean of the first
// third to the mean of the last third. Confidence scales with the share of days that
// saw sales and falls with the coefficient of variation.
func ComputeForecast(productID string, daily []float64, now time.Time) Forecast {
	f := Forecast{ProductID: productID, Trend: TrendStable, LastUpdated: now}
	n := len(daily)
	if n == 0 {
		return f
	}

	mean := average(daily)
	f.DailyDemand = mean
	f.Trend = classifyTrend(daily)

	if mean <= 0 {
		return f
	}
	var variance float64
	active := 0
	for _, v := range daily {
		variance += (v - mean) * (v - mean)
		if v > 0 {
			active++
		}
	}
	cv := math.Sqrt(variance/float64(n)) / mean
	coverage := float64(active) / float64(n)
	f.Confidence = clamp01(coverage * (1 - math.Min(1, cv)))
	return f
}

func classifyTrend(daily []float64) Trend {
	third := len(daily) / 3
	if third == 0 {
		return TrendStable
	}
	early := average(daily[:third])
	late := average(daily[len(daily)-third:])
	if early == 0 {
		if late > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}
	change := (late - early) / early
	switch {
	case change > trendBand:
		return TrendIncreasing
	case change < -trendBand:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func average(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
