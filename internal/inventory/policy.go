package inventory

import (
	"math"
	"time"
)

// Policy holds the numeric knobs of the reorder policy.
type Policy struct {
	ReorderFraction    float64
	OrderingCost       float64
	HoldingCostRate    float64
	MaxOrderQuantity   int
	SeasonalAdjustment bool
	DemandFloor        float64
}

// ReorderPoint is floor(maxStock * fraction).
func ReorderPoint(maxStock int, fraction float64) int {
	rp := int(math.Floor(float64(maxStock)*fraction + 1e-9))
	if rp < 0 {
		return 0
	}
	return rp
}

// NeedsRestock is true when stock is at or below the reorder point, or when the
// stock would run out within the lead time plus a day at forecast demand. Demand
// below floor is treated as floor.
func NeedsRestock(rec Record, dailyDemand, floor float64) bool {
	if rec.CurrentStock <= rec.ReorderPoint {
		return true
	}
	demand := math.Max(dailyDemand, floor)
	daysOfCover := float64(rec.CurrentStock) / demand
	return daysOfCover <= float64(rec.LeadTimeDays+1)
}

// EOQ is the economic order quantity sqrt(2*D*S/H) with D the annual demand, S the
// cost per order and H the annual holding cost per unit.
func EOQ(dailyDemand, unitCost, orderingCost, holdingCostRate float64) float64 {
	annual := dailyDemand * 365
	holding := unitCost * holdingCostRate
	if holding <= 0 {
		return math.Inf(1)
	}
	if annual <= 0 {
		return 0
	}
	return math.Sqrt(2 * annual * orderingCost / holding)
}

// OrderQuantity rounds the EOQ and clamps it to [1, min(MaxOrderQuantity, room)] where
// room is the space left under MaxStock. Seasonal scaling is applied after the clamp
// and the result is clamped again. A shelf with no room yields 0.
func (p Policy) OrderQuantity(rec Record, dailyDemand float64, month time.Month) int {
	demand := math.Max(dailyDemand, p.DemandFloor)
	upper := p.MaxOrderQuantity
	if room := rec.MaxStock - rec.CurrentStock; room < upper {
		upper = room
	}
	if upper < 1 {
		return 0
	}

	qty := clampQty(EOQ(demand, rec.Cost, p.OrderingCost, p.HoldingCostRate), upper)
	if p.SeasonalAdjustment {
		qty = clampQty(float64(qty)*SeasonalFactor(rec.Category, month), upper)
	}
	return qty
}

func clampQty(v float64, upper int) int {
	if math.IsInf(v, 1) || v > float64(upper) {
		return upper
	}
	q := int(math.Round(v))
	if q < 1 {
		return 1
	}
	if q > upper {
		return upper
	}
	return q
}

// UrgencyFor classifies a product by how full its shelf is, then by trend.
func UrgencyFor(rec Record, trend Trend) Urgency {
	ratio := 0.0
	if rec.MaxStock > 0 {
		ratio = float64(rec.CurrentStock) / float64(rec.MaxStock)
	}
	switch {
	case ratio < 0.1:
		return UrgencyCritical
	case ratio < 0.2:
		return UrgencyHigh
	case trend == TrendIncreasing:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// seasonalFactors are month-indexed (January first) demand multipliers per category.
var seasonalFactors = map[string][12]float64{
	"produce":   {0.9, 0.9, 1.0, 1.0, 1.1, 1.2, 1.2, 1.2, 1.1, 1.0, 0.9, 0.9},
	"seasonal":  {0.5, 0.5, 0.7, 0.9, 1.2, 1.5, 1.6, 1.5, 1.0, 0.7, 0.5, 0.5},
	"bakery":    {1.0, 1.0, 1.0, 1.1, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.1, 1.2},
	"household": {1.0, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 1.0, 1.0, 1.3, 1.3},
}

// SeasonalFactor returns the multiplier for category in month. Unknown categories get 1.
func SeasonalFactor(category string, month time.Month) float64 {
	factors, ok := seasonalFactors[category]
	if !ok || month < time.January || month > time.December {
		return 1.0
	}
	return factors[month-1]
}
