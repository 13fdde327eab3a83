package advisor

import (
	"math"
	"time"

	"github.com/xkilldash9x/shopkeep/internal/clock"
	"github.com/xkilldash9x/shopkeep/internal/inventory"
	"github.com/xkilldash9x/shopkeep/internal/world"
)

// StaffingSnapshot summarizes staff load.
type StaffingSnapshot struct {
	Headcount       int     `json:"headcount"`
	AverageWorkload float64 `json:"average_workload"`
	// BurnoutRisk is the workload of the most loaded staff member.
	BurnoutRisk float64 `json:"burnout_risk"`
}

// CashFlowSnapshot summarizes the books.
type CashFlowSnapshot struct {
	Cash       float64 `json:"cash"`
	NetDaily   float64 `json:"net_daily"`
	Projection float64 `json:"projection"`
}

// DemandSnapshot is the forecast for one product.
type DemandSnapshot struct {
	ProductID   string          `json:"product_id"`
	DailyDemand float64         `json:"daily_demand"`
	Trend       inventory.Trend `json:"trend"`
}

// AnalyticsSource supplies read-only snapshots of the store to the advisor.
type AnalyticsSource interface {
	// MarketTrend is the relative change in revenue, week over week.
	MarketTrend() float64
	StaffingLoad() StaffingSnapshot
	CashFlow() CashFlowSnapshot
	Demand() []DemandSnapshot
	// Satisfaction is the recent average customer satisfaction in [0,1].
	Satisfaction() float64
}

// ForecastProvider exposes the replenishment engine's current forecasts.
type ForecastProvider interface {
	Forecasts() []inventory.Forecast
}

const (
	projectionDays      = 30
	neutralSatisfaction = 0.75
	satisfactionSamples = 50
	week                = 7 * 24 * time.Hour
)

// WorldAnalytics derives snapshots from the shared world state and inventory forecasts.
type WorldAnalytics struct {
	state     *world.State
	forecasts ForecastProvider
	clk       clock.Clock
}

// NewWorldAnalytics builds the production analytics source. forecasts may be nil.
func NewWorldAnalytics(state *world.State, forecasts ForecastProvider, clk clock.Clock) *WorldAnalytics {
	if clk == nil {
		clk = clock.Real{}
	}
	return &WorldAnalytics{state: state, forecasts: forecasts, clk: clk}
}

// MarketTrend compares the last seven days of revenue with the seven before.
func (w *WorldAnalytics) MarketTrend() float64 {
	now := w.clk.Now()
	recent := w.state.RevenueBetween(now.Add(-week), now)
	prior := w.state.RevenueBetween(now.Add(-2*week), now.Add(-week))
	if prior <= 0 {
		return 0
	}
	return (recent - prior) / prior
}

// StaffingLoad reports headcount, mean workload and the peak workload.
func (w *WorldAnalytics) StaffingLoad() StaffingSnapshot {
	staff := w.state.Staff()
	snap := StaffingSnapshot{Headcount: len(staff)}
	if len(staff) == 0 {
		return snap
	}
	var total float64
	for _, m := range staff {
		total += m.Workload
		snap.BurnoutRisk = math.Max(snap.BurnoutRisk, m.Workload)
	}
	snap.AverageWorkload = total / float64(len(staff))
	return snap
}

// CashFlow projects the last day's net movement forward thirty days.
func (w *WorldAnalytics) CashFlow() CashFlowSnapshot {
	cash := w.state.Cash()
	net := w.state.NetCashFlow(24 * time.Hour)
	return CashFlowSnapshot{Cash: cash, NetDaily: net, Projection: cash + net*projectionDays}
}

// Demand lists the current forecasts.
func (w *WorldAnalytics) Demand() []DemandSnapshot {
	if w.forecasts == nil {
		return nil
	}
	fs := w.forecasts.Forecasts()
	out := make([]DemandSnapshot, len(fs))
	for i, f := range fs {
		out[i] = DemandSnapshot{ProductID: f.ProductID, DailyDemand: f.DailyDemand, Trend: f.Trend}
	}
	return out
}

// Satisfaction averages recent samples, or reports a neutral score with none.
func (w *WorldAnalytics) Satisfaction() float64 {
	avg, ok := w.state.AverageSatisfaction(satisfactionSamples)
	if !ok {
		return neutralSatisfaction
	}
	return avg
}
