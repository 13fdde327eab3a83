package advisor

import (
	"fmt"

	"github.com/xkilldash9x/shopkeep/internal/inventory"
)

// Rule thresholds shared by decision analysis and periodic analysis.
const (
	trendThreshold        = 0.05
	burnoutThreshold      = 0.8
	lowWorkloadThreshold  = 0.4
	lowSatisfaction       = 0.6
	highSatisfaction      = 0.85
	expansionReserve      = 10000.0
	manualReviewConf      = 0.3
	exploratoryCreativity = 0.6
)

// evaluator turns analytics into base recommendations for one decision type. Base
// confidences are later scaled by the advisor's own confidence.
type evaluator func(src AnalyticsSource) []Recommendation

var evaluators = map[DecisionType]evaluator{
	DecisionPricing:         evaluatePricing,
	DecisionHiring:          evaluateHiring,
	DecisionInventory:       evaluateInventory,
	DecisionExpansion:       evaluateExpansion,
	DecisionCustomerService: evaluateCustomerService,
}

func evaluatePricing(src AnalyticsSource) []Recommendation {
	trend := src.MarketTrend()
	satisfaction := src.Satisfaction()
	var recs []Recommendation
	switch {
	case trend > trendThreshold && satisfaction >= lowSatisfaction:
		recs = append(recs, Recommendation{
			Action:          "Raise prices 3-5% on high-demand items",
			Reasoning:       fmt.Sprintf("Revenue is up %.0f%% week over week and customers are content.", trend*100),
			Confidence:      0.75,
			ExpectedOutcome: "Higher margin with little loss of volume",
		})
	case trend < -trendThreshold:
		recs = append(recs, Recommendation{
			Action:          "Run a promotion on slow-moving items",
			Reasoning:       fmt.Sprintf("Revenue is down %.0f%% week over week.", -trend*100),
			Confidence:      0.7,
			ExpectedOutcome: "Recovered foot traffic and cleared shelf space",
		})
	default:
		recs = append(recs, Recommendation{
			Action:          "Hold current prices",
			Reasoning:       "Revenue is flat.",
			Confidence:      0.6,
			ExpectedOutcome: "Stable margin",
		})
	}
	if satisfaction < lowSatisfaction {
		recs = append(recs, Recommendation{
			Action:          "Avoid price increases until satisfaction recovers",
			Reasoning:       fmt.Sprintf("Satisfaction is %.2f.", satisfaction),
			Confidence:      0.65,
			ExpectedOutcome: "Retained customers",
		})
	}
	return recs
}

func evaluateHiring(src AnalyticsSource) []Recommendation {
	load := src.StaffingLoad()
	cash := src.CashFlow()
	switch {
	case load.BurnoutRisk > burnoutThreshold && cash.Projection > 0:
		return []Recommendation{{
			Action:          "Hire an additional staff member",
			Reasoning:       fmt.Sprintf("Peak workload is %.2f and cash projects positive.", load.BurnoutRisk),
			Confidence:      0.8,
			ExpectedOutcome: "Lower burnout risk and faster service",
		}}
	case load.BurnoutRisk > burnoutThreshold:
		return []Recommendation{{
			Action:          "Rebalance shifts before hiring",
			Reasoning:       "Staff are overloaded but cash cannot carry another salary.",
			Confidence:      0.6,
			ExpectedOutcome: "Spread load without new payroll",
		}}
	case load.Headcount > 0 && load.AverageWorkload < lowWorkloadThreshold:
		return []Recommendation{{
			Action:          "Reduce scheduled hours",
			Reasoning:       fmt.Sprintf("Average workload is only %.2f.", load.AverageWorkload),
			Confidence:      0.55,
			ExpectedOutcome: "Lower labour cost",
		}}
	default:
		return []Recommendation{{
			Action:          "Keep current staffing",
			Reasoning:       "Workload is within a healthy range.",
			Confidence:      0.6,
			ExpectedOutcome: "No change",
		}}
	}
}

func evaluateInventory(src AnalyticsSource) []Recommendation {
	var recs []Recommendation
	for _, d := range src.Demand() {
		switch d.Trend {
		case inventory.TrendIncreasing:
			recs = append(recs, Recommendation{
				Action:          fmt.Sprintf("Increase stock of %s", d.ProductID),
				Reasoning:       fmt.Sprintf("Demand is rising, now %.1f units a day.", d.DailyDemand),
				Confidence:      0.7,
				ExpectedOutcome: "Fewer stockouts",
			})
		case inventory.TrendDecreasing:
			recs = append(recs, Recommendation{
				Action:          fmt.Sprintf("Reduce orders of %s", d.ProductID),
				Reasoning:       fmt.Sprintf("Demand is falling, now %.1f units a day.", d.DailyDemand),
				Confidence:      0.6,
				ExpectedOutcome: "Less capital tied up in stock",
			})
		}
	}
	if len(recs) == 0 {
		recs = append(recs, Recommendation{
			Action:          "Maintain current stock levels",
			Reasoning:       "No product shows a demand trend.",
			Confidence:      0.5,
			ExpectedOutcome: "No change",
		})
	}
	return recs
}

func evaluateExpansion(src AnalyticsSource) []Recommendation {
	cash := src.CashFlow()
	trend := src.MarketTrend()
	switch {
	case cash.NetDaily < 0:
		return []Recommendation{{
			Action:          "Postpone expansion",
			Reasoning:       fmt.Sprintf("The store lost %.2f over the last day.", -cash.NetDaily),
			Confidence:      0.8,
			ExpectedOutcome: "Preserved cash reserves",
		}}
	case cash.Projection > expansionReserve && trend > 0:
		return []Recommendation{{
			Action:          "Expand floor space",
			Reasoning:       fmt.Sprintf("Projected cash of %.0f and growing revenue.", cash.Projection),
			Confidence:      0.65,
			ExpectedOutcome: "More capacity for growing demand",
		}}
	default:
		return []Recommendation{{
			Action:          "Reassess expansion next quarter",
			Reasoning:       "Reserves or growth are not yet sufficient.",
			Confidence:      0.5,
			ExpectedOutcome: "No change",
		}}
	}
}

func evaluateCustomerService(src AnalyticsSource) []Recommendation {
	satisfaction := src.Satisfaction()
	switch {
	case satisfaction < lowSatisfaction:
		return []Recommendation{{
			Action:          "Add checkout capacity and enable service automation",
			Reasoning:       fmt.Sprintf("Satisfaction has dropped to %.2f.", satisfaction),
			Confidence:      0.75,
			ExpectedOutcome: "Shorter queues and happier customers",
		}}
	case satisfaction > highSatisfaction:
		return []Recommendation{{
			Action:          "Launch a loyalty program",
			Reasoning:       fmt.Sprintf("Satisfaction is high at %.2f.", satisfaction),
			Confidence:      0.6,
			ExpectedOutcome: "More repeat visits",
		}}
	default:
		return []Recommendation{{
			Action:          "Keep monitoring satisfaction",
			Reasoning:       "Satisfaction is acceptable.",
			Confidence:      0.5,
			ExpectedOutcome: "No change",
		}}
	}
}

// exploratory is the extra, low-confidence idea offered when creativity runs high.
func exploratory(t DecisionType, creativity float64) Recommendation {
	actions := map[DecisionType]string{
		DecisionPricing:         "Trial dynamic pricing on one aisle",
		DecisionHiring:          "Pilot a part-time floater role",
		DecisionInventory:       "Stock a small batch of a new product line",
		DecisionExpansion:       "Test a pop-up stall before committing",
		DecisionCustomerService: "Try a self-checkout lane",
	}
	return Recommendation{
		Action:          actions[t],
		Reasoning:       "Recent outcomes suggest the usual playbook is not enough.",
		Confidence:      clampUnit(0.2 + 0.2*creativity),
		ExpectedOutcome: "Uncertain; worth a small experiment",
	}
}

func manualReview(t DecisionType) Recommendation {
	return Recommendation{
		Action:          "Refer to manual review",
		Reasoning:       fmt.Sprintf("No rules exist for decision type %q.", t),
		Confidence:      manualReviewConf,
		ExpectedOutcome: "A person decides",
	}
}

// overallConfidence is the mean of the recommendation confidences, 0 for none.
func overallConfidence(recs []Recommendation) float64 {
	if len(recs) == 0 {
		return 0
	}
	var sum float64
	for _, r := range recs {
		sum += r.Confidence
	}
	return clampUnit(sum / float64(len(recs)))
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
