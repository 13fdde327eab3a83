package advisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/shopkeep/internal/bus"
	"github.com/xkilldash9x/shopkeep/internal/clock"
	"github.com/xkilldash9x/shopkeep/internal/config"
	"github.com/xkilldash9x/shopkeep/internal/inventory"
	"github.com/xkilldash9x/shopkeep/internal/scheduler"
)

var epoch = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

// fakeAnalytics returns whatever snapshots the test sets.
type fakeAnalytics struct {
	trend        float64
	staffing     StaffingSnapshot
	cash         CashFlowSnapshot
	demand       []DemandSnapshot
	satisfaction float64
}

func (f *fakeAnalytics) MarketTrend() float64           { return f.trend }
func (f *fakeAnalytics) StaffingLoad() StaffingSnapshot { return f.staffing }
func (f *fakeAnalytics) CashFlow() CashFlowSnapshot     { return f.cash }
func (f *fakeAnalytics) Demand() []DemandSnapshot       { return f.demand }
func (f *fakeAnalytics) Satisfaction() float64          { return f.satisfaction }

// neutral is a store where nothing crosses a threshold.
func neutral() *fakeAnalytics {
	return &fakeAnalytics{
		staffing:     StaffingSnapshot{Headcount: 3, AverageWorkload: 0.6, BurnoutRisk: 0.7},
		cash:         CashFlowSnapshot{Cash: 5000, NetDaily: 50, Projection: 6500},
		satisfaction: 0.75,
	}
}

type recorder struct {
	mu     sync.Mutex
	events []bus.Message
}

func (r *recorder) handle(_ context.Context, msg bus.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, msg)
	return nil
}

func (r *recorder) count(topic bus.Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.events {
		if m.Topic == topic {
			n++
		}
	}
	return n
}

type harness struct {
	sched     *scheduler.Scheduler
	analytics *fakeAnalytics
	recorder  *recorder
	advisor   *Advisor
}

func newHarness(t *testing.T, mutate func(*config.AdvisorConfig)) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clk := clock.NewFake(epoch)
	sched, err := scheduler.New(clk, logger)
	require.NoError(t, err)

	eventBus := bus.New(logger, clk)
	rec := &recorder{}
	eventBus.Subscribe("recorder", rec.handle, bus.AdvisorRecommendation, bus.AdvisorPeriodicAnalysis)

	cfg := config.NewDefaultConfig().Advisor
	if mutate != nil {
		mutate(&cfg)
	}
	analytics := neutral()
	a, err := New(cfg, sched, eventBus, analytics, logger)
	require.NoError(t, err)
	return &harness{sched: sched, analytics: analytics, recorder: rec, advisor: a}
}

func TestNew_RejectsNilDependencies(t *testing.T) {
	logger := zaptest.NewLogger(t)
	clk := clock.NewFake(epoch)
	sched, err := scheduler.New(clk, logger)
	require.NoError(t, err)
	cfg := config.NewDefaultConfig().Advisor

	_, err = New(cfg, nil, bus.New(logger, clk), neutral(), logger)
	assert.Error(t, err)
	_, err = New(cfg, sched, nil, neutral(), logger)
	assert.Error(t, err)
	_, err = New(cfg, sched, bus.New(logger, clk), nil, logger)
	assert.Error(t, err)

	cfg.LearningRate = 0
	_, err = New(cfg, sched, bus.New(logger, clk), neutral(), logger)
	assert.ErrorContains(t, err, "learning_rate")
}

func TestAnalyze_Pricing(t *testing.T) {
	h := newHarness(t, nil)
	h.analytics.trend = 0.12

	set := h.advisor.Analyze(context.Background(), Decision{Type: DecisionPricing})

	require.Len(t, set.Recommendations, 1)
	assert.Contains(t, set.Recommendations[0].Action, "Raise prices")
	// Base 0.75 scaled by 0.5 + 0.5*0.7.
	assert.InDelta(t, 0.6375, set.Recommendations[0].Confidence, 1e-9)
	assert.InDelta(t, 0.6375, set.OverallConfidence, 1e-9)
	assert.NotEmpty(t, set.DecisionID, "an ID is assigned when missing")
	assert.Equal(t, epoch, set.CreatedAt)
	assert.Equal(t, 1, h.recorder.count(bus.AdvisorRecommendation))
}

func TestAnalyze_PricingLowSatisfactionAddsCaution(t *testing.T) {
	h := newHarness(t, nil)
	h.analytics.trend = 0.12
	h.analytics.satisfaction = 0.4

	set := h.advisor.Analyze(context.Background(), Decision{ID: "d1", Type: DecisionPricing})

	require.Len(t, set.Recommendations, 2)
	assert.Equal(t, "Hold current prices", set.Recommendations[0].Action)
	assert.Contains(t, set.Recommendations[1].Action, "Avoid price increases")
	assert.Equal(t, "d1", set.DecisionID)
}

func TestAnalyze_Hiring(t *testing.T) {
	tests := []struct {
		name     string
		staffing StaffingSnapshot
		cash     CashFlowSnapshot
		want     string
	}{
		{"overloaded and solvent", StaffingSnapshot{Headcount: 2, AverageWorkload: 0.85, BurnoutRisk: 0.95}, CashFlowSnapshot{Projection: 1000}, "Hire an additional staff member"},
		{"overloaded and broke", StaffingSnapshot{Headcount: 2, AverageWorkload: 0.85, BurnoutRisk: 0.95}, CashFlowSnapshot{Projection: -10}, "Rebalance shifts before hiring"},
		{"underused", StaffingSnapshot{Headcount: 4, AverageWorkload: 0.2, BurnoutRisk: 0.3}, CashFlowSnapshot{Projection: 1000}, "Reduce scheduled hours"},
		{"healthy", StaffingSnapshot{Headcount: 4, AverageWorkload: 0.6, BurnoutRisk: 0.7}, CashFlowSnapshot{Projection: 1000}, "Keep current staffing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.analytics.staffing = tt.staffing
			h.analytics.cash = tt.cash
			set := h.advisor.Analyze(context.Background(), Decision{Type: DecisionHiring})
			require.Len(t, set.Recommendations, 1)
			assert.Equal(t, tt.want, set.Recommendations[0].Action)
		})
	}
}

func TestAnalyze_InventoryFollowsDemandTrends(t *testing.T) {
	h := newHarness(t, nil)
	h.analytics.demand = []DemandSnapshot{
		{ProductID: "milk", DailyDemand: 8, Trend: inventory.TrendIncreasing},
		{ProductID: "bread", DailyDemand: 3, Trend: inventory.TrendStable},
		{ProductID: "candles", DailyDemand: 0.5, Trend: inventory.TrendDecreasing},
	}

	set := h.advisor.Analyze(context.Background(), Decision{Type: DecisionInventory})

	require.Len(t, set.Recommendations, 2)
	assert.Equal(t, "Increase stock of milk", set.Recommendations[0].Action)
	assert.Equal(t, "Reduce orders of candles", set.Recommendations[1].Action)

	h.analytics.demand = nil
	set = h.advisor.Analyze(context.Background(), Decision{Type: DecisionInventory})
	require.Len(t, set.Recommendations, 1)
	assert.Equal(t, "Maintain current stock levels", set.Recommendations[0].Action)
}

func TestAnalyze_Expansion(t *testing.T) {
	h := newHarness(t, nil)
	h.analytics.cash = CashFlowSnapshot{Cash: 100, NetDaily: -20, Projection: -500}
	set := h.advisor.Analyze(context.Background(), Decision{Type: DecisionExpansion})
	assert.Equal(t, "Postpone expansion", set.Recommendations[0].Action)

	h.analytics.cash = CashFlowSnapshot{Cash: 20000, NetDaily: 300, Projection: 29000}
	h.analytics.trend = 0.02
	set = h.advisor.Analyze(context.Background(), Decision{Type: DecisionExpansion})
	assert.Equal(t, "Expand floor space", set.Recommendations[0].Action)

	h.analytics.trend = -0.02
	set = h.advisor.Analyze(context.Background(), Decision{Type: DecisionExpansion})
	assert.Equal(t, "Reassess expansion next quarter", set.Recommendations[0].Action)
}

func TestAnalyze_CustomerService(t *testing.T) {
	tests := map[float64]string{
		0.5:  "Add checkout capacity and enable service automation",
		0.75: "Keep monitoring satisfaction",
		0.9:  "Launch a loyalty program",
	}
	for satisfaction, want := range tests {
		h := newHarness(t, nil)
		h.analytics.satisfaction = satisfaction
		set := h.advisor.Analyze(context.Background(), Decision{Type: DecisionCustomerService})
		require.Len(t, set.Recommendations, 1)
		assert.Equal(t, want, set.Recommendations[0].Action, "satisfaction %v", satisfaction)
	}
}

func TestAnalyze_UnknownTypeFallsBackToManualReview(t *testing.T) {
	h := newHarness(t, nil)

	set := h.advisor.Analyze(context.Background(), Decision{ID: "x", Type: "marketing"})

	require.Len(t, set.Recommendations, 1)
	assert.Equal(t, "Refer to manual review", set.Recommendations[0].Action)
	assert.Equal(t, 0.3, set.Recommendations[0].Confidence)
	assert.Equal(t, 0.3, set.OverallConfidence)
	assert.Equal(t, 1, h.recorder.count(bus.AdvisorRecommendation))
}

func TestAnalyze_HighCreativityAddsExploratoryIdea(t *testing.T) {
	h := newHarness(t, func(c *config.AdvisorConfig) { c.InitialCreativity = 0.8 })

	set := h.advisor.Analyze(context.Background(), Decision{Type: DecisionPricing})

	require.Len(t, set.Recommendations, 2)
	assert.Equal(t, "Trial dynamic pricing on one aisle", set.Recommendations[1].Action)
	assert.InDelta(t, 0.36, set.Recommendations[1].Confidence, 1e-9)
}

func TestAnalyze_HistoryIsBounded(t *testing.T) {
	h := newHarness(t, func(c *config.AdvisorConfig) { c.HistorySize = 3 })
	for i := 0; i < 5; i++ {
		h.advisor.Analyze(context.Background(), Decision{Type: DecisionHiring})
	}
	assert.Len(t, h.advisor.History(), 3)
}

func TestHistory_ReturnsSnapshots(t *testing.T) {
	h := newHarness(t, nil)
	set := h.advisor.Analyze(context.Background(), Decision{ID: "d1", Type: DecisionInventory})

	hist := h.advisor.History()
	require.Len(t, hist, 1)
	if diff := cmp.Diff(set, hist[0], cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("history entry mismatch (-analyzed +history):\n%s", diff)
	}

	hist[0].Recommendations[0].Action = "tampered"
	again := h.advisor.History()
	if diff := cmp.Diff(set.Recommendations, again[0].Recommendations); diff != "" {
		t.Errorf("history was mutated through a snapshot (-want +got):\n%s", diff)
	}
}

func TestRecordOutcome_Learning(t *testing.T) {
	h := newHarness(t, nil)
	set := h.advisor.Analyze(context.Background(), Decision{ID: "d1", Type: DecisionPricing})

	require.NoError(t, h.advisor.RecordOutcome(set.DecisionID, Outcome{Success: true}))
	p := h.advisor.Parameters()
	assert.InDelta(t, 0.75, p.Confidence, 1e-9)
	assert.InDelta(t, 0.5, p.Creativity, 1e-9)
	assert.Equal(t, 1.0, p.SuccessRatio)

	require.NoError(t, h.advisor.RecordOutcome(set.DecisionID, Outcome{Success: false, Notes: "customers left"}))
	p = h.advisor.Parameters()
	assert.InDelta(t, 0.7, p.Confidence, 1e-9)
	assert.InDelta(t, 0.55, p.Creativity, 1e-9)
	assert.Equal(t, 0.5, p.SuccessRatio)
	assert.Equal(t, 2, p.Outcomes)

	hist := h.advisor.History()
	require.Len(t, hist, 1)
	require.NotNil(t, hist[0].Outcome)
	assert.False(t, hist[0].Outcome.Success)
	assert.Equal(t, epoch, hist[0].Outcome.RecordedAt)
}

func TestRecordOutcome_ParametersStayBounded(t *testing.T) {
	h := newHarness(t, nil)
	set := h.advisor.Analyze(context.Background(), Decision{Type: DecisionHiring})

	prev := h.advisor.Parameters()
	for i := 0; i < 40; i++ {
		require.NoError(t, h.advisor.RecordOutcome(set.DecisionID, Outcome{Success: false}))
		p := h.advisor.Parameters()
		assert.LessOrEqual(t, p.Confidence, prev.Confidence, "failure %d raised confidence", i)
		assert.GreaterOrEqual(t, p.Creativity, prev.Creativity, "failure %d lowered creativity", i)
		prev = p
	}
	assert.Equal(t, 0.1, prev.Confidence)
	assert.Equal(t, 1.0, prev.Creativity)

	for i := 0; i < 40; i++ {
		require.NoError(t, h.advisor.RecordOutcome(set.DecisionID, Outcome{Success: true}))
		p := h.advisor.Parameters()
		assert.GreaterOrEqual(t, p.Confidence, prev.Confidence, "success %d lowered confidence", i)
		assert.Equal(t, prev.Creativity, p.Creativity, "success %d changed creativity", i)
		prev = p
	}
	assert.Equal(t, 1.0, prev.Confidence)
}

func TestRecordOutcome_UnknownDecision(t *testing.T) {
	h := newHarness(t, nil)
	err := h.advisor.RecordOutcome("nope", Outcome{Success: true})
	assert.True(t, errors.Is(err, ErrDecisionNotFound))
	assert.Equal(t, 0, h.advisor.Parameters().Outcomes)
}

func TestPeriodicAnalysis_Thresholds(t *testing.T) {
	h := newHarness(t, nil)
	h.analytics.cash = CashFlowSnapshot{Cash: 100, NetDaily: -5}
	h.analytics.staffing = StaffingSnapshot{Headcount: 2, BurnoutRisk: 0.9}
	h.analytics.satisfaction = 0.5
	h.analytics.trend = 0.1
	h.analytics.demand = []DemandSnapshot{{ProductID: "milk", Trend: inventory.TrendIncreasing}}

	a := h.advisor.PeriodicAnalysis(context.Background())

	require.Len(t, a.Alerts, 2)
	assert.Equal(t, AlertCritical, a.Alerts[0].Level)
	assert.Equal(t, AlertUrgent, a.Alerts[1].Level)
	require.Len(t, a.Insights, 3)
	assert.Equal(t, InsightWarning, a.Insights[0].Kind)
	assert.Equal(t, InsightSuggestion, a.Insights[1].Kind)
	assert.Equal(t, InsightSuggestion, a.Insights[2].Kind)
	assert.Contains(t, a.Insights[2].Message, "milk")
	assert.Equal(t, 1, h.recorder.count(bus.AdvisorPeriodicAnalysis))
}

func TestPeriodicAnalysis_QuietStore(t *testing.T) {
	h := newHarness(t, nil)
	a := h.advisor.PeriodicAnalysis(context.Background())
	assert.Empty(t, a.Alerts)
	assert.Empty(t, a.Insights)

	h.analytics.satisfaction = 0.9
	a = h.advisor.PeriodicAnalysis(context.Background())
	require.Len(t, a.Insights, 1)
	assert.Equal(t, InsightPositive, a.Insights[0].Kind)
}

func TestSetEnabled_RunsPeriodicAnalysis(t *testing.T) {
	h := newHarness(t, nil)
	h.advisor.SetEnabled(context.Background(), true)
	h.advisor.SetEnabled(context.Background(), true)

	_, err := h.sched.Advance(45 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, h.recorder.count(bus.AdvisorPeriodicAnalysis))

	h.advisor.SetEnabled(context.Background(), false)
	_, err = h.sched.Advance(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, h.recorder.count(bus.AdvisorPeriodicAnalysis))
}

func TestHandleEvent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.advisor.HandleEvent(ctx, bus.Message{Topic: bus.DecisionRequired, Payload: Decision{ID: "a", Type: DecisionHiring}}))
	require.NoError(t, h.advisor.HandleEvent(ctx, bus.Message{Topic: bus.DecisionRequired, Payload: &Decision{ID: "b", Type: DecisionPricing}}))
	assert.Error(t, h.advisor.HandleEvent(ctx, bus.Message{Topic: bus.DecisionRequired, Payload: "pricing"}))
	require.NoError(t, h.advisor.HandleEvent(ctx, bus.Message{Topic: bus.StoreOpened}))

	assert.Equal(t, 2, h.recorder.count(bus.AdvisorRecommendation))
	assert.Equal(t, 1, h.recorder.count(bus.AdvisorPeriodicAnalysis))
}

func TestConfigure(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.advisor.Configure(map[string]any{"creativity": "0.9", "quality": 0.8}))
	assert.Equal(t, 0.9, h.advisor.Parameters().Creativity)

	assert.Error(t, h.advisor.Configure(map[string]any{"creativity": 3}))
	assert.Error(t, h.advisor.Configure(map[string]any{"creativity": "lots"}))
	assert.Equal(t, 0.9, h.advisor.Parameters().Creativity)

	h.advisor.Reset()
	assert.Equal(t, h.advisor.cfg.InitialCreativity, h.advisor.Parameters().Creativity)
}

func TestEconomics(t *testing.T) {
	h := newHarness(t, nil)
	h.advisor.SetEnabled(context.Background(), true)
	set := h.advisor.Analyze(context.Background(), Decision{Type: DecisionHiring})
	h.advisor.Analyze(context.Background(), Decision{Type: DecisionPricing})

	econ := h.advisor.Economics()
	assert.InDelta(t, 2*25*0.5, econ.Savings, 1e-9)
	assert.Zero(t, econ.Cost)

	require.NoError(t, h.advisor.RecordOutcome(set.DecisionID, Outcome{Success: true}))
	_, err := h.sched.Advance(2 * time.Hour)
	require.NoError(t, err)

	econ = h.advisor.Economics()
	assert.InDelta(t, 2*25*1.0, econ.Savings, 1e-9)
	assert.InDelta(t, 3.0, econ.Cost, 1e-9)
}

func TestOverallConfidence_Empty(t *testing.T) {
	assert.Zero(t, overallConfidence(nil))
}
