// Package advisor implements the decision advisor: typed rule evaluators over store
// analytics, a store-wide periodic analysis, and a small feedback loop that nudges the
// advisor's confidence and creativity from recorded outcomes.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shopkeep/api/schemas"
	"github.com/xkilldash9x/shopkeep/internal/bus"
	"github.com/xkilldash9x/shopkeep/internal/config"
	"github.com/xkilldash9x/shopkeep/internal/inventory"
	"github.com/xkilldash9x/shopkeep/internal/scheduler"
)

const (
	minParam = 0.1
	maxParam = 1.0
)

// Advisor is the aiAssistant module.
type Advisor struct {
	sched     *scheduler.Scheduler
	publisher bus.Publisher
	analytics AnalyticsSource
	logger    *zap.Logger

	mu             sync.Mutex
	cfg            config.AdvisorConfig
	ctx            context.Context
	enabled        bool
	enabledAt      time.Time
	enabledFor     time.Duration
	analysisHandle scheduler.Handle

	confidence float64
	creativity float64
	successes  int
	outcomes   int
	analyzed   int
	history    []*RecommendationSet
}

var _ schemas.Module = (*Advisor)(nil)

// New creates the advisor.
func New(cfg config.AdvisorConfig, sched *scheduler.Scheduler, publisher bus.Publisher, analytics AnalyticsSource, logger *zap.Logger) (*Advisor, error) {
	if sched == nil {
		return nil, errors.New("scheduler cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if analytics == nil {
		return nil, errors.New("analytics source cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid advisor configuration: %w", err)
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	return &Advisor{
		sched:      sched,
		publisher:  publisher,
		analytics:  analytics,
		logger:     logger.Named("advisor"),
		cfg:        cfg,
		ctx:        context.Background(),
		confidence: cfg.InitialConfidence,
		creativity: cfg.InitialCreativity,
	}, nil
}

// Name implements schemas.Module.
func (a *Advisor) Name() schemas.ModuleName { return schemas.ModuleAIAssistant }

// SetEnabled starts or stops periodic analysis.
func (a *Advisor) SetEnabled(ctx context.Context, enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ctx != nil {
		a.ctx = ctx
	}
	if enabled == a.enabled {
		return
	}
	now := a.sched.Now()
	if enabled {
		a.enabledAt = now
		a.analysisHandle = a.sched.Every("advisor.analysis", a.cfg.AnalysisInterval, func(time.Time) {
			a.PeriodicAnalysis(a.context())
		})
		a.logger.Info("Decision advisor started", zap.Duration("analysis_interval", a.cfg.AnalysisInterval))
	} else {
		a.sched.Cancel(a.analysisHandle)
		a.enabledFor += now.Sub(a.enabledAt)
		a.logger.Info("Decision advisor stopped")
	}
	a.enabled = enabled
}

func (a *Advisor) context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

// Configure accepts creativity overrides in [0.1, 1]. Other keys are ignored.
func (a *Advisor) Configure(settings map[string]any) error {
	v, ok := settings["creativity"]
	if !ok {
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return fmt.Errorf("creativity: %w", err)
	}
	if f < minParam || f > maxParam {
		return fmt.Errorf("creativity must be within [%.1f, %.1f], got %v", minParam, maxParam, f)
	}
	a.mu.Lock()
	a.creativity = f
	a.mu.Unlock()
	return nil
}

// Reset returns creativity to its initial value. Learned confidence is kept.
func (a *Advisor) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creativity = a.cfg.InitialCreativity
}

// Economics values each analyzed decision at DecisionValue weighted by the observed
// success ratio.
func (a *Advisor) Economics() schemas.Economics {
	a.mu.Lock()
	defer a.mu.Unlock()
	running := a.enabledFor
	if a.enabled {
		running += a.sched.Now().Sub(a.enabledAt)
	}
	return schemas.Economics{
		Savings: float64(a.analyzed) * a.cfg.DecisionValue * a.successRatioLocked(),
		Cost:    running.Hours() * a.cfg.HourlyCost,
	}
}

// HandleEvent answers decision:required and runs an analysis on store:opened.
func (a *Advisor) HandleEvent(ctx context.Context, msg bus.Message) error {
	switch msg.Topic {
	case bus.DecisionRequired:
		var d Decision
		switch v := msg.Payload.(type) {
		case Decision:
			d = v
		case *Decision:
			if v == nil {
				return fmt.Errorf("nil decision in %s", msg.Topic)
			}
			d = *v
		default:
			return fmt.Errorf("unexpected payload %T for topic %s", msg.Payload, msg.Topic)
		}
		a.Analyze(ctx, d)
	case bus.StoreOpened:
		a.PeriodicAnalysis(ctx)
	}
	return nil
}

// Analyze scores recommendations for d. Unknown types never fail: they get a single
// manual-review recommendation.
func (a *Advisor) Analyze(ctx context.Context, d Decision) RecommendationSet {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	var recs []Recommendation
	eval, known := evaluators[d.Type]
	if known {
		recs = eval(a.analytics)
	}

	a.mu.Lock()
	scale := 0.5 + 0.5*a.confidence
	creativity := a.creativity
	if known {
		for i := range recs {
			recs[i].Confidence = clampUnit(recs[i].Confidence * scale)
		}
		if creativity >= exploratoryCreativity {
			recs = append(recs, exploratory(d.Type, creativity))
		}
	} else {
		recs = []Recommendation{manualReview(d.Type)}
	}

	set := &RecommendationSet{
		DecisionID:        d.ID,
		Type:              d.Type,
		Recommendations:   recs,
		OverallConfidence: overallConfidence(recs),
		CreatedAt:         a.sched.Now(),
	}
	a.history = append(a.history, set)
	if over := len(a.history) - a.cfg.HistorySize; over > 0 {
		a.history = append([]*RecommendationSet(nil), a.history[over:]...)
	}
	a.analyzed++
	out := set.clone()
	a.mu.Unlock()

	if !known {
		a.logger.Warn("Falling back to manual review",
			zap.String("decision_id", d.ID),
			zap.Error(fmt.Errorf("%w: %q", ErrUnrecognizedDecisionType, d.Type)),
		)
	} else {
		a.logger.Info("Decision analyzed",
			zap.String("decision_id", d.ID),
			zap.String("type", string(d.Type)),
			zap.Int("recommendations", len(out.Recommendations)),
			zap.Float64("overall_confidence", out.OverallConfidence),
		)
	}
	if err := a.publisher.Publish(ctx, bus.AdvisorRecommendation, out); err != nil {
		a.logger.Debug("Failed to publish recommendation", zap.Error(err))
	}
	return out
}

// RecordOutcome attaches an outcome to a past decision and adjusts the advisor's
// parameters: success raises confidence, failure lowers it and raises creativity.
// Both stay within [0.1, 1].
func (a *Advisor) RecordOutcome(decisionID string, outcome Outcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var set *RecommendationSet
	for _, s := range a.history {
		if s.DecisionID == decisionID {
			set = s
			break
		}
	}
	if set == nil {
		return fmt.Errorf("%w: %s", ErrDecisionNotFound, decisionID)
	}
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = a.sched.Now()
	}
	set.Outcome = &outcome

	a.outcomes++
	step := a.cfg.LearningRate
	if outcome.Success {
		a.successes++
		a.confidence = clampParam(a.confidence + step)
	} else {
		a.confidence = clampParam(a.confidence - step)
		a.creativity = clampParam(a.creativity + step)
	}
	a.logger.Debug("Outcome recorded",
		zap.String("decision_id", decisionID),
		zap.Bool("success", outcome.Success),
		zap.Float64("confidence", a.confidence),
		zap.Float64("creativity", a.creativity),
	)
	return nil
}

// Parameters returns the learned state.
func (a *Advisor) Parameters() Parameters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Parameters{
		Confidence:   a.confidence,
		Creativity:   a.creativity,
		SuccessRatio: a.successRatioLocked(),
		Outcomes:     a.outcomes,
	}
}

// successRatioLocked is 0.5 until the first outcome is known.
func (a *Advisor) successRatioLocked() float64 {
	if a.outcomes == 0 {
		return 0.5
	}
	return float64(a.successes) / float64(a.outcomes)
}

// History returns the retained recommendation sets, oldest first.
func (a *Advisor) History() []RecommendationSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]RecommendationSet, len(a.history))
	for i, s := range a.history {
		out[i] = s.clone()
	}
	return out
}

// PeriodicAnalysis classifies store-wide snapshots into insights and alerts and
// publishes them.
func (a *Advisor) PeriodicAnalysis(ctx context.Context) Analysis {
	analysis := Analysis{At: a.sched.Now()}

	cash := a.analytics.CashFlow()
	if cash.NetDaily < 0 {
		analysis.Alerts = append(analysis.Alerts, Alert{
			Level:   AlertCritical,
			Message: fmt.Sprintf("Negative cash flow: %.2f over the last day", cash.NetDaily),
		})
	}
	if load := a.analytics.StaffingLoad(); load.BurnoutRisk > burnoutThreshold {
		analysis.Alerts = append(analysis.Alerts, Alert{
			Level:   AlertUrgent,
			Message: fmt.Sprintf("Staff burnout risk at %.2f", load.BurnoutRisk),
		})
	}
	switch s := a.analytics.Satisfaction(); {
	case s < lowSatisfaction:
		analysis.Insights = append(analysis.Insights, Insight{Kind: InsightWarning, Message: fmt.Sprintf("Customer satisfaction is low at %.2f", s)})
	case s > highSatisfaction:
		analysis.Insights = append(analysis.Insights, Insight{Kind: InsightPositive, Message: fmt.Sprintf("Customer satisfaction is high at %.2f", s)})
	}
	if trend := a.analytics.MarketTrend(); trend > trendThreshold {
		analysis.Insights = append(analysis.Insights, Insight{
			Kind:    InsightSuggestion,
			Message: fmt.Sprintf("Revenue up %.0f%% week over week; consider a price increase", trend*100),
		})
	}
	for _, d := range a.analytics.Demand() {
		if d.Trend == inventory.TrendIncreasing {
			analysis.Insights = append(analysis.Insights, Insight{
				Kind:    InsightSuggestion,
				Message: fmt.Sprintf("Demand for %s is rising; stock up", d.ProductID),
			})
		}
	}

	a.logger.Info("Periodic analysis complete", zap.Int("insights", len(analysis.Insights)), zap.Int("alerts", len(analysis.Alerts)))
	if err := a.publisher.Publish(ctx, bus.AdvisorPeriodicAnalysis, analysis); err != nil {
		a.logger.Debug("Failed to publish periodic analysis", zap.Error(err))
	}
	return analysis
}

func clampParam(v float64) float64 {
	if v < minParam {
		return minParam
	}
	if v > maxParam {
		return maxParam
	}
	return v
}
