package advisor

import (
	"errors"
	"time"
)

var (
	// ErrUnrecognizedDecisionType is recovered by a manual-review recommendation.
	ErrUnrecognizedDecisionType = errors.New("unrecognized decision type")
	// ErrDecisionNotFound is returned when an outcome names an unknown decision.
	ErrDecisionNotFound = errors.New("decision not found")
)

// DecisionType selects the rule evaluator for a decision.
type DecisionType string

const (
	DecisionPricing         DecisionType = "pricing"
	DecisionHiring          DecisionType = "hiring"
	DecisionInventory       DecisionType = "inventory"
	DecisionExpansion       DecisionType = "expansion"
	DecisionCustomerService DecisionType = "customerService"
)

// Decision is the payload of decision:required.
type Decision struct {
	ID          string         `json:"id"`
	Type        DecisionType   `json:"type"`
	Description string         `json:"description,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// Recommendation is one suggested action.
type Recommendation struct {
	Action          string  `json:"action"`
	Reasoning       string  `json:"reasoning"`
	Confidence      float64 `json:"confidence"`
	ExpectedOutcome string  `json:"expected_outcome"`
}

// Outcome is what actually happened after a decision was taken.
type Outcome struct {
	Success    bool      `json:"success"`
	Notes      string    `json:"notes,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecommendationSet is the advisor's answer to a decision.
type RecommendationSet struct {
	DecisionID        string           `json:"decision_id"`
	Type              DecisionType     `json:"type"`
	Recommendations   []Recommendation `json:"recommendations"`
	OverallConfidence float64          `json:"overall_confidence"`
	CreatedAt         time.Time        `json:"created_at"`
	Outcome           *Outcome         `json:"outcome,omitempty"`
}

func (s *RecommendationSet) clone() RecommendationSet {
	cp := *s
	cp.Recommendations = append([]Recommendation(nil), s.Recommendations...)
	if s.Outcome != nil {
		o := *s.Outcome
		cp.Outcome = &o
	}
	return cp
}

// InsightKind tags an informational finding.
type InsightKind string

const (
	InsightPositive   InsightKind = "positive"
	InsightSuggestion InsightKind = "suggestion"
	InsightWarning    InsightKind = "warning"
)

// AlertLevel tags an actionable finding.
type AlertLevel string

const (
	AlertUrgent   AlertLevel = "urgent"
	AlertCritical AlertLevel = "critical"
)

// Insight is an informational finding from periodic analysis.
type Insight struct {
	Kind    InsightKind `json:"kind"`
	Message string      `json:"message"`
}

// Alert is an actionable finding from periodic analysis.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Message string     `json:"message"`
}

// Analysis is the payload of aiAssistant:periodicAnalysis.
type Analysis struct {
	At       time.Time `json:"at"`
	Insights []Insight `json:"insights"`
	Alerts   []Alert   `json:"alerts"`
}

// Parameters are the advisor's learned state.
type Parameters struct {
	Confidence   float64 `json:"confidence"`
	Creativity   float64 `json:"creativity"`
	SuccessRatio float64 `json:"success_ratio"`
	Outcomes     int     `json:"outcomes"`
}
