package domain

import "context"

// RuleCategory groups detection rules for score capping.
type RuleCategory string

const (
	CategoryVelocity RuleCategory = "velocity"
	CategoryAmount   RuleCategory = "amount"
	CategoryGeo      RuleCategory = "geo"
	CategoryPatterns RuleCategory = "patterns"
)

// Severity of a triggered rule or alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RuleResult is the outcome of evaluating one rule against one request.
// Score is 0 when the rule did not trigger.
type RuleResult struct {
	RuleID     string         `json:"ruleId"`
	Category   RuleCategory   `json:"category"`
	Triggered  bool           `json:"triggered"`
	Score      float64        `json:"score"`
	Severity   Severity       `json:"severity,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Evidence   map[string]any `json:"evidence,omitempty"`
	Details    string         `json:"details,omitempty"`
}

// Rule is one detection heuristic. Implementations are pure with
// respect to their inputs and never mutate shared state; pattern and
// geo rules may issue their own read-only store queries.
type Rule interface {
	ID() string
	Category() RuleCategory
	Weight() float64
	Evaluate(ctx context.Context, req *ScoreRequest, features *FeatureVector) (RuleResult, error)
}

// RuleInfo describes a registered rule for the config surface.
type RuleInfo struct {
	ID       string       `json:"id"`
	Category RuleCategory `json:"category"`
	Weight   float64      `json:"weight"`
}
