package domain

import "time"

// RiskTier buckets a composite score.
type RiskTier string

const (
	TierLow      RiskTier = "low"
	TierMedium   RiskTier = "medium"
	TierHigh     RiskTier = "high"
	TierCritical RiskTier = "critical"
)

// Recommendation is the suggested action for a risk tier.
type Recommendation string

const (
	RecommendAllow   Recommendation = "allow"
	RecommendMonitor Recommendation = "monitor"
	RecommendHold    Recommendation = "hold"
	RecommendBlock   Recommendation = "block"
)

// ScoringContext is the result of one scoring call.
// TriggeredRules preserves evaluation output order; Metadata carries
// per-category scores, the triggered count, the scorer version and
// engine confidence.
type ScoringContext struct {
	TransactionID  string         `json:"transactionId"`
	UserID         string         `json:"userId"`
	CompositeScore float64        `json:"compositeScore"`
	RiskTier       RiskTier       `json:"riskTier"`
	Recommendation Recommendation `json:"recommendation"`
	TriggeredRules []RuleResult   `json:"triggeredRules"`
	Metadata       map[string]any `json:"metadata"`
	ScoredAt       time.Time      `json:"scoredAt"`
}

// RoutingVariant identifies which model served a prediction.
type RoutingVariant string

const (
	VariantChampion   RoutingVariant = "champion"
	VariantChallenger RoutingVariant = "challenger"
	VariantNone       RoutingVariant = "none"
)

// RoutingDecision records the variant assignment and prediction for
// one scoring call. Ephemeral; retained only in the router's bounded
// metrics buffer.
type RoutingDecision struct {
	UserID       string         `json:"userId"`
	Variant      RoutingVariant `json:"variant"`
	ModelName    string         `json:"modelName,omitempty"`
	ModelVersion string         `json:"modelVersion,omitempty"`
	Prediction   *float64       `json:"prediction,omitempty"`
	LatencyMs    float64        `json:"latencyMs,omitempty"`
	Fallback     bool           `json:"fallback,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
