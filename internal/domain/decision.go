package domain

import "time"

// DecisionEvent is the payload published on TopicFraudDecision after
// every scoring call. Observers use it to feed drift detection and
// model health monitoring off the request path.
type DecisionEvent struct {
	TransactionID  string             `json:"transactionId"`
	UserID         string             `json:"userId"`
	FinalScore     float64            `json:"finalScore"`
	RuleScore      float64            `json:"ruleScore"`
	RiskTier       RiskTier           `json:"riskTier"`
	Version        string             `json:"version"`
	Variant        RoutingVariant     `json:"variant"`
	ModelLatencyMs float64            `json:"modelLatencyMs"`
	Features       map[string]float64 `json:"features"`
	ScoredAt       time.Time          `json:"scoredAt"`
}
