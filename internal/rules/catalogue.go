package rules

import (
	"github.com/lakay-finance/kestrel/internal/domain"
)

// Catalogue builds the fixed rule set from a configuration snapshot.
// Rules carry their thresholds as fields; a config change rebuilds the
// catalogue rather than mutating live rules.
func Catalogue(store domain.EventStore, cfg domain.FraudConfig) []domain.Rule {
	return []domain.Rule{
		// Velocity
		newTxnFrequencyRule("velocity_txn_count_1h", cfg.Velocity.TxnCount1hMax, false),
		newTxnFrequencyRule("velocity_txn_count_24h", cfg.Velocity.TxnCount24hMax, true),
		newVelocityAmountRule(cfg.Velocity),
		newLoginVelocityRule(store, cfg.Velocity),
		newCircleJoinVelocityRule(store, cfg.Velocity),
		newUnusualHourRule(),

		// Amount
		newLargeTransactionRule(cfg.Amount),
		newCumulativeAmountRule(store, cfg.Amount),
		newBaselineDeviationRule(cfg.Amount),
		newCTRProximityRule(cfg.Amount),

		// Geo
		newImpossibleTravelRule(cfg.Geo),
		newNewGeographyRule(),
		newNewDeviceRule(),
		newThirdCountryRule(store, cfg.Geo),

		// Patterns
		newDuplicateTransactionRule(store, cfg.Patterns),
		newStructuringRule(store, cfg.Patterns),
		newRoundAmountRule(store, cfg.Patterns),
		newTemporalStructuringRule(store, cfg.Patterns),
	}
}

// baseRule carries the identity shared by every rule implementation.
type baseRule struct {
	id       string
	category domain.RuleCategory
	weight   float64
}

func (b baseRule) ID() string                    { return b.id }
func (b baseRule) Category() domain.RuleCategory { return b.category }
func (b baseRule) Weight() float64               { return b.weight }

// pass is the not-triggered result for a rule.
func (b baseRule) pass() domain.RuleResult {
	return domain.RuleResult{RuleID: b.id, Category: b.category}
}

func (b baseRule) hit(score float64, severity domain.Severity, confidence float64, evidence map[string]any, details string) domain.RuleResult {
	return domain.RuleResult{
		RuleID:     b.id,
		Category:   b.category,
		Triggered:  true,
		Score:      clamp01(score),
		Severity:   severity,
		Confidence: confidence,
		Evidence:   evidence,
		Details:    details,
	}
}
