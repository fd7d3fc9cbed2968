package scoring

import (
	"sync"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// Version tags attached to scoring results so downstream consumers
// can tell which path produced a score.
const (
	VersionRulesOnly = "rules-v2"
	VersionHybrid    = "hybrid-v1"
)

// Hybrid blends a rule-engine score with an optional model prediction.
// When no prediction is available the rule score passes through
// unchanged, so a dead model plane never blocks scoring.
type Hybrid struct {
	mu  sync.RWMutex
	cfg domain.HybridConfig
}

// NewHybrid creates a combiner with the given strategy settings.
func NewHybrid(cfg domain.HybridConfig) *Hybrid {
	if cfg.Strategy == "" {
		cfg.Strategy = domain.StrategyWeightedAverage
	}
	return &Hybrid{cfg: cfg}
}

// UpdateConfig swaps the combination settings. Safe during scoring.
func (h *Hybrid) UpdateConfig(cfg domain.HybridConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

// Config returns the current combination settings.
func (h *Hybrid) Config() domain.HybridConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Combine merges the rule score with a model prediction and returns
// the final score plus the version tag of the path taken. A nil
// prediction means the model plane had nothing to say.
func (h *Hybrid) Combine(ruleScore float64, modelScore *float64) (float64, string) {
	if modelScore == nil {
		return clamp01(ruleScore), VersionRulesOnly
	}

	h.mu.RLock()
	cfg := h.cfg
	h.mu.RUnlock()

	model := clamp01(*modelScore)
	rule := clamp01(ruleScore)

	var final float64
	switch cfg.Strategy {
	case domain.StrategyMax:
		final = max(rule, model)
	case domain.StrategyEnsembleVote:
		// Both paths must agree the transaction is risky before the
		// vote escalates; otherwise the rules decide alone.
		if rule >= cfg.VoteThreshold && model >= cfg.VoteThreshold {
			final = max(rule, model)
		} else {
			final = rule
		}
	default:
		final = cfg.RuleWeight*rule + cfg.ModelWeight*model
	}

	return clamp01(final), VersionHybrid
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
