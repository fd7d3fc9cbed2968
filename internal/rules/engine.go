// Package rules implements the fraud detection rule catalogue and the
// engine that aggregates rule scores into a risk decision.
package rules

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// EngineVersion tags every scoring result produced by the rule engine.
const EngineVersion = "rules-v2"

// Engine evaluates all registered rules against a request and
// aggregates the results into a ScoringContext.
type Engine struct {
	mu         sync.RWMutex
	rules      []domain.Rule
	cfg        domain.FraudConfig
	store      domain.EventStore
	maxWorkers int
}

// NewEngine creates an engine with the full rule catalogue built from
// the given configuration.
func NewEngine(store domain.EventStore, cfg domain.FraudConfig, maxWorkers int) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 32
	}
	return &Engine{
		rules:      Catalogue(store, cfg),
		cfg:        cfg,
		store:      store,
		maxWorkers: maxWorkers,
	}
}

// Reload rebuilds the rule set and thresholds from a new configuration.
// In-flight evaluations keep the snapshot they started with.
func (e *Engine) Reload(cfg domain.FraudConfig) {
	rules := Catalogue(e.store, cfg)

	e.mu.Lock()
	e.rules = rules
	e.cfg = cfg
	e.mu.Unlock()

	slog.Info("rule engine reloaded", "rules_count", len(rules))
}

// RulesCount returns the number of registered rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Rules describes the registered rules for the config surface.
func (e *Engine) Rules() []domain.RuleInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	infos := make([]domain.RuleInfo, 0, len(e.rules))
	for _, r := range e.rules {
		infos = append(infos, domain.RuleInfo{
			ID:       r.ID(),
			Category: r.Category(),
			Weight:   r.Weight(),
		})
	}
	return infos
}

// Config returns the engine's current threshold configuration.
func (e *Engine) Config() domain.FraudConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Evaluate runs every rule concurrently, waits for all of them, and
// aggregates category-capped scores into a composite score, risk tier
// and recommendation. Individual rule failures resolve to
// not-triggered and are recorded in metadata, never raised.
func (e *Engine) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) *domain.ScoringContext {
	e.mu.RLock()
	rules := e.rules
	cfg := e.cfg
	e.mu.RUnlock()

	results := make([]domain.RuleResult, len(rules))
	failures := make([]string, 0)
	var failMu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r domain.Rule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			result, err := e.evaluateRule(ctx, r, req, features, cfg.Scoring.RuleTimeout)
			if err != nil {
				failMu.Lock()
				failures = append(failures, r.ID())
				failMu.Unlock()
			}
			results[idx] = result
		}(i, rule)
	}

	wg.Wait()

	return e.aggregate(req, cfg.Scoring, results, failures)
}

// evaluateRule applies the per-rule timeout and fail-open policy.
func (e *Engine) evaluateRule(ctx context.Context, rule domain.Rule, req *domain.ScoreRequest, features *domain.FeatureVector, timeout time.Duration) (domain.RuleResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := rule.Evaluate(ctx, req, features)
	if err != nil {
		slog.Warn("rule evaluation failed, resolving to not-triggered",
			"rule_id", rule.ID(),
			"tx_id", req.TransactionID,
			"error", err,
		)
		return domain.RuleResult{
			RuleID:   rule.ID(),
			Category: rule.Category(),
		}, err
	}

	result.RuleID = rule.ID()
	result.Category = rule.Category()
	result.Score = clamp01(result.Score)
	return result, nil
}

func (e *Engine) aggregate(req *domain.ScoreRequest, scoring domain.ScoringConfig, results []domain.RuleResult, failures []string) *domain.ScoringContext {
	categoryScores := map[domain.RuleCategory]float64{
		domain.CategoryVelocity: 0,
		domain.CategoryAmount:   0,
		domain.CategoryGeo:      0,
		domain.CategoryPatterns: 0,
	}

	var triggered []domain.RuleResult
	for _, r := range results {
		if !r.Triggered {
			continue
		}
		triggered = append(triggered, r)
		categoryScores[r.Category] += r.Score
	}

	var composite float64
	categories := 0
	for cat, score := range categoryScores {
		capped := min(score, scoring.Cap(cat))
		categoryScores[cat] = capped
		composite += capped
		if capped > 0 {
			categories++
		}
	}
	composite = clamp01(composite)

	tier := scoring.TierFor(composite)

	metadata := map[string]any{
		"category_scores": map[string]float64{
			string(domain.CategoryVelocity): categoryScores[domain.CategoryVelocity],
			string(domain.CategoryAmount):   categoryScores[domain.CategoryAmount],
			string(domain.CategoryGeo):      categoryScores[domain.CategoryGeo],
			string(domain.CategoryPatterns): categoryScores[domain.CategoryPatterns],
		},
		"triggered_count": len(triggered),
		"engine_version":  EngineVersion,
		"confidence":      engineConfidence(triggered, categories),
	}
	if len(failures) > 0 {
		metadata["rule_failures"] = failures
	}

	return &domain.ScoringContext{
		TransactionID:  req.TransactionID,
		UserID:         req.UserID,
		CompositeScore: composite,
		RiskTier:       tier,
		Recommendation: domain.RecommendationFor(tier),
		TriggeredRules: triggered,
		Metadata:       metadata,
		ScoredAt:       time.Now().UTC(),
	}
}

// engineConfidence blends the number of triggered rules, the category
// spread and the mean rule confidence.
func engineConfidence(triggered []domain.RuleResult, categories int) float64 {
	if len(triggered) == 0 {
		return 0
	}

	var avgConf float64
	for _, r := range triggered {
		avgConf += r.Confidence
	}
	avgConf /= float64(len(triggered))

	ruleFactor := min(float64(len(triggered))/5.0, 1.0)
	categoryFactor := min(float64(categories)/3.0, 1.0)

	return 0.4*ruleFactor + 0.3*categoryFactor + 0.3*avgConf
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
