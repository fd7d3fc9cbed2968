package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// largeTransactionRule triggers at or above the configured minimum,
// with severity escalating at 1.5x, 3x and 5x the threshold.
type largeTransactionRule struct {
	baseRule
	threshold float64
}

func newLargeTransactionRule(cfg domain.AmountConfig) *largeTransactionRule {
	return &largeTransactionRule{
		baseRule:  baseRule{id: "large_transaction", category: domain.CategoryAmount, weight: 1.0},
		threshold: cfg.LargeTxnMin,
	}
}

func (r *largeTransactionRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	amount := req.AmountValue()
	if r.threshold <= 0 || amount < r.threshold {
		return r.pass(), nil
	}

	ratio := min(amount/r.threshold, 10.0)
	score := 0.2 + (ratio-1)*0.089

	severity := domain.SeverityLow
	switch {
	case ratio >= 5:
		severity = domain.SeverityCritical
	case ratio >= 3:
		severity = domain.SeverityHigh
	case ratio >= 1.5:
		severity = domain.SeverityMedium
	}

	return r.hit(score, severity, 0.75, map[string]any{
		"amount":    amount,
		"threshold": r.threshold,
		"ratio":     ratio,
	}, fmt.Sprintf("amount %.2f is %.1fx the large-transaction threshold", amount, ratio)), nil
}

// cumulativeAmountRule checks the 24h, 7d and 30d rolling sums
// independently and reports every breached window, keeping the
// highest resulting score.
type cumulativeAmountRule struct {
	baseRule
	store domain.EventStore
	cfg   domain.AmountConfig
}

func newCumulativeAmountRule(store domain.EventStore, cfg domain.AmountConfig) *cumulativeAmountRule {
	return &cumulativeAmountRule{
		baseRule: baseRule{id: "cumulative_amount", category: domain.CategoryAmount, weight: 1.0},
		store:    store,
		cfg:      cfg,
	}
}

func (r *cumulativeAmountRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	amount := req.AmountValue()

	windows := []struct {
		name      string
		duration  time.Duration
		threshold float64
	}{
		{"24h", 24 * time.Hour, r.cfg.Cumulative24hMax},
		{"7d", 7 * 24 * time.Hour, r.cfg.Cumulative7dMax},
		{"30d", 30 * 24 * time.Hour, r.cfg.Cumulative30dMax},
	}

	var breached []string
	var best float64
	daily := false

	for _, w := range windows {
		if w.threshold <= 0 {
			continue
		}

		var total float64
		if w.name == "24h" {
			total = features.VelocityAmount24h
		} else {
			sum, err := r.store.Sum(ctx, domain.EventTransactionInitiated, req.UserID, "amount", domain.Window(req.InitiatedAt, w.duration))
			if err != nil {
				return r.pass(), err
			}
			total = sum
		}
		total += amount

		if total < w.threshold {
			continue
		}

		breached = append(breached, w.name)
		if w.name == "24h" {
			daily = true
		}

		ratio := min(total/w.threshold, 3.0)
		if score := 0.3 + (ratio-1)*0.35; score > best {
			best = score
		}
	}

	if len(breached) == 0 {
		return r.pass(), nil
	}

	severity := domain.SeverityHigh
	if daily {
		severity = domain.SeverityCritical
	}

	return r.hit(best, severity, 0.85, map[string]any{
		"breached_windows": breached,
	}, fmt.Sprintf("cumulative amount exceeded in %v", breached)), nil
}

// baselineDeviationRule compares the amount against the user's 30d
// mean and standard deviation. Requires a real baseline; users without
// history never trigger it.
type baselineDeviationRule struct {
	baseRule
	zThreshold float64
}

func newBaselineDeviationRule(cfg domain.AmountConfig) *baselineDeviationRule {
	return &baselineDeviationRule{
		baseRule:   baseRule{id: "amount_zscore", category: domain.CategoryAmount, weight: 1.0},
		zThreshold: cfg.ZScoreThreshold,
	}
}

func (r *baselineDeviationRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	if features.AvgAmount30d == 0 || features.StdDevAmount30d == 0 {
		return r.pass(), nil
	}

	z := (req.AmountValue() - features.AvgAmount30d) / features.StdDevAmount30d
	if z < r.zThreshold {
		return r.pass(), nil
	}

	score := min(0.3+(z-r.zThreshold)*0.15, 1.0)

	severity := domain.SeverityMedium
	if z > 2*r.zThreshold {
		severity = domain.SeverityHigh
	}

	confidence := min(0.6+z*0.05, 0.95)

	return r.hit(score, severity, confidence, map[string]any{
		"zscore":      z,
		"avg_30d":     features.AvgAmount30d,
		"stddev_30d":  features.StdDevAmount30d,
		"amount":      req.AmountValue(),
		"z_threshold": r.zThreshold,
	}, fmt.Sprintf("amount is %.1f standard deviations above the 30d baseline", z)), nil
}

// ctrProximityRule flags amounts at or above the near-reporting
// thresholds. A single transaction over the single threshold takes
// precedence over the daily cumulative path.
type ctrProximityRule struct {
	baseRule
	single float64
	daily  float64
}

func newCTRProximityRule(cfg domain.AmountConfig) *ctrProximityRule {
	return &ctrProximityRule{
		baseRule: baseRule{id: "ctr_proximity", category: domain.CategoryAmount, weight: 1.0},
		single:   cfg.CTRSingleThreshold,
		daily:    cfg.CTRDailyThreshold,
	}
}

func (r *ctrProximityRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	amount := req.AmountValue()

	if r.single > 0 && amount >= r.single {
		score := min(0.5+(amount-r.single)/r.single*0.5, 1.0)
		return r.hit(score, domain.SeverityCritical, 0.95, map[string]any{
			"amount":    amount,
			"threshold": r.single,
			"path":      "single",
		}, fmt.Sprintf("single transaction %.2f at or above CTR proximity threshold %.2f", amount, r.single)), nil
	}

	dailyTotal := features.VelocityAmount24h + amount
	if r.daily > 0 && dailyTotal >= r.daily {
		score := min(0.5+(dailyTotal-r.daily)/r.daily*0.5, 1.0)
		return r.hit(score, domain.SeverityCritical, 0.90, map[string]any{
			"daily_total": dailyTotal,
			"threshold":   r.daily,
			"path":        "daily",
		}, fmt.Sprintf("24h total %.2f at or above daily CTR proximity threshold %.2f", dailyTotal, r.daily)), nil
	}

	return r.pass(), nil
}
