package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// txnFrequencyRule triggers when the transaction count in a rolling
// window reaches its threshold. Score scales linearly from 0.3 at the
// threshold toward 1.0 as the ratio approaches 3x.
type txnFrequencyRule struct {
	baseRule
	threshold int64
	daily     bool
}

func newTxnFrequencyRule(id string, threshold int64, daily bool) *txnFrequencyRule {
	return &txnFrequencyRule{
		baseRule:  baseRule{id: id, category: domain.CategoryVelocity, weight: 1.0},
		threshold: threshold,
		daily:     daily,
	}
}

func (r *txnFrequencyRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	count := features.VelocityCount1h
	window := "1h"
	if r.daily {
		count = features.VelocityCount24h
		window = "24h"
	}

	if r.threshold <= 0 || count < r.threshold {
		return r.pass(), nil
	}

	ratio := min(float64(count)/float64(r.threshold), 3.0)
	score := 0.3 + (ratio-1)*0.35

	severity := domain.SeverityMedium
	if ratio >= 2 {
		severity = domain.SeverityHigh
	}

	return r.hit(score, severity, 0.90, map[string]any{
		"count":     count,
		"threshold": r.threshold,
		"window":    window,
	}, fmt.Sprintf("%d transactions in %s (threshold %d)", count, window, r.threshold)), nil
}

// velocityAmountRule triggers when the rolling 24h amount, including
// the current transaction, reaches the configured ceiling.
type velocityAmountRule struct {
	baseRule
	threshold float64
}

func newVelocityAmountRule(cfg domain.VelocityConfig) *velocityAmountRule {
	return &velocityAmountRule{
		baseRule:  baseRule{id: "velocity_amount_24h", category: domain.CategoryVelocity, weight: 1.0},
		threshold: cfg.TxnAmount24hMax,
	}
}

func (r *velocityAmountRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	total := features.VelocityAmount24h + req.AmountValue()
	if r.threshold <= 0 || total < r.threshold {
		return r.pass(), nil
	}

	ratio := min(total/r.threshold, 5.0)
	score := 0.3 + (ratio-1)*0.175

	severity := domain.SeverityMedium
	if ratio >= 2 {
		severity = domain.SeverityHigh
	}

	return r.hit(score, severity, 0.85, map[string]any{
		"total_24h": total,
		"threshold": r.threshold,
	}, fmt.Sprintf("24h amount %.2f exceeds %.2f", total, r.threshold)), nil
}

// loginVelocityRule counts recent session starts in a short window.
type loginVelocityRule struct {
	baseRule
	store  domain.EventStore
	window time.Duration
	max    int
}

func newLoginVelocityRule(store domain.EventStore, cfg domain.VelocityConfig) *loginVelocityRule {
	return &loginVelocityRule{
		baseRule: baseRule{id: "login_velocity", category: domain.CategoryVelocity, weight: 1.0},
		store:    store,
		window:   cfg.LoginWindow,
		max:      cfg.LoginMax,
	}
}

func (r *loginVelocityRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	count, err := r.store.Count(ctx, domain.EventSessionStarted, req.UserID, domain.Window(req.InitiatedAt, r.window))
	if err != nil {
		return r.pass(), err
	}
	if r.max <= 0 || count < int64(r.max) {
		return r.pass(), nil
	}

	ratio := min(float64(count)/float64(r.max), 3.0)
	score := 0.4 + (ratio-1)*0.3

	return r.hit(score, domain.SeverityHigh, 0.80, map[string]any{
		"login_count": count,
		"threshold":   r.max,
		"window_mins": r.window.Minutes(),
	}, fmt.Sprintf("%d logins in %s", count, r.window)), nil
}

// circleJoinVelocityRule counts recent savings-circle joins.
type circleJoinVelocityRule struct {
	baseRule
	store  domain.EventStore
	window time.Duration
	max    int64
}

func newCircleJoinVelocityRule(store domain.EventStore, cfg domain.VelocityConfig) *circleJoinVelocityRule {
	return &circleJoinVelocityRule{
		baseRule: baseRule{id: "circle_join_velocity", category: domain.CategoryVelocity, weight: 1.0},
		store:    store,
		window:   cfg.CircleJoinWindow,
		max:      cfg.CircleJoinMax,
	}
}

func (r *circleJoinVelocityRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	count, err := r.store.Count(ctx, domain.EventCircleMemberJoined, req.UserID, domain.Window(req.InitiatedAt, r.window))
	if err != nil {
		return r.pass(), err
	}
	if r.max <= 0 || count < r.max {
		return r.pass(), nil
	}

	ratio := min(float64(count)/float64(r.max), 3.0)
	score := 0.3 + (ratio-1)*0.35

	return r.hit(score, domain.SeverityMedium, 0.75, map[string]any{
		"join_count": count,
		"threshold":  r.max,
	}, fmt.Sprintf("%d circle joins in %s", count, r.window)), nil
}

// unusualHourRule flags transactions initiated between 02:00 and
// 05:00 UTC.
type unusualHourRule struct {
	baseRule
}

func newUnusualHourRule() *unusualHourRule {
	return &unusualHourRule{baseRule{id: "unusual_hour", category: domain.CategoryVelocity, weight: 1.0}}
}

func (r *unusualHourRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	hour := req.InitiatedAt.UTC().Hour()
	if hour < 2 || hour >= 5 {
		return r.pass(), nil
	}

	return r.hit(0.3, domain.SeverityLow, 0.50, map[string]any{
		"hour_utc": hour,
	}, fmt.Sprintf("initiated at %02d:00 UTC", hour)), nil
}
