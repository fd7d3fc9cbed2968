package rules

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// duplicateTransactionRule counts near-identical amounts to the same
// recipient within a short window.
type duplicateTransactionRule struct {
	baseRule
	store     domain.EventStore
	tolerance float64
	window    time.Duration
}

func newDuplicateTransactionRule(store domain.EventStore, cfg domain.PatternConfig) *duplicateTransactionRule {
	return &duplicateTransactionRule{
		baseRule:  baseRule{id: "duplicate_transaction", category: domain.CategoryPatterns, weight: 1.0},
		store:     store,
		tolerance: cfg.DuplicateTolerance,
		window:    cfg.DuplicateWindow,
	}
}

func (r *duplicateTransactionRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	if req.RecipientID == "" {
		return r.pass(), nil
	}

	events, err := r.store.ListEvents(ctx, domain.EventTransactionInitiated, req.UserID, domain.Window(req.InitiatedAt, r.window))
	if err != nil {
		return r.pass(), err
	}

	amount := req.AmountValue()
	band := amount * r.tolerance

	count := 0
	for _, e := range events {
		if e.RecipientID == req.RecipientID && math.Abs(e.Amount-amount) <= band {
			count++
		}
	}
	if count == 0 {
		return r.pass(), nil
	}

	score := min(0.5+float64(count)*0.2, 1.0)

	severity := domain.SeverityMedium
	if count >= 2 {
		severity = domain.SeverityHigh
	}

	return r.hit(score, severity, 0.85, map[string]any{
		"duplicate_count": count,
		"recipient_id":    req.RecipientID,
		"window_mins":     r.window.Minutes(),
	}, fmt.Sprintf("%d near-identical transfers to the same recipient in %s", count, r.window)), nil
}

// structuringRule checks both single-transaction proximity to the two
// known reporting thresholds and multi-transaction cumulative
// proximity, keeping the highest-scoring match.
type structuringRule struct {
	baseRule
	store domain.EventStore
	cfg   domain.PatternConfig
}

func newStructuringRule(store domain.EventStore, cfg domain.PatternConfig) *structuringRule {
	return &structuringRule{
		baseRule: baseRule{id: "structuring", category: domain.CategoryPatterns, weight: 1.0},
		store:    store,
		cfg:      cfg,
	}
}

// proximity maps a value inside [low, high] to [0, 1].
func proximity(value, low, high float64) float64 {
	if high <= low {
		return 0
	}
	return (value - low) / (high - low)
}

func (r *structuringRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	amount := req.AmountValue()

	var best float64
	var match string

	if amount >= r.cfg.StructuringNear3kLow && amount <= r.cfg.StructuringNear3kHigh {
		p := proximity(amount, r.cfg.StructuringNear3kLow, r.cfg.StructuringNear3kHigh)
		best = 0.25 + 0.15*p
		match = "near_3k"
	}

	if amount >= r.cfg.StructuringNear10kLow && amount <= r.cfg.StructuringNear10kHigh {
		p := proximity(amount, r.cfg.StructuringNear10kLow, r.cfg.StructuringNear10kHigh)
		if score := 0.45 + 0.15*p; score > best {
			best = score
			match = "near_10k"
		}
	}

	// Cumulative path: the window total including this transaction
	// sitting just under the 10k reporting threshold.
	total, err := r.store.Sum(ctx, domain.EventTransactionInitiated, req.UserID, "amount", domain.Window(req.InitiatedAt, r.cfg.StructuringWindow))
	if err != nil {
		if best == 0 {
			return r.pass(), err
		}
	} else {
		cumulative := total + amount
		if cumulative >= r.cfg.StructuringNear10kLow && cumulative <= r.cfg.StructuringNear10kHigh {
			p := proximity(cumulative, r.cfg.StructuringNear10kLow, r.cfg.StructuringNear10kHigh)
			if score := 0.35 + 0.15*p; score > best {
				best = score
				match = "cumulative"
			}
		}
	}

	if best == 0 {
		return r.pass(), nil
	}

	return r.hit(best, domain.SeverityHigh, 0.80, map[string]any{
		"match":  match,
		"amount": amount,
	}, fmt.Sprintf("structuring pattern matched (%s)", match)), nil
}

// roundAmountRule triggers when the share of round amounts (divisible
// by 100) over the lookback exceeds the configured percentage.
type roundAmountRule struct {
	baseRule
	store domain.EventStore
	cfg   domain.PatternConfig
}

func newRoundAmountRule(store domain.EventStore, cfg domain.PatternConfig) *roundAmountRule {
	return &roundAmountRule{
		baseRule: baseRule{id: "round_amount_clustering", category: domain.CategoryPatterns, weight: 1.0},
		store:    store,
		cfg:      cfg,
	}
}

func isRound(amount float64) bool {
	return amount > 0 && math.Mod(amount, 100) == 0
}

func (r *roundAmountRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	events, err := r.store.ListEvents(ctx, domain.EventTransactionInitiated, req.UserID, domain.Window(req.InitiatedAt, r.cfg.RoundAmountLookback))
	if err != nil {
		return r.pass(), err
	}

	amounts := make([]float64, 0, len(events)+1)
	for _, e := range events {
		amounts = append(amounts, e.Amount)
	}
	amounts = append(amounts, req.AmountValue())

	if len(amounts) < r.cfg.RoundAmountMinTxns {
		return r.pass(), nil
	}

	round := 0
	for _, a := range amounts {
		if isRound(a) {
			round++
		}
	}
	pct := float64(round) / float64(len(amounts))
	if pct <= r.cfg.RoundAmountPct {
		return r.pass(), nil
	}

	score := min(0.3+(pct-r.cfg.RoundAmountPct)*2.0, 0.8)

	return r.hit(score, domain.SeverityMedium, 0.65, map[string]any{
		"round_pct": pct,
		"txn_count": len(amounts),
		"threshold": r.cfg.RoundAmountPct,
	}, fmt.Sprintf("%.0f%% of recent amounts are round numbers", pct*100)), nil
}

// temporalStructuringRule flags suspiciously regular transaction
// timing: a low standard deviation of inter-transaction intervals.
type temporalStructuringRule struct {
	baseRule
	store domain.EventStore
	cfg   domain.PatternConfig
}

func newTemporalStructuringRule(store domain.EventStore, cfg domain.PatternConfig) *temporalStructuringRule {
	return &temporalStructuringRule{
		baseRule: baseRule{id: "temporal_structuring", category: domain.CategoryPatterns, weight: 1.0},
		store:    store,
		cfg:      cfg,
	}
}

func (r *temporalStructuringRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	timestamps, err := r.store.ListTimestamps(ctx, domain.EventTransactionInitiated, req.UserID, domain.Window(req.InitiatedAt, r.cfg.TemporalLookback))
	if err != nil {
		return r.pass(), err
	}
	timestamps = append(timestamps, req.InitiatedAt)

	if len(timestamps) < r.cfg.TemporalMinTxns {
		return r.pass(), nil
	}

	intervals := make([]float64, 0, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		intervals = append(intervals, timestamps[i].Sub(timestamps[i-1]).Seconds())
	}

	var mean float64
	for _, v := range intervals {
		mean += v
	}
	mean /= float64(len(intervals))

	var sq float64
	for _, v := range intervals {
		d := v - mean
		sq += d * d
	}
	stddev := math.Sqrt(sq / float64(len(intervals)))

	if stddev >= r.cfg.TemporalStdDevSecs {
		return r.pass(), nil
	}

	score := min(0.4+(1-stddev/r.cfg.TemporalStdDevSecs)*0.5, 0.9)

	return r.hit(score, domain.SeverityHigh, 0.75, map[string]any{
		"interval_stddev_s": stddev,
		"txn_count":         len(timestamps),
		"threshold_s":       r.cfg.TemporalStdDevSecs,
	}, fmt.Sprintf("inter-transaction interval stddev %.0fs below %.0fs", stddev, r.cfg.TemporalStdDevSecs)), nil
}
