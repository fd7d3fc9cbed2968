package rules

import (
	"context"
	"testing"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

func TestDuplicateTransactionRule(t *testing.T) {
	cfg := domain.DefaultFraudConfig().Patterns

	t.Run("counts tolerance-banded duplicates", func(t *testing.T) {
		store := emptyStore()
		store.events = []*domain.Event{
			{RecipientID: "rcpt-1", Amount: 500},
			{RecipientID: "rcpt-1", Amount: 510}, // within 5%
			{RecipientID: "rcpt-1", Amount: 600}, // outside 5%
			{RecipientID: "rcpt-2", Amount: 500}, // different recipient
		}
		rule := newDuplicateTransactionRule(store, cfg)

		req := request(t, "500.00")
		req.RecipientID = "rcpt-1"

		result, err := rule.Evaluate(context.Background(), req, &domain.FeatureVector{})
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if !result.Triggered {
			t.Fatal("two near-identical transfers should trigger")
		}
		if result.Evidence["duplicate_count"] != 2 {
			t.Errorf("duplicate_count = %v, want 2", result.Evidence["duplicate_count"])
		}
		// score = 0.5 + 2*0.2 = 0.9
		if result.Score != 0.9 {
			t.Errorf("Score = %v, want 0.9", result.Score)
		}
		if result.Severity != domain.SeverityHigh {
			t.Errorf("Severity = %v, want high for 2+ duplicates", result.Severity)
		}
	})

	t.Run("no recipient passes", func(t *testing.T) {
		rule := newDuplicateTransactionRule(emptyStore(), cfg)
		result, err := rule.Evaluate(context.Background(), request(t, "500.00"), &domain.FeatureVector{})
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if result.Triggered {
			t.Error("requests without a recipient cannot have duplicates")
		}
	})
}

func TestStructuringRule(t *testing.T) {
	cfg := domain.DefaultFraudConfig().Patterns

	t.Run("near 3k band", func(t *testing.T) {
		rule := newStructuringRule(emptyStore(), cfg)
		result, err := rule.Evaluate(context.Background(), request(t, "2950.00"), &domain.FeatureVector{})
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if !result.Triggered || result.Evidence["match"] != "near_3k" {
			t.Fatalf("want near_3k trigger, got %+v", result)
		}
		if result.Score < 0.25 || result.Score > 0.40 {
			t.Errorf("Score = %v, want within [0.25, 0.40]", result.Score)
		}
	})

	t.Run("near 10k band outranks", func(t *testing.T) {
		rule := newStructuringRule(emptyStore(), cfg)
		result, err := rule.Evaluate(context.Background(), request(t, "9900.00"), &domain.FeatureVector{})
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if !result.Triggered || result.Evidence["match"] != "near_10k" {
			t.Fatalf("want near_10k trigger, got %+v", result)
		}
		if result.Score < 0.45 {
			t.Errorf("Score = %v, want >= 0.45", result.Score)
		}
	})

	t.Run("cumulative window proximity", func(t *testing.T) {
		store := emptyStore()
		store.sums[domain.EventTransactionInitiated] = 9200
		rule := newStructuringRule(store, cfg)

		// 9200 + 500 = 9700, inside the cumulative band.
		result, err := rule.Evaluate(context.Background(), request(t, "500.00"), &domain.FeatureVector{})
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if !result.Triggered || result.Evidence["match"] != "cumulative" {
			t.Fatalf("want cumulative trigger, got %+v", result)
		}
	})

	t.Run("round amounts outside bands pass", func(t *testing.T) {
		rule := newStructuringRule(emptyStore(), cfg)
		result, err := rule.Evaluate(context.Background(), request(t, "5000.00"), &domain.FeatureVector{})
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if result.Triggered {
			t.Error("5000 is not near a reporting threshold")
		}
	})
}

func TestRoundAmountRule(t *testing.T) {
	cfg := domain.DefaultFraudConfig().Patterns

	t.Run("triggers on clustering", func(t *testing.T) {
		store := emptyStore()
		store.events = []*domain.Event{
			{Amount: 100}, {Amount: 200}, {Amount: 300}, {Amount: 457.12},
		}
		rule := newRoundAmountRule(store, cfg)

		// 4 of 5 amounts round: pct = 0.8 > 0.6
		result, err := rule.Evaluate(context.Background(), request(t, "500.00"), &domain.FeatureVector{})
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if !result.Triggered {
			t.Fatal("80% round amounts should trigger at a 60% threshold")
		}
		// score = min(0.3 + 0.2*2.0, 0.8) = 0.7
		if result.Score < 0.69 || result.Score > 0.71 {
			t.Errorf("Score = %v, want ~0.7", result.Score)
		}
	})

	t.Run("too little history passes", func(t *testing.T) {
		store := emptyStore()
		store.events = []*domain.Event{{Amount: 100}}
		rule := newRoundAmountRule(store, cfg)

		result, err := rule.Evaluate(context.Background(), request(t, "200.00"), &domain.FeatureVector{})
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if result.Triggered {
			t.Error("two transactions are below the minimum population")
		}
	})
}

func TestTemporalStructuringRule(t *testing.T) {
	cfg := domain.DefaultFraudConfig().Patterns
	base := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	t.Run("regular cadence triggers", func(t *testing.T) {
		store := emptyStore()
		// Exactly 10 minutes apart: stddev 0.
		store.timestamps = []time.Time{
			base.Add(-30 * time.Minute),
			base.Add(-20 * time.Minute),
			base.Add(-10 * time.Minute),
		}
		rule := newTemporalStructuringRule(store, cfg)

		req := request(t, "100.00")
		req.InitiatedAt = base

		result, err := rule.Evaluate(context.Background(), req, &domain.FeatureVector{})
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if !result.Triggered {
			t.Fatal("perfectly regular intervals should trigger")
		}
		// stddev 0: score = min(0.4 + 0.5, 0.9) = 0.9
		if result.Score != 0.9 {
			t.Errorf("Score = %v, want 0.9", result.Score)
		}
		if result.Severity != domain.SeverityHigh {
			t.Errorf("Severity = %v, want high", result.Severity)
		}
	})

	t.Run("irregular cadence passes", func(t *testing.T) {
		store := emptyStore()
		store.timestamps = []time.Time{
			base.Add(-50 * time.Hour),
			base.Add(-20 * time.Hour),
			base.Add(-1 * time.Hour),
		}
		rule := newTemporalStructuringRule(store, cfg)

		req := request(t, "100.00")
		req.InitiatedAt = base

		result, err := rule.Evaluate(context.Background(), req, &domain.FeatureVector{})
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if result.Triggered {
			t.Error("high interval variance should not trigger")
		}
	})

	t.Run("too few transactions passes", func(t *testing.T) {
		store := emptyStore()
		store.timestamps = []time.Time{base.Add(-10 * time.Minute)}
		rule := newTemporalStructuringRule(store, cfg)

		req := request(t, "100.00")
		req.InitiatedAt = base

		result, err := rule.Evaluate(context.Background(), req, &domain.FeatureVector{})
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if result.Triggered {
			t.Error("two transactions cannot establish a cadence")
		}
	})
}
