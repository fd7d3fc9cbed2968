package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

type fakeAlertStore struct {
	saved     []*domain.Alert
	openCount int64
	failCount bool
	failSave  bool
}

func (f *fakeAlertStore) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if f.failSave {
		return errors.New("save unavailable")
	}
	f.saved = append(f.saved, alert)
	return nil
}

func (f *fakeAlertStore) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeAlertStore) CountOpenAlerts(ctx context.Context, userID string, since time.Time) (int64, error) {
	if f.failCount {
		return 0, errors.New("count unavailable")
	}
	return f.openCount, nil
}

func (f *fakeAlertStore) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	return f.saved, nil
}

type recordingBus struct {
	topics   []string
	payloads [][]byte
	failPub  bool
}

func (b *recordingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.failPub {
		return errors.New("bus down")
	}
	b.topics = append(b.topics, topic)
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (b *recordingBus) Ping(ctx context.Context) error { return nil }
func (b *recordingBus) Close() error                   { return nil }

func scoringContext(tier domain.RiskTier) *domain.ScoringContext {
	return &domain.ScoringContext{
		TransactionID:  "tx-1",
		UserID:         "user-1",
		CompositeScore: 0.72,
		RiskTier:       tier,
		Recommendation: domain.RecommendHold,
		TriggeredRules: []domain.RuleResult{
			{RuleID: "velocity_txn_count_1h", Category: domain.CategoryVelocity, Triggered: true, Score: 0.5, Severity: domain.SeverityHigh},
		},
		ScoredAt: time.Now().UTC(),
	}
}

func TestMaybeAlertCreatesForHighTier(t *testing.T) {
	store := &fakeAlertStore{}
	bus := &recordingBus{}
	mgr := NewManager(store, bus, domain.AlertConfig{SuppressionWindow: time.Hour})

	alert, err := mgr.MaybeAlert(context.Background(), scoringContext(domain.TierHigh), &domain.ScoreRequest{})
	if err != nil {
		t.Fatalf("MaybeAlert() error: %v", err)
	}
	if alert == nil {
		t.Fatal("high tier should create an alert")
	}
	if alert.Severity != domain.SeverityHigh {
		t.Errorf("Severity = %v, want high", alert.Severity)
	}
	if alert.Status != domain.AlertStatusNew {
		t.Errorf("Status = %v, want new", alert.Status)
	}
	if alert.Type != domain.AlertTypeFraudScore {
		t.Errorf("Type = %v, want %v", alert.Type, domain.AlertTypeFraudScore)
	}
	if len(store.saved) != 1 {
		t.Fatalf("saved %d alerts, want 1", len(store.saved))
	}
	if len(bus.topics) != 1 || bus.topics[0] != domain.TopicFraudAlert {
		t.Errorf("published topics = %v, want [%s]", bus.topics, domain.TopicFraudAlert)
	}
	if alert.Details["transaction_id"] != "tx-1" {
		t.Errorf("details transaction_id = %v, want tx-1", alert.Details["transaction_id"])
	}
}

func TestMaybeAlertCriticalSeverity(t *testing.T) {
	store := &fakeAlertStore{}
	mgr := NewManager(store, nil, domain.AlertConfig{SuppressionWindow: time.Hour})

	alert, err := mgr.MaybeAlert(context.Background(), scoringContext(domain.TierCritical), &domain.ScoreRequest{})
	if err != nil {
		t.Fatalf("MaybeAlert() error: %v", err)
	}
	if alert == nil || alert.Severity != domain.SeverityCritical {
		t.Errorf("critical tier should map to critical severity, got %+v", alert)
	}
}

func TestMaybeAlertSkipsLowTiers(t *testing.T) {
	store := &fakeAlertStore{}
	mgr := NewManager(store, nil, domain.AlertConfig{SuppressionWindow: time.Hour})

	for _, tier := range []domain.RiskTier{domain.TierLow, domain.TierMedium} {
		alert, err := mgr.MaybeAlert(context.Background(), scoringContext(tier), &domain.ScoreRequest{})
		if err != nil {
			t.Fatalf("MaybeAlert(%s) error: %v", tier, err)
		}
		if alert != nil {
			t.Errorf("tier %s should not create an alert", tier)
		}
	}
	if len(store.saved) != 0 {
		t.Errorf("saved %d alerts, want 0", len(store.saved))
	}
}

func TestMaybeAlertDeduplicates(t *testing.T) {
	store := &fakeAlertStore{openCount: 1}
	bus := &recordingBus{}
	mgr := NewManager(store, bus, domain.AlertConfig{SuppressionWindow: time.Hour})

	alert, err := mgr.MaybeAlert(context.Background(), scoringContext(domain.TierCritical), &domain.ScoreRequest{})
	if err != nil {
		t.Fatalf("MaybeAlert() error: %v", err)
	}
	if alert != nil {
		t.Error("an open alert inside the window should suppress a new one")
	}
	if len(store.saved) != 0 || len(bus.topics) != 0 {
		t.Error("suppressed alerts must not be saved or published")
	}
}

func TestMaybeAlertStoreFailures(t *testing.T) {
	t.Run("count failure surfaces", func(t *testing.T) {
		mgr := NewManager(&fakeAlertStore{failCount: true}, nil, domain.AlertConfig{SuppressionWindow: time.Hour})
		if _, err := mgr.MaybeAlert(context.Background(), scoringContext(domain.TierHigh), &domain.ScoreRequest{}); err == nil {
			t.Error("expected dedup check failure to surface")
		}
	})

	t.Run("save failure surfaces", func(t *testing.T) {
		mgr := NewManager(&fakeAlertStore{failSave: true}, nil, domain.AlertConfig{SuppressionWindow: time.Hour})
		if _, err := mgr.MaybeAlert(context.Background(), scoringContext(domain.TierHigh), &domain.ScoreRequest{}); err == nil {
			t.Error("expected save failure to surface")
		}
	})
}

func TestMaybeAlertPublishFailureTolerated(t *testing.T) {
	store := &fakeAlertStore{}
	mgr := NewManager(store, &recordingBus{failPub: true}, domain.AlertConfig{SuppressionWindow: time.Hour})

	alert, err := mgr.MaybeAlert(context.Background(), scoringContext(domain.TierHigh), &domain.ScoreRequest{})
	if err != nil {
		t.Fatalf("MaybeAlert() error: %v", err)
	}
	if alert == nil || len(store.saved) != 1 {
		t.Error("a bus failure must not lose the stored alert")
	}
}

func TestUpdateConfigSwapsWindow(t *testing.T) {
	mgr := NewManager(&fakeAlertStore{}, nil, domain.AlertConfig{SuppressionWindow: time.Hour})

	mgr.UpdateConfig(domain.AlertConfig{SuppressionWindow: 30 * time.Minute})
	if got := mgr.suppressionWindow(); got != 30*time.Minute {
		t.Errorf("suppressionWindow = %v, want 30m", got)
	}

	// Zero windows are rejected to keep dedup meaningful.
	mgr.UpdateConfig(domain.AlertConfig{})
	if got := mgr.suppressionWindow(); got != 30*time.Minute {
		t.Errorf("suppressionWindow = %v, want unchanged 30m", got)
	}
}
