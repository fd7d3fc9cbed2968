// Package alerts creates and publishes fraud alerts for high-risk
// scoring results.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lakay-finance/kestrel/internal/domain"
)

// Manager decides whether a scoring result should raise an alert.
// Only high and critical tiers are eligible; an open alert for the
// same user inside the suppression window suppresses creation.
//
// The count-then-insert dedup check is not atomic: two concurrent
// scoring calls for the same user can race and both create an alert.
// Duplicate alerts are a nuisance, not a correctness problem, so the
// window is enforced best-effort.
type Manager struct {
	mu    sync.RWMutex
	store domain.AlertStore
	bus   domain.EventBus
	cfg   domain.AlertConfig
}

// NewManager creates an alert manager. The bus is optional; without
// one alerts are stored but not published.
func NewManager(store domain.AlertStore, bus domain.EventBus, cfg domain.AlertConfig) *Manager {
	if cfg.SuppressionWindow <= 0 {
		cfg.SuppressionWindow = time.Hour
	}
	return &Manager{store: store, bus: bus, cfg: cfg}
}

// UpdateConfig swaps the alerting settings. Safe during scoring.
func (m *Manager) UpdateConfig(cfg domain.AlertConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.SuppressionWindow > 0 {
		m.cfg = cfg
	}
}

func (m *Manager) suppressionWindow() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.SuppressionWindow
}

// MaybeAlert creates an alert for a high or critical scoring result,
// unless a recent open alert for the same user suppresses it.
// Returns nil, nil when no alert is warranted.
func (m *Manager) MaybeAlert(ctx context.Context, sctx *domain.ScoringContext, req *domain.ScoreRequest) (*domain.Alert, error) {
	if sctx.RiskTier != domain.TierHigh && sctx.RiskTier != domain.TierCritical {
		return nil, nil
	}

	since := time.Now().UTC().Add(-m.suppressionWindow())
	open, err := m.store.CountOpenAlerts(ctx, sctx.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to check open alerts: %w", err)
	}
	if open > 0 {
		slog.Info("alert deduplicated",
			"user_id", sctx.UserID,
			"tx_id", sctx.TransactionID,
			"open_alerts", open,
		)
		return nil, nil
	}

	severity := domain.SeverityHigh
	if sctx.RiskTier == domain.TierCritical {
		severity = domain.SeverityCritical
	}

	alert := &domain.Alert{
		ID:       uuid.New().String(),
		UserID:   sctx.UserID,
		Type:     domain.AlertTypeFraudScore,
		Severity: severity,
		Status:   domain.AlertStatusNew,
		Details: map[string]any{
			"transaction_id":  sctx.TransactionID,
			"composite_score": sctx.CompositeScore,
			"risk_tier":       string(sctx.RiskTier),
			"recommendation":  string(sctx.Recommendation),
			"triggered_rules": triggeredSnapshot(sctx.TriggeredRules),
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := m.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	m.publish(ctx, alert)

	slog.Info("fraud alert created",
		"alert_id", alert.ID,
		"user_id", alert.UserID,
		"severity", alert.Severity,
		"tx_id", sctx.TransactionID,
	)

	return alert, nil
}

// publish hands the alert to the bus, best-effort. Failures are
// logged; the stored alert stands either way.
func (m *Manager) publish(ctx context.Context, alert *domain.Alert) {
	if m.bus == nil {
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		slog.Error("failed to marshal alert", "alert_id", alert.ID, "error", err)
		return
	}
	if err := m.bus.Publish(ctx, domain.TopicFraudAlert, payload); err != nil {
		slog.Error("failed to publish alert",
			"alert_id", alert.ID,
			"topic", domain.TopicFraudAlert,
			"error", err,
		)
	}
}

// triggeredSnapshot keeps the audit-relevant fields of each rule hit.
func triggeredSnapshot(results []domain.RuleResult) []map[string]any {
	snapshot := make([]map[string]any, 0, len(results))
	for _, r := range results {
		snapshot = append(snapshot, map[string]any{
			"rule_id":  r.RuleID,
			"category": string(r.Category),
			"score":    r.Score,
			"severity": string(r.Severity),
			"details":  r.Details,
		})
	}
	return snapshot
}
