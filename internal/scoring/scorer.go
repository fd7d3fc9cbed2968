// Package scoring orchestrates the full risk pipeline: feature
// computation, rule evaluation, model routing, hybrid combination,
// alerting and result archival.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lakay-finance/kestrel/internal/domain"
	"github.com/lakay-finance/kestrel/internal/features"
	"github.com/lakay-finance/kestrel/internal/rules"
)

// ModelRouter assigns a scoring call to a model variant and returns
// its prediction, if any. Implemented by the serving control plane.
type ModelRouter interface {
	Route(ctx context.Context, userID string, feats map[string]float64) domain.RoutingDecision
}

// Alerter raises alerts for high-risk results. Implemented by the
// alert manager.
type Alerter interface {
	MaybeAlert(ctx context.Context, sctx *domain.ScoringContext, req *domain.ScoreRequest) (*domain.Alert, error)
}

// Scorer runs the scoring pipeline for one transaction at a time.
// All stages after rule evaluation degrade gracefully: a missing
// model, a failed alert write or a dead bus never block the score.
type Scorer struct {
	computer *features.Computer
	engine   *rules.Engine
	router   ModelRouter
	hybrid   *Hybrid
	alerter  Alerter
	scores   domain.ScoreStore
	events   domain.EventStore
	bus      domain.EventBus
	tracer   trace.Tracer
}

// NewScorer wires the pipeline. Router, alerter, score store, event
// store and bus may each be nil; the corresponding stage is skipped.
func NewScorer(
	computer *features.Computer,
	engine *rules.Engine,
	router ModelRouter,
	hybrid *Hybrid,
	alerter Alerter,
	scores domain.ScoreStore,
	events domain.EventStore,
	bus domain.EventBus,
) *Scorer {
	return &Scorer{
		computer: computer,
		engine:   engine,
		router:   router,
		hybrid:   hybrid,
		alerter:  alerter,
		scores:   scores,
		events:   events,
		bus:      bus,
		tracer:   otel.Tracer("kestrel-scoring"),
	}
}

// Score runs the full pipeline. Repeat calls for an already-scored
// transaction return the archived result unchanged.
func (s *Scorer) Score(ctx context.Context, req *domain.ScoreRequest) (*domain.ScoringContext, error) {
	ctx, span := s.tracer.Start(ctx, "scorer.Score")
	defer span.End()

	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid score request: %w", err)
	}

	span.SetAttributes(
		attribute.String("tx.id", req.TransactionID),
		attribute.String("user.id", req.UserID),
	)

	if archived := s.archived(ctx, req.TransactionID); archived != nil {
		slog.Info("returning archived score", "tx_id", req.TransactionID)
		return archived, nil
	}

	fv := s.computer.Compute(ctx, req)
	featMap := fv.Map()

	sctx := s.engine.Evaluate(ctx, req, fv)
	ruleScore := sctx.CompositeScore

	decision := s.route(ctx, req.UserID, featMap)
	final, version := s.hybrid.Combine(ruleScore, decision.Prediction)

	// The final score owns the tier; a model that disagrees with the
	// rules can move the transaction across a threshold.
	scoring := s.engine.Config().Scoring
	sctx.CompositeScore = final
	sctx.RiskTier = scoring.TierFor(final)
	sctx.Recommendation = domain.RecommendationFor(sctx.RiskTier)
	sctx.Metadata["scoring_version"] = version
	sctx.Metadata["rule_score"] = ruleScore
	if decision.Variant != domain.VariantNone {
		sctx.Metadata["model_variant"] = string(decision.Variant)
		if decision.Prediction != nil {
			sctx.Metadata["model_score"] = *decision.Prediction
			sctx.Metadata["model_latency_ms"] = decision.LatencyMs
		}
	}

	s.raiseAlert(ctx, sctx, req)
	s.persistScore(ctx, sctx)
	s.recordEvent(ctx, req)
	s.publishDecision(ctx, sctx, decision, ruleScore, version, featMap)

	scoresTotal.WithLabelValues(string(sctx.RiskTier)).Inc()
	scoringDuration.Observe(time.Since(start).Seconds())

	slog.Info("transaction scored",
		"tx_id", sctx.TransactionID,
		"user_id", sctx.UserID,
		"score", sctx.CompositeScore,
		"tier", sctx.RiskTier,
		"version", version,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return sctx, nil
}

// GetScore returns an archived scoring result.
func (s *Scorer) GetScore(ctx context.Context, transactionID string) (*domain.StoredScore, error) {
	if s.scores == nil {
		return nil, domain.ErrNotFound
	}
	return s.scores.GetScore(ctx, transactionID)
}

// Reload fans a new fraud configuration out to every stage that holds
// thresholds.
func (s *Scorer) Reload(cfg domain.FraudConfig) {
	s.engine.Reload(cfg)
	s.computer.UpdateConfig(cfg.Features)
	s.hybrid.UpdateConfig(cfg.Hybrid)
	if u, ok := s.alerter.(interface{ UpdateConfig(domain.AlertConfig) }); ok {
		u.UpdateConfig(cfg.Alerting)
	}
}

func (s *Scorer) archived(ctx context.Context, transactionID string) *domain.ScoringContext {
	if s.scores == nil {
		return nil
	}
	stored, err := s.scores.GetScore(ctx, transactionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("score lookup failed", "tx_id", transactionID, "error", err)
		}
		return nil
	}
	return stored.Result
}

func (s *Scorer) route(ctx context.Context, userID string, feats map[string]float64) domain.RoutingDecision {
	if s.router == nil {
		return domain.RoutingDecision{UserID: userID, Variant: domain.VariantNone, Timestamp: time.Now().UTC()}
	}
	decision := s.router.Route(ctx, userID, feats)
	modelPredictions.WithLabelValues(string(decision.Variant)).Inc()
	return decision
}

func (s *Scorer) raiseAlert(ctx context.Context, sctx *domain.ScoringContext, req *domain.ScoreRequest) {
	if s.alerter == nil {
		return
	}
	alert, err := s.alerter.MaybeAlert(ctx, sctx, req)
	if err != nil {
		slog.Error("alert creation failed", "tx_id", sctx.TransactionID, "error", err)
		return
	}
	if alert != nil {
		alertsTotal.WithLabelValues(string(alert.Severity)).Inc()
		sctx.Metadata["alert_id"] = alert.ID
	}
}

func (s *Scorer) persistScore(ctx context.Context, sctx *domain.ScoringContext) {
	if s.scores == nil {
		return
	}
	stored := &domain.StoredScore{
		TransactionID: sctx.TransactionID,
		UserID:        sctx.UserID,
		Result:        sctx,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.scores.SaveScore(ctx, stored); err != nil {
		slog.Error("score archival failed", "tx_id", sctx.TransactionID, "error", err)
	}
}

// recordEvent appends the scored transaction to the event store so it
// feeds future feature computations.
func (s *Scorer) recordEvent(ctx context.Context, req *domain.ScoreRequest) {
	if s.events == nil {
		return
	}
	event := &domain.Event{
		ID:          req.TransactionID,
		Type:        domain.EventTransactionInitiated,
		UserID:      req.UserID,
		Amount:      req.AmountValue(),
		Currency:    req.Currency,
		DeviceID:    req.DeviceID,
		RecipientID: req.RecipientID,
		Timestamp:   req.InitiatedAt,
	}
	if req.Location != nil {
		event.Country = req.Location.Country
		event.City = req.Location.City
		event.Latitude = req.Location.Latitude
		event.Longitude = req.Location.Longitude
	}
	if err := s.events.SaveEvent(ctx, event); err != nil {
		slog.Error("event write failed", "tx_id", req.TransactionID, "error", err)
	}
}

func (s *Scorer) publishDecision(ctx context.Context, sctx *domain.ScoringContext, decision domain.RoutingDecision, ruleScore float64, version string, feats map[string]float64) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(&domain.DecisionEvent{
		TransactionID:  sctx.TransactionID,
		UserID:         sctx.UserID,
		FinalScore:     sctx.CompositeScore,
		RuleScore:      ruleScore,
		RiskTier:       sctx.RiskTier,
		Version:        version,
		Variant:        decision.Variant,
		ModelLatencyMs: decision.LatencyMs,
		Features:       feats,
		ScoredAt:       sctx.ScoredAt,
	})
	if err != nil {
		slog.Error("decision marshal failed", "tx_id", sctx.TransactionID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, domain.TopicFraudDecision, payload); err != nil {
		slog.Error("decision publish failed",
			"tx_id", sctx.TransactionID,
			"topic", domain.TopicFraudDecision,
			"error", err,
		)
	}
}
