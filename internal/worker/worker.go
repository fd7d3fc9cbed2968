// Package worker provides the decision observer that feeds model
// health signals off the scoring path.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
	"github.com/lakay-finance/kestrel/internal/serving"
)

// Observer consumes decision events from the bus and feeds the drift
// detector and the health monitor. Drift checks and score-shift math
// stay off the request path this way; scoring only pays for a publish.
type Observer struct {
	bus     domain.EventBus
	drift   *serving.DriftDetector
	monitor *serving.Monitor

	sub       domain.Subscription
	processed atomic.Int64
	dropped   atomic.Int64
}

// NewObserver creates an observer. Either drift or monitor may be nil
// when that half of the pipeline is disabled.
func NewObserver(bus domain.EventBus, drift *serving.DriftDetector, monitor *serving.Monitor) *Observer {
	return &Observer{
		bus:     bus,
		drift:   drift,
		monitor: monitor,
	}
}

// Start subscribes to the decision topic.
func (o *Observer) Start(ctx context.Context) error {
	sub, err := o.bus.Subscribe(ctx, domain.TopicFraudDecision, o.handleDecision)
	if err != nil {
		return err
	}
	o.sub = sub

	slog.Info("decision observer started",
		"topic", domain.TopicFraudDecision,
	)
	return nil
}

// handleDecision processes one decision event.
func (o *Observer) handleDecision(ctx context.Context, msg *domain.Message) error {
	var ev domain.DecisionEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		o.dropped.Add(1)
		slog.Error("failed to parse decision event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if o.drift != nil {
		for name, value := range ev.Features {
			result := o.drift.Record(name, value)
			if result == nil {
				continue
			}
			if result.Status == serving.DriftModerate || result.Status == serving.DriftCritical {
				o.publishDrift(ctx, result)
			}
		}
	}

	// Latency and score shift only mean something when a model ran.
	if o.monitor != nil && ev.Variant != domain.VariantNone {
		latency := time.Duration(ev.ModelLatencyMs * float64(time.Millisecond))
		o.monitor.RecordPrediction(ev.FinalScore, latency)
	}

	o.processed.Add(1)
	return nil
}

// publishDrift emits a drift check result to the drift topic.
// Best-effort: a failed publish never fails decision handling.
func (o *Observer) publishDrift(ctx context.Context, result *serving.FeatureDrift) {
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, domain.TopicModelDrift, payload); err != nil {
		slog.Error("failed to publish drift result",
			"feature", result.Feature,
			"error", err,
		)
	}
}

// Stop unsubscribes from the decision topic.
func (o *Observer) Stop() error {
	if o.sub == nil {
		return nil
	}
	err := o.sub.Unsubscribe()
	o.sub = nil

	slog.Info("decision observer stopped",
		"processed", o.processed.Load(),
		"dropped", o.dropped.Load(),
	)
	return err
}

// Stats reports observer counters.
type Stats struct {
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
}

// GetStats returns current observer statistics.
func (o *Observer) GetStats() Stats {
	return Stats{
		Processed: o.processed.Load(),
		Dropped:   o.dropped.Load(),
	}
}
