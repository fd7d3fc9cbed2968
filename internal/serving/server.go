// Package serving is the model-serving control plane: model loading,
// champion/challenger routing, drift detection and health monitoring.
package serving

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// loadedModel pairs a model handle with its registry metadata.
type loadedModel struct {
	model    domain.Model
	metadata *domain.ModelMetadata
	loadedAt time.Time
}

// loadFailure records the most recent failed load attempt.
type loadFailure struct {
	err error
	at  time.Time
}

// ModelServer holds the currently loaded model for one variant.
// The model is swapped atomically on reload; predictions in flight
// keep the handle they started with. A server with no loaded model
// answers every Predict with ok=false.
type ModelServer struct {
	registry domain.ModelRegistry
	name     string
	stage    string
	timeout  time.Duration

	current atomic.Pointer[loadedModel]
	loadErr atomic.Pointer[loadFailure]
}

// NewModelServer creates a server for one model name and stage.
// The model is not loaded until Load is called.
func NewModelServer(registry domain.ModelRegistry, name, stage string, timeout time.Duration) *ModelServer {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &ModelServer{
		registry: registry,
		name:     name,
		stage:    stage,
		timeout:  timeout,
	}
}

// Load fetches the model from the registry and swaps it in. A failed
// load degrades the server to unloaded and records the error; a model
// version whose registry entry has gone bad must not keep serving.
func (s *ModelServer) Load(ctx context.Context) error {
	if s.registry == nil {
		slog.Warn("model load skipped, no registry configured", "model", s.name)
		return nil
	}

	model, err := s.registry.Load(ctx, s.name, s.stage)
	if err != nil {
		s.current.Store(nil)
		s.loadErr.Store(&loadFailure{err: err, at: time.Now().UTC()})
		slog.Error("model load failed, server unloaded",
			"model", s.name,
			"stage", s.stage,
			"error", err,
		)
		return err
	}

	metadata, err := s.registry.Metadata(ctx, s.name, s.stage)
	if err != nil {
		slog.Warn("model metadata unavailable", "model", s.name, "error", err)
		metadata = &domain.ModelMetadata{Name: s.name, Version: model.Version(), Stage: s.stage}
	}

	s.current.Store(&loadedModel{
		model:    model,
		metadata: metadata,
		loadedAt: time.Now().UTC(),
	})
	s.loadErr.Store(nil)

	slog.Info("model loaded",
		"model", s.name,
		"version", model.Version(),
		"stage", s.stage,
	)
	return nil
}

// Loaded reports whether a model is currently serving.
func (s *ModelServer) Loaded() bool {
	return s.current.Load() != nil
}

// LoadError returns the error from the most recent failed load, or nil
// if the last load succeeded.
func (s *ModelServer) LoadError() error {
	if f := s.loadErr.Load(); f != nil {
		return f.err
	}
	return nil
}

// Metadata returns the loaded model's registry metadata, or nil.
func (s *ModelServer) Metadata() *domain.ModelMetadata {
	if lm := s.current.Load(); lm != nil {
		return lm.metadata
	}
	return nil
}

// Version returns the loaded model's version, or empty.
func (s *ModelServer) Version() string {
	if lm := s.current.Load(); lm != nil {
		return lm.model.Version()
	}
	return ""
}

// Predict runs the loaded model over the named features. The score is
// clamped to [0, 1]. ok is false when no model is loaded, the timeout
// elapsed, or the model itself errored; prediction failures never
// propagate to the caller.
func (s *ModelServer) Predict(ctx context.Context, feats map[string]float64) (score float64, latency time.Duration, ok bool) {
	lm := s.current.Load()
	if lm == nil {
		return 0, 0, false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	names := lm.model.FeatureNames()
	values := make([]float64, len(names))
	for i, name := range names {
		values[i] = feats[name] // missing features default to zero
	}

	start := time.Now()

	type prediction struct {
		score float64
		err   error
	}
	done := make(chan prediction, 1)
	go func() {
		score, err := lm.model.Predict(values)
		done <- prediction{score: score, err: err}
	}()

	select {
	case <-ctx.Done():
		slog.Warn("model prediction timed out",
			"model", s.name,
			"timeout", s.timeout,
		)
		return 0, time.Since(start), false
	case p := <-done:
		latency = time.Since(start)
		if p.err != nil {
			slog.Warn("model prediction failed", "model", s.name, "error", p.err)
			return 0, latency, false
		}
		return clamp01(p.score), latency, true
	}
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
