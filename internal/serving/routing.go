package serving

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// variantMetrics is a bounded ring of recent observations for one
// routed variant.
type variantMetrics struct {
	mu        sync.Mutex
	scores    []float64
	latencies []time.Duration
	requests  int64
	failures  int64
	maxSize   int
}

func newVariantMetrics(maxSize int) *variantMetrics {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &variantMetrics{maxSize: maxSize}
}

func (m *variantMetrics) record(score float64, latency time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	if !ok {
		m.failures++
		return
	}
	m.scores = append(m.scores, score)
	m.latencies = append(m.latencies, latency)
	if len(m.scores) > m.maxSize {
		m.scores = m.scores[len(m.scores)-m.maxSize:]
		m.latencies = m.latencies[len(m.latencies)-m.maxSize:]
	}
}

func (m *variantMetrics) summary() VariantSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := VariantSummary{
		Requests:     m.requests,
		Failures:     m.failures,
		Observations: len(m.scores),
	}
	if len(m.scores) > 0 {
		s.MeanScore = mean(m.scores)
		latMs := make([]float64, len(m.latencies))
		for i, l := range m.latencies {
			latMs[i] = float64(l.Microseconds()) / 1000.0
		}
		s.P95LatencyMs = percentile(latMs, 95)
	}
	return s
}

// VariantSummary aggregates a variant's recent serving behavior.
type VariantSummary struct {
	Requests     int64   `json:"requests"`
	Failures     int64   `json:"failures"`
	Observations int     `json:"observations"`
	MeanScore    float64 `json:"meanScore"`
	P95LatencyMs float64 `json:"p95LatencyMs"`
}

// RoutingSummary is the full routing surface state.
type RoutingSummary struct {
	ChampionPct   int            `json:"championPct"`
	ChallengerPct int            `json:"challengerPct"`
	Champion      VariantSummary `json:"champion"`
	Challenger    VariantSummary `json:"challenger"`
}

// Router splits traffic between a champion and an optional challenger
// model. Assignment is deterministic per user so a user always sees
// the same variant at a given split.
type Router struct {
	mu         sync.RWMutex
	champion   *ModelServer
	challenger *ModelServer
	cfg        domain.RoutingConfig

	championMetrics   *variantMetrics
	challengerMetrics *variantMetrics
}

// NewRouter creates a router. The challenger may be nil; all traffic
// then goes to the champion.
func NewRouter(champion, challenger *ModelServer, cfg domain.RoutingConfig) *Router {
	return &Router{
		champion:          champion,
		challenger:        challenger,
		cfg:               cfg,
		championMetrics:   newVariantMetrics(cfg.MetricsBufferSize),
		challengerMetrics: newVariantMetrics(cfg.MetricsBufferSize),
	}
}

// assign buckets a user into [0, 100) from a hash of the user id.
func assign(userID string) int {
	sum := sha256.Sum256([]byte(userID))
	return int(binary.BigEndian.Uint64(sum[:8]) % 100)
}

// Route picks a variant for the user, runs its prediction and records
// the outcome. A challenger that fails or has no model falls back to
// the champion; a champion failure degrades to no prediction.
func (r *Router) Route(ctx context.Context, userID string, feats map[string]float64) domain.RoutingDecision {
	r.mu.RLock()
	challengerPct := r.cfg.ChallengerPct
	r.mu.RUnlock()

	decision := domain.RoutingDecision{
		UserID:    userID,
		Variant:   domain.VariantChampion,
		Timestamp: time.Now().UTC(),
	}

	if challengerPct > 0 && assign(userID) < challengerPct {
		if r.challenger != nil && r.challenger.Loaded() {
			score, latency, ok := r.challenger.Predict(ctx, feats)
			r.challengerMetrics.record(score, latency, ok)
			if ok {
				decision.Variant = domain.VariantChallenger
				decision.ModelName = r.challenger.name
				decision.ModelVersion = r.challenger.Version()
				decision.Prediction = &score
				decision.LatencyMs = float64(latency.Microseconds()) / 1000.0
				return decision
			}
		}
		// Assigned to the challenger slice with no usable challenger.
		decision.Fallback = true
	}

	if r.champion == nil || !r.champion.Loaded() {
		decision.Variant = domain.VariantNone
		return decision
	}

	score, latency, ok := r.champion.Predict(ctx, feats)
	r.championMetrics.record(score, latency, ok)
	if !ok {
		decision.Variant = domain.VariantNone
		decision.Fallback = true
		return decision
	}

	decision.ModelName = r.champion.name
	decision.ModelVersion = r.champion.Version()
	decision.Prediction = &score
	decision.LatencyMs = float64(latency.Microseconds()) / 1000.0
	return decision
}

// UpdateSplit changes the traffic split. The percentages must be
// non-negative and sum to 100.
func (r *Router) UpdateSplit(championPct, challengerPct int) error {
	if championPct < 0 || challengerPct < 0 || championPct+challengerPct != 100 {
		return fmt.Errorf("%w: split %d/%d must sum to 100", domain.ErrInvalidInput, championPct, challengerPct)
	}

	r.mu.Lock()
	r.cfg.ChampionPct = championPct
	r.cfg.ChallengerPct = challengerPct
	r.mu.Unlock()

	slog.Info("routing split updated",
		"champion_pct", championPct,
		"challenger_pct", challengerPct,
	)
	return nil
}

// Summary reports the current split and per-variant metrics.
func (r *Router) Summary() RoutingSummary {
	r.mu.RLock()
	cfg := r.cfg
	r.mu.RUnlock()

	return RoutingSummary{
		ChampionPct:   cfg.ChampionPct,
		ChallengerPct: cfg.ChallengerPct,
		Champion:      r.championMetrics.summary(),
		Challenger:    r.challengerMetrics.summary(),
	}
}

// ShouldPromote reports whether the challenger has earned promotion.
// Automatic promotion is intentionally disabled: the decision needs
// labeled outcomes, which arrive days after scoring. The method only
// confirms enough data has accumulated for a human review.
func (r *Router) ShouldPromote() (bool, string) {
	r.mu.RLock()
	minObs := r.cfg.MinObservations
	r.mu.RUnlock()
	if minObs <= 0 {
		minObs = 1000
	}

	s := r.challengerMetrics.summary()
	if s.Observations < minObs {
		return false, fmt.Sprintf("insufficient challenger observations: %d of %d", s.Observations, minObs)
	}
	return false, "promotion requires manual review of labeled outcomes"
}
