// Package features computes per-request feature vectors from the
// historical event store.
package features

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// Computer derives a FeatureVector for one scoring request.
// Every store query is independent, read-only and bounded by the
// configured timeout; a failed or slow query degrades to the zero
// value for that feature instead of failing the call.
type Computer struct {
	mu    sync.RWMutex
	store domain.EventStore
	cfg   domain.FeatureConfig
}

// NewComputer creates a feature computer over the given store.
func NewComputer(store domain.EventStore, cfg domain.FeatureConfig) *Computer {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 500 * time.Millisecond
	}
	return &Computer{store: store, cfg: cfg}
}

// UpdateConfig swaps the feature settings. Safe during scoring.
func (c *Computer) UpdateConfig(cfg domain.FeatureConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.QueryTimeout > 0 {
		c.cfg = cfg
	}
}

func (c *Computer) timeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.QueryTimeout
}

// Compute builds the feature vector for a request. Cold-start users
// (no history) produce the zero vector; Compute never fails.
func (c *Computer) Compute(ctx context.Context, req *domain.ScoreRequest) *domain.FeatureVector {
	now := req.InitiatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	fv := &domain.FeatureVector{}

	fv.VelocityCount1h = c.count(ctx, req.UserID, domain.Window(now, time.Hour), "velocity_count_1h")
	fv.VelocityCount24h = c.count(ctx, req.UserID, domain.Window(now, 24*time.Hour), "velocity_count_24h")
	fv.VelocityAmount1h = c.sum(ctx, req.UserID, domain.Window(now, time.Hour), "velocity_amount_1h")
	fv.VelocityAmount24h = c.sum(ctx, req.UserID, domain.Window(now, 24*time.Hour), "velocity_amount_24h")

	week := domain.Window(now, 7*24*time.Hour)
	fv.UniqueDevices7d = c.distinctCount(ctx, req.UserID, "device_id", week, "unique_devices_7d")
	fv.UniqueCountries7d = c.distinctCount(ctx, req.UserID, "country", week, "unique_countries_7d")

	if req.DeviceID != "" {
		fv.IsNewDevice = c.firstSeen(ctx, req.UserID, "device_id", req.DeviceID, "is_new_device")
	}
	if req.Location != nil && req.Location.Country != "" {
		fv.IsNewCountry = c.firstSeen(ctx, req.UserID, "country", req.Location.Country, "is_new_country")
	}

	if last := c.lastEvent(ctx, req.UserID, now); last != nil {
		fv.LastEventAt = last.Timestamp
		fv.TimeSinceLastEventSecs = now.Sub(last.Timestamp).Seconds()
		if last.Latitude != 0 || last.Longitude != 0 {
			fv.LastLocation = &domain.GeoLocation{
				Latitude:  last.Latitude,
				Longitude: last.Longitude,
				Country:   last.Country,
				City:      last.City,
			}
		}
	}

	fv.AvgAmount30d, fv.StdDevAmount30d = c.amountBaseline(ctx, req.UserID, domain.Window(now, 30*24*time.Hour))

	return fv
}

func (c *Computer) count(ctx context.Context, userID string, w domain.TimeRange, feature string) int64 {
	qctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	n, err := c.store.Count(qctx, domain.EventTransactionInitiated, userID, w)
	if err != nil {
		c.degrade(feature, userID, err)
		return 0
	}
	return n
}

func (c *Computer) sum(ctx context.Context, userID string, w domain.TimeRange, feature string) float64 {
	qctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	total, err := c.store.Sum(qctx, domain.EventTransactionInitiated, userID, "amount", w)
	if err != nil {
		c.degrade(feature, userID, err)
		return 0
	}
	return total
}

func (c *Computer) distinctCount(ctx context.Context, userID, field string, w domain.TimeRange, feature string) int {
	qctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	values, err := c.store.Distinct(qctx, domain.EventTransactionInitiated, userID, field, w)
	if err != nil {
		c.degrade(feature, userID, err)
		return 0
	}
	return len(values)
}

func (c *Computer) firstSeen(ctx context.Context, userID, field, value, feature string) bool {
	qctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	first, err := c.store.FirstOccurrence(qctx, domain.EventTransactionInitiated, userID, field, value)
	if err != nil {
		c.degrade(feature, userID, err)
		return false
	}
	return first
}

func (c *Computer) lastEvent(ctx context.Context, userID string, before time.Time) *domain.Event {
	qctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	last, err := c.store.LastEvent(qctx, domain.EventTransactionInitiated, userID, before)
	if err != nil {
		c.degrade("last_event", userID, err)
		return nil
	}
	return last
}

func (c *Computer) amountBaseline(ctx context.Context, userID string, w domain.TimeRange) (avg, stddev float64) {
	qctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	events, err := c.store.ListEvents(qctx, domain.EventTransactionInitiated, userID, w)
	if err != nil {
		c.degrade("amount_baseline_30d", userID, err)
		return 0, 0
	}
	if len(events) == 0 {
		return 0, 0
	}

	var total float64
	for _, e := range events {
		total += e.Amount
	}
	avg = total / float64(len(events))

	var sq float64
	for _, e := range events {
		d := e.Amount - avg
		sq += d * d
	}
	stddev = math.Sqrt(sq / float64(len(events)))

	return avg, stddev
}

func (c *Computer) degrade(feature, userID string, err error) {
	slog.Warn("feature query degraded to default",
		"feature", feature,
		"user_id", userID,
		"error", err,
	)
}
