package rules

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// impossibleTravelRule triggers when the implied speed between the
// previous and current location exceeds the configured maximum.
type impossibleTravelRule struct {
	baseRule
	maxSpeedKmh float64
}

func newImpossibleTravelRule(cfg domain.GeoConfig) *impossibleTravelRule {
	return &impossibleTravelRule{
		baseRule:    baseRule{id: "impossible_travel", category: domain.CategoryGeo, weight: 1.0},
		maxSpeedKmh: cfg.MaxSpeedKmh,
	}
}

func (r *impossibleTravelRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	if req.Location == nil || features.LastLocation == nil || features.TimeSinceLastEventSecs <= 0 {
		return r.pass(), nil
	}

	distance := haversineKm(
		features.LastLocation.Latitude, features.LastLocation.Longitude,
		req.Location.Latitude, req.Location.Longitude,
	)
	hours := features.TimeSinceLastEventSecs / 3600
	speed := distance / hours

	if r.maxSpeedKmh <= 0 || speed <= r.maxSpeedKmh {
		return r.pass(), nil
	}

	ratio := min(speed/r.maxSpeedKmh, 5.0)
	score := min(0.5+(ratio-1)*0.125, 1.0)

	return r.hit(score, domain.SeverityCritical, 0.95, map[string]any{
		"distance_km": distance,
		"elapsed_s":   features.TimeSinceLastEventSecs,
		"speed_kmh":   speed,
		"max_kmh":     r.maxSpeedKmh,
	}, fmt.Sprintf("implied travel speed %.0f km/h over %.0f km", speed, distance)), nil
}

// newGeographyRule triggers on a first-ever-seen country.
type newGeographyRule struct {
	baseRule
}

func newNewGeographyRule() *newGeographyRule {
	return &newGeographyRule{baseRule{id: "new_geography", category: domain.CategoryGeo, weight: 1.0}}
}

func (r *newGeographyRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	if req.Location == nil || req.Location.Country == "" || !features.IsNewCountry {
		return r.pass(), nil
	}

	return r.hit(0.4, domain.SeverityMedium, 0.70, map[string]any{
		"country": req.Location.Country,
	}, fmt.Sprintf("first transaction from %s", req.Location.Country)), nil
}

// newDeviceRule triggers on a first-ever-seen device.
type newDeviceRule struct {
	baseRule
}

func newNewDeviceRule() *newDeviceRule {
	return &newDeviceRule{baseRule{id: "new_device", category: domain.CategoryGeo, weight: 1.0}}
}

func (r *newDeviceRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	if req.DeviceID == "" || !features.IsNewDevice {
		return r.pass(), nil
	}

	return r.hit(0.3, domain.SeverityLow, 0.60, map[string]any{
		"device_id": req.DeviceID,
	}, "first transaction from this device"), nil
}

// thirdCountryRule triggers when a user with home-country history
// transacts from outside the home country set. Users whose entire
// history is already abroad do not trigger it.
type thirdCountryRule struct {
	baseRule
	store         domain.EventStore
	homeCountries []string
}

func newThirdCountryRule(store domain.EventStore, cfg domain.GeoConfig) *thirdCountryRule {
	return &thirdCountryRule{
		baseRule:      baseRule{id: "third_country_sender", category: domain.CategoryGeo, weight: 1.0},
		store:         store,
		homeCountries: cfg.HomeCountries,
	}
}

func (r *thirdCountryRule) Evaluate(ctx context.Context, req *domain.ScoreRequest, features *domain.FeatureVector) (domain.RuleResult, error) {
	if req.Location == nil || req.Location.Country == "" || len(r.homeCountries) == 0 {
		return r.pass(), nil
	}
	if slices.Contains(r.homeCountries, req.Location.Country) {
		return r.pass(), nil
	}

	seen, err := r.store.Distinct(ctx, domain.EventTransactionInitiated, req.UserID, "country",
		domain.TimeRange{Start: time.Time{}, End: req.InitiatedAt})
	if err != nil {
		return r.pass(), err
	}

	hasHomeHistory := false
	for _, c := range seen {
		if slices.Contains(r.homeCountries, c) {
			hasHomeHistory = true
			break
		}
	}
	if !hasHomeHistory {
		return r.pass(), nil
	}

	return r.hit(0.5, domain.SeverityHigh, 0.80, map[string]any{
		"country":        req.Location.Country,
		"home_countries": r.homeCountries,
	}, fmt.Sprintf("transaction from %s outside home countries", req.Location.Country)), nil
}
