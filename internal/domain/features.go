package domain

import "time"

// FeatureVector holds the per-request features computed from the
// historical event store. Computed fresh for every scoring call and
// never persisted; an empty history yields the zero value.
type FeatureVector struct {
	VelocityCount1h   int64   `json:"velocityCount1h"`
	VelocityCount24h  int64   `json:"velocityCount24h"`
	VelocityAmount1h  float64 `json:"velocityAmount1h"`
	VelocityAmount24h float64 `json:"velocityAmount24h"`

	UniqueDevices7d   int  `json:"uniqueDevices7d"`
	UniqueCountries7d int  `json:"uniqueCountries7d"`
	IsNewDevice       bool `json:"isNewDevice"`
	IsNewCountry      bool `json:"isNewCountry"`

	// LastLocation is the most recent prior geo point, nil when the
	// user has no located history.
	LastLocation *GeoLocation `json:"lastLocation,omitempty"`

	// LastEventAt is zero when the user has no prior events.
	LastEventAt            time.Time `json:"lastEventAt,omitempty"`
	TimeSinceLastEventSecs float64   `json:"timeSinceLastEventSecs"`

	AvgAmount30d    float64 `json:"avgAmount30d"`
	StdDevAmount30d float64 `json:"stddevAmount30d"`
}

// Map flattens the numeric features for model inference and drift
// tracking. Keys are stable; model feature ordering is resolved by
// name against this map.
func (f *FeatureVector) Map() map[string]float64 {
	m := map[string]float64{
		"velocity_count_1h":     float64(f.VelocityCount1h),
		"velocity_count_24h":    float64(f.VelocityCount24h),
		"velocity_amount_1h":    f.VelocityAmount1h,
		"velocity_amount_24h":   f.VelocityAmount24h,
		"unique_devices_7d":     float64(f.UniqueDevices7d),
		"unique_countries_7d":   float64(f.UniqueCountries7d),
		"is_new_device":         0,
		"is_new_country":        0,
		"time_since_last_event": f.TimeSinceLastEventSecs,
		"avg_amount_30d":        f.AvgAmount30d,
		"stddev_amount_30d":     f.StdDevAmount30d,
	}
	if f.IsNewDevice {
		m["is_new_device"] = 1
	}
	if f.IsNewCountry {
		m["is_new_country"] = 1
	}
	return m
}
