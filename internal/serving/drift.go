package serving

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// DriftStatus classifies a feature's distribution shift.
type DriftStatus string

const (
	DriftInsufficientData DriftStatus = "insufficient_data"
	DriftNoReference      DriftStatus = "no_reference"
	DriftOK               DriftStatus = "ok"
	DriftModerate         DriftStatus = "moderate_drift"
	DriftCritical         DriftStatus = "critical_drift"
)

// FeatureDrift is one feature's drift check result.
type FeatureDrift struct {
	Feature      string      `json:"feature"`
	PSI          float64     `json:"psi"`
	Status       DriftStatus `json:"status"`
	Observations int         `json:"observations"`
	CheckedAt    time.Time   `json:"checkedAt"`
}

// DriftReport is the full drift surface across tracked features.
type DriftReport struct {
	Features  map[string]FeatureDrift `json:"features"`
	Worst     DriftStatus             `json:"worst"`
	CheckedAt time.Time               `json:"checkedAt"`
}

// featureWindow tracks one feature: reference bin proportions fitted
// once, plus a bounded window of live observations.
type featureWindow struct {
	edges    []float64 // len bins+1, equal width over the reference range
	refProps []float64

	observed   []float64
	sinceCheck int

	last FeatureDrift
}

// DriftDetector compares live feature distributions against a fitted
// reference using the Population Stability Index. Checks run inline
// every CheckEvery observations; callers on the request path should
// feed it from an observer, not from scoring itself.
type DriftDetector struct {
	mu       sync.Mutex
	cfg      domain.DriftConfig
	features map[string]*featureWindow
}

// NewDriftDetector creates a detector with the given thresholds.
func NewDriftDetector(cfg domain.DriftConfig) *DriftDetector {
	if cfg.Bins <= 0 {
		cfg.Bins = 10
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-6
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = 500
	}
	if cfg.MaxObservations <= 0 {
		cfg.MaxObservations = 50000
	}
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = 100
	}
	return &DriftDetector{
		cfg:      cfg,
		features: make(map[string]*featureWindow),
	}
}

// SetReference fits equal-width bins over the reference sample and
// stores its bin proportions. Replaces any previous reference and
// clears the live window.
func (d *DriftDetector) SetReference(feature string, values []float64) {
	if len(values) == 0 {
		return
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		// Degenerate reference; widen so binning stays defined.
		hi = lo + 1
	}

	edges := make([]float64, d.cfg.Bins+1)
	width := (hi - lo) / float64(d.cfg.Bins)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.features[feature] = &featureWindow{
		edges:    edges,
		refProps: proportions(values, edges),
		last: FeatureDrift{
			Feature: feature,
			Status:  DriftInsufficientData,
		},
	}

	slog.Info("drift reference fitted",
		"feature", feature,
		"samples", len(values),
		"bins", d.cfg.Bins,
	)
}

// Record adds a live observation. Every CheckEvery observations the
// feature is re-checked; the check result is returned when one ran,
// nil otherwise.
func (d *DriftDetector) Record(feature string, value float64) *FeatureDrift {
	d.mu.Lock()
	defer d.mu.Unlock()

	fw, ok := d.features[feature]
	if !ok {
		fw = &featureWindow{last: FeatureDrift{Feature: feature, Status: DriftNoReference}}
		d.features[feature] = fw
	}

	fw.observed = append(fw.observed, value)
	if len(fw.observed) > d.cfg.MaxObservations {
		fw.observed = fw.observed[len(fw.observed)-d.cfg.MaxObservations:]
	}

	fw.sinceCheck++
	if fw.sinceCheck < d.cfg.CheckEvery {
		return nil
	}
	fw.sinceCheck = 0

	result := d.check(feature, fw)
	return &result
}

// CheckDrift runs an immediate check for one feature.
func (d *DriftDetector) CheckDrift(feature string) FeatureDrift {
	d.mu.Lock()
	defer d.mu.Unlock()

	fw, ok := d.features[feature]
	if !ok {
		return FeatureDrift{Feature: feature, Status: DriftNoReference, CheckedAt: time.Now().UTC()}
	}
	return d.check(feature, fw)
}

// Report checks every tracked feature and summarizes the worst status.
func (d *DriftDetector) Report() DriftReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	report := DriftReport{
		Features:  make(map[string]FeatureDrift, len(d.features)),
		Worst:     DriftOK,
		CheckedAt: time.Now().UTC(),
	}
	if len(d.features) == 0 {
		report.Worst = DriftInsufficientData
		return report
	}

	for name, fw := range d.features {
		result := d.check(name, fw)
		report.Features[name] = result
		if driftRank(result.Status) > driftRank(report.Worst) {
			report.Worst = result.Status
		}
	}
	return report
}

// check must be called with d.mu held.
func (d *DriftDetector) check(feature string, fw *featureWindow) FeatureDrift {
	result := FeatureDrift{
		Feature:      feature,
		Observations: len(fw.observed),
		CheckedAt:    time.Now().UTC(),
	}

	switch {
	case fw.edges == nil:
		result.Status = DriftNoReference
	case len(fw.observed) < d.cfg.MinObservations:
		result.Status = DriftInsufficientData
	default:
		psi := d.psi(fw.refProps, proportions(fw.observed, fw.edges))
		result.PSI = psi
		switch {
		case psi >= d.cfg.CriticalPSI:
			result.Status = DriftCritical
		case psi >= d.cfg.WarningPSI:
			result.Status = DriftModerate
		default:
			result.Status = DriftOK
		}
	}

	if result.Status == DriftModerate || result.Status == DriftCritical {
		slog.Warn("feature drift detected",
			"feature", feature,
			"psi", result.PSI,
			"status", result.Status,
		)
	}

	fw.last = result
	return result
}

// psi computes the Population Stability Index between two proportion
// vectors, flooring each bin at epsilon to keep the log defined.
func (d *DriftDetector) psi(ref, obs []float64) float64 {
	var psi float64
	for i := range ref {
		r := math.Max(ref[i], d.cfg.Epsilon)
		o := math.Max(obs[i], d.cfg.Epsilon)
		psi += (o - r) * math.Log(o/r)
	}
	return psi
}

// proportions bins values into the given edges. Values outside the
// reference range clamp into the boundary bins.
func proportions(values []float64, edges []float64) []float64 {
	bins := len(edges) - 1
	counts := make([]float64, bins)
	for _, v := range values {
		idx := 0
		for idx < bins-1 && v >= edges[idx+1] {
			idx++
		}
		counts[idx]++
	}
	props := make([]float64, bins)
	for i, c := range counts {
		props[i] = c / float64(len(values))
	}
	return props
}

func driftRank(s DriftStatus) int {
	switch s {
	case DriftCritical:
		return 4
	case DriftModerate:
		return 3
	case DriftNoReference:
		return 2
	case DriftInsufficientData:
		return 1
	default:
		return 0
	}
}
