package serving

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// HealthStatus classifies the serving plane's condition.
type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthUnknown  HealthStatus = "unknown"
)

// HealthAlert records one detected serving anomaly.
type HealthAlert struct {
	Kind      string       `json:"kind"`
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message"`
	CreatedAt time.Time    `json:"createdAt"`
}

// HealthReport is the monitoring surface snapshot.
type HealthReport struct {
	Status          HealthStatus  `json:"status"`
	Observations    int           `json:"observations"`
	WindowCount     int           `json:"windowCount"`
	MeanScore       float64       `json:"meanScore"`
	BaselineMean    float64       `json:"baselineMean"`
	BaselineP50     float64       `json:"baselineP50"`
	BaselineP95     float64       `json:"baselineP95"`
	BaselineP99     float64       `json:"baselineP99"`
	BaselineVersion string        `json:"baselineVersion,omitempty"`
	ScoreShiftZ     float64       `json:"scoreShiftZ"`
	P95LatencyMs    float64       `json:"p95LatencyMs"`
	P99LatencyMs    float64       `json:"p99LatencyMs"`
	Alerts          []HealthAlert `json:"alerts"`
	CheckedAt       time.Time     `json:"checkedAt"`
}

type observation struct {
	score     float64
	latencyMs float64
	at        time.Time
}

// Monitor watches prediction scores and latencies for shifts against
// a fitted baseline and latency SLA breaches. Checks run every
// CheckEvery observations over a one-hour sliding window.
type Monitor struct {
	mu  sync.Mutex
	cfg domain.MonitoringConfig

	observations []observation
	sinceCheck   int

	baselineMean    float64
	baselineStdDev  float64
	baselineP50     float64
	baselineP95     float64
	baselineP99     float64
	baselineVersion string
	hasBaseline     bool

	alerts []HealthAlert
	status HealthStatus
}

// NewMonitor creates a monitor with the given thresholds.
func NewMonitor(cfg domain.MonitoringConfig) *Monitor {
	if cfg.MaxObservations <= 0 {
		cfg.MaxObservations = 100000
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = 100
	}
	if cfg.MinWindowCount <= 0 {
		cfg.MinWindowCount = 10
	}
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = 1000
	}
	if cfg.ReportAlerts <= 0 {
		cfg.ReportAlerts = 10
	}
	return &Monitor{cfg: cfg, status: HealthUnknown}
}

// SetBaseline fits the expected score distribution from a sample,
// typically the model's validation-set scores, and tags it with the
// model version it was fitted against. The shift check stays disabled
// until a sample with spread is provided.
func (m *Monitor) SetBaseline(scores []float64, version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baselineMean = mean(scores)
	m.baselineStdDev = stddev(scores)
	m.baselineP50 = percentile(scores, 50)
	m.baselineP95 = percentile(scores, 95)
	m.baselineP99 = percentile(scores, 99)
	m.baselineVersion = version
	m.hasBaseline = m.baselineStdDev > 0
	slog.Info("monitoring baseline set",
		"version", version,
		"sample_size", len(scores),
		"mean", m.baselineMean,
		"stddev", m.baselineStdDev,
	)
}

// RecordPrediction feeds one served prediction into the monitor.
func (m *Monitor) RecordPrediction(score float64, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observations = append(m.observations, observation{
		score:     score,
		latencyMs: float64(latency.Microseconds()) / 1000.0,
		at:        time.Now().UTC(),
	})
	if len(m.observations) > m.cfg.MaxObservations {
		m.observations = m.observations[len(m.observations)-m.cfg.MaxObservations:]
	}

	m.sinceCheck++
	if m.sinceCheck >= m.cfg.CheckEvery {
		m.sinceCheck = 0
		m.check()
	}
}

// Report returns the current health snapshot with the most recent
// alerts, newest last.
func (m *Monitor) Report() HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := m.window()
	report := HealthReport{
		Status:          m.status,
		Observations:    len(m.observations),
		WindowCount:     len(window),
		BaselineMean:    m.baselineMean,
		BaselineP50:     m.baselineP50,
		BaselineP95:     m.baselineP95,
		BaselineP99:     m.baselineP99,
		BaselineVersion: m.baselineVersion,
		CheckedAt:       time.Now().UTC(),
	}

	if len(window) > 0 {
		scores, latencies := split(window)
		report.MeanScore = mean(scores)
		report.P95LatencyMs = percentile(latencies, 95)
		report.P99LatencyMs = percentile(latencies, 99)
		if m.hasBaseline {
			report.ScoreShiftZ = (report.MeanScore - m.baselineMean) / m.baselineStdDev
		}
	}

	n := min(len(m.alerts), m.cfg.ReportAlerts)
	report.Alerts = append(report.Alerts, m.alerts[len(m.alerts)-n:]...)
	return report
}

// window returns the observations from the last hour. Must be called
// with m.mu held.
func (m *Monitor) window() []observation {
	cutoff := time.Now().UTC().Add(-time.Hour)
	for i, obs := range m.observations {
		if obs.at.After(cutoff) {
			return m.observations[i:]
		}
	}
	return nil
}

// check evaluates score shift and latency SLAs over the sliding
// window. Must be called with m.mu held.
func (m *Monitor) check() {
	window := m.window()
	if len(window) < m.cfg.MinWindowCount {
		return
	}

	scores, latencies := split(window)
	status := HealthOK

	if m.hasBaseline {
		z := (mean(scores) - m.baselineMean) / m.baselineStdDev
		shift := z
		if shift < 0 {
			shift = -shift
		}
		if shift >= m.cfg.ScoreShiftStd {
			s := HealthWarning
			if shift >= 3 {
				s = HealthCritical
			}
			status = worse(status, s)
			m.raise("score_shift", s, fmt.Sprintf("mean score shifted %.2f standard deviations from baseline", z))
		}
	}

	p95 := percentile(latencies, 95)
	if sla := float64(m.cfg.LatencyP95SLA.Microseconds()) / 1000.0; sla > 0 && p95 > sla {
		status = worse(status, HealthWarning)
		m.raise("latency_p95", HealthWarning, fmt.Sprintf("p95 latency %.1fms exceeds %.0fms SLA", p95, sla))
	}

	p99 := percentile(latencies, 99)
	if sla := float64(m.cfg.LatencyP99SLA.Microseconds()) / 1000.0; sla > 0 && p99 > sla {
		status = worse(status, HealthCritical)
		m.raise("latency_p99", HealthCritical, fmt.Sprintf("p99 latency %.1fms exceeds %.0fms SLA", p99, sla))
	}

	m.status = status
}

// raise appends a bounded alert. Must be called with m.mu held.
func (m *Monitor) raise(kind string, status HealthStatus, message string) {
	m.alerts = append(m.alerts, HealthAlert{
		Kind:      kind,
		Status:    status,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	if len(m.alerts) > m.cfg.MaxAlerts {
		m.alerts = m.alerts[len(m.alerts)-m.cfg.MaxAlerts:]
	}
	slog.Warn("model health alert", "kind", kind, "status", status, "message", message)
}

func split(window []observation) (scores, latencies []float64) {
	scores = make([]float64, len(window))
	latencies = make([]float64, len(window))
	for i, obs := range window {
		scores[i] = obs.score
		latencies[i] = obs.latencyMs
	}
	return scores, latencies
}

func worse(a, b HealthStatus) HealthStatus {
	rank := func(s HealthStatus) int {
		switch s {
		case HealthCritical:
			return 2
		case HealthWarning:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
