package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_scores_total",
		Help: "Scoring calls by resulting risk tier.",
	}, []string{"tier"})

	scoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kestrel_scoring_duration_seconds",
		Help:    "End-to-end scoring pipeline latency.",
		Buckets: prometheus.DefBuckets,
	})

	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_alerts_total",
		Help: "Fraud alerts created by severity.",
	}, []string{"severity"})

	modelPredictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_model_predictions_total",
		Help: "Model predictions by routing variant.",
	}, []string{"variant"})
)
