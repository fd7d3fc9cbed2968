package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Scoring pipeline
	Fraud   FraudConfig   `json:"fraud"`
	Serving ServingConfig `json:"serving"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// RepositoryConfig holds database settings.
type RepositoryConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string `json:"driver"`

	// SQLite settings
	SQLitePath string `json:"sqlitePath"`

	// PostgreSQL settings
	PostgresHost     string `json:"postgresHost"`
	PostgresPort     int    `json:"postgresPort"`
	PostgresUser     string `json:"postgresUser"`
	PostgresPassword string `json:"-"`
	PostgresDB       string `json:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode"`

	// Connection pool
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// FraudConfig aggregates every threshold the rule engine, feature
// computer, hybrid scorer and alert manager read. All of it is
// hot-reloadable without a process restart.
type FraudConfig struct {
	Features FeatureConfig  `json:"features"`
	Velocity VelocityConfig `json:"velocity"`
	Amount   AmountConfig   `json:"amount"`
	Geo      GeoConfig      `json:"geo"`
	Patterns PatternConfig  `json:"patterns"`
	Scoring  ScoringConfig  `json:"scoring"`
	Alerting AlertConfig    `json:"alerting"`
	Hybrid   HybridConfig   `json:"hybrid"`
}

// FeatureConfig bounds feature computation.
type FeatureConfig struct {
	// QueryTimeout caps each individual store query. A timeout yields
	// the feature's zero value, never a request failure.
	QueryTimeout time.Duration `json:"queryTimeout"`
}

// VelocityConfig holds velocity rule thresholds.
type VelocityConfig struct {
	LoginWindow      time.Duration `json:"loginWindow"`
	LoginMax         int           `json:"loginMax"`
	TxnCount1hMax    int64         `json:"txnCount1hMax"`
	TxnCount24hMax   int64         `json:"txnCount24hMax"`
	TxnAmount24hMax  float64       `json:"txnAmount24hMax"`
	CircleJoinWindow time.Duration `json:"circleJoinWindow"`
	CircleJoinMax    int64         `json:"circleJoinMax"`
}

// AmountConfig holds amount rule thresholds.
type AmountConfig struct {
	LargeTxnMin      float64 `json:"largeTxnMin"`
	Cumulative24hMax float64 `json:"cumulative24hMax"`
	Cumulative7dMax  float64 `json:"cumulative7dMax"`
	Cumulative30dMax float64 `json:"cumulative30dMax"`
	ZScoreThreshold  float64 `json:"zscoreThreshold"`

	// CTR reporting proximity thresholds.
	CTRSingleThreshold float64 `json:"ctrSingleThreshold"`
	CTRDailyThreshold  float64 `json:"ctrDailyThreshold"`
}

// GeoConfig holds geography rule thresholds.
type GeoConfig struct {
	MaxSpeedKmh   float64  `json:"maxSpeedKmh"`
	HomeCountries []string `json:"homeCountries"`
}

// PatternConfig holds pattern rule thresholds.
type PatternConfig struct {
	DuplicateTolerance float64       `json:"duplicateTolerance"`
	DuplicateWindow    time.Duration `json:"duplicateWindow"`

	// Structuring bands sit just under known reporting thresholds.
	StructuringNear3kLow   float64       `json:"structuringNear3kLow"`
	StructuringNear3kHigh  float64       `json:"structuringNear3kHigh"`
	StructuringNear10kLow  float64       `json:"structuringNear10kLow"`
	StructuringNear10kHigh float64       `json:"structuringNear10kHigh"`
	StructuringWindow      time.Duration `json:"structuringWindow"`

	RoundAmountPct      float64       `json:"roundAmountPct"`
	RoundAmountLookback time.Duration `json:"roundAmountLookback"`
	RoundAmountMinTxns  int           `json:"roundAmountMinTxns"`

	TemporalStdDevSecs float64       `json:"temporalStddevSecs"`
	TemporalMinTxns    int           `json:"temporalMinTxns"`
	TemporalLookback   time.Duration `json:"temporalLookback"`
}

// ScoringConfig holds category caps and tier thresholds.
type ScoringConfig struct {
	VelocityCap float64 `json:"velocityCap"`
	AmountCap   float64 `json:"amountCap"`
	GeoCap      float64 `json:"geoCap"`
	PatternsCap float64 `json:"patternsCap"`

	// RuleTimeout caps each rule's evaluation. A timed-out rule
	// resolves to not-triggered.
	RuleTimeout time.Duration `json:"ruleTimeout"`

	MediumThreshold   float64 `json:"mediumThreshold"`
	HighThreshold     float64 `json:"highThreshold"`
	CriticalThreshold float64 `json:"criticalThreshold"`
}

// Cap returns the configured cap for a category.
func (s ScoringConfig) Cap(cat RuleCategory) float64 {
	switch cat {
	case CategoryVelocity:
		return s.VelocityCap
	case CategoryAmount:
		return s.AmountCap
	case CategoryGeo:
		return s.GeoCap
	case CategoryPatterns:
		return s.PatternsCap
	default:
		return 0
	}
}

// TierFor maps a composite score to its risk tier.
func (s ScoringConfig) TierFor(score float64) RiskTier {
	switch {
	case score < s.MediumThreshold:
		return TierLow
	case score < s.HighThreshold:
		return TierMedium
	case score < s.CriticalThreshold:
		return TierHigh
	default:
		return TierCritical
	}
}

// RecommendationFor maps a risk tier to the suggested action.
func RecommendationFor(tier RiskTier) Recommendation {
	switch tier {
	case TierLow:
		return RecommendAllow
	case TierMedium:
		return RecommendMonitor
	case TierHigh:
		return RecommendHold
	default:
		return RecommendBlock
	}
}

// AlertConfig holds alert creation settings.
type AlertConfig struct {
	SuppressionWindow time.Duration `json:"suppressionWindow"`
}

// HybridStrategy selects how rule and model scores combine.
type HybridStrategy string

const (
	StrategyWeightedAverage HybridStrategy = "weighted_average"
	StrategyMax             HybridStrategy = "max"
	StrategyEnsembleVote    HybridStrategy = "ensemble_vote"
)

// HybridConfig holds rule/model combination settings.
type HybridConfig struct {
	Strategy      HybridStrategy `json:"strategy"`
	RuleWeight    float64        `json:"ruleWeight"`
	ModelWeight   float64        `json:"modelWeight"`
	VoteThreshold float64        `json:"voteThreshold"`
}

// ServingConfig holds the model-serving control plane settings.
type ServingConfig struct {
	ModelName  string        `json:"modelName"`
	ModelStage string        `json:"modelStage"`
	Timeout    time.Duration `json:"timeout"`

	Routing    RoutingConfig    `json:"routing"`
	Drift      DriftConfig      `json:"drift"`
	Monitoring MonitoringConfig `json:"monitoring"`
}

// RoutingConfig holds champion/challenger traffic split settings.
// ChampionPct + ChallengerPct must sum to 100.
type RoutingConfig struct {
	ChampionPct       int `json:"championPct"`
	ChallengerPct     int `json:"challengerPct"`
	MetricsBufferSize int `json:"metricsBufferSize"`
	MinObservations   int `json:"minObservations"`
}

// DriftConfig holds PSI drift detection settings.
type DriftConfig struct {
	WarningPSI      float64 `json:"warningPsi"`
	CriticalPSI     float64 `json:"criticalPsi"`
	Bins            int     `json:"bins"`
	MinObservations int     `json:"minObservations"`
	CheckEvery      int     `json:"checkEvery"`
	MaxObservations int     `json:"maxObservations"`
	Epsilon         float64 `json:"epsilon"`
}

// MonitoringConfig holds model health monitoring settings.
type MonitoringConfig struct {
	ScoreShiftStd   float64       `json:"scoreShiftStd"`
	LatencyP95SLA   time.Duration `json:"latencyP95Sla"`
	LatencyP99SLA   time.Duration `json:"latencyP99Sla"`
	MaxObservations int           `json:"maxObservations"`
	CheckEvery      int           `json:"checkEvery"`
	MinWindowCount  int           `json:"minWindowCount"`
	MaxAlerts       int           `json:"maxAlerts"`
	ReportAlerts    int           `json:"reportAlerts"`
}

// DefaultConfig returns the default configuration: SQLite, in-process
// channels, local LRU cache and the standard rule thresholds.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			AggregateTTL: 30 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Fraud:   DefaultFraudConfig(),
		Serving: DefaultServingConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// DefaultFraudConfig returns the standard scoring thresholds.
func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		Features: FeatureConfig{
			QueryTimeout: 500 * time.Millisecond,
		},
		Velocity: VelocityConfig{
			LoginWindow:      10 * time.Minute,
			LoginMax:         5,
			TxnCount1hMax:    10,
			TxnCount24hMax:   20,
			TxnAmount24hMax:  10000,
			CircleJoinWindow: 24 * time.Hour,
			CircleJoinMax:    3,
		},
		Amount: AmountConfig{
			LargeTxnMin:        3000,
			Cumulative24hMax:   8000,
			Cumulative7dMax:    25000,
			Cumulative30dMax:   50000,
			ZScoreThreshold:    2.5,
			CTRSingleThreshold: 8000,
			CTRDailyThreshold:  9000,
		},
		Geo: GeoConfig{
			MaxSpeedKmh:   900,
			HomeCountries: []string{"US", "HT"},
		},
		Patterns: PatternConfig{
			DuplicateTolerance:     0.05,
			DuplicateWindow:        10 * time.Minute,
			StructuringNear3kLow:   2800,
			StructuringNear3kHigh:  2999,
			StructuringNear10kLow:  9500,
			StructuringNear10kHigh: 9999,
			StructuringWindow:      24 * time.Hour,
			RoundAmountPct:         0.60,
			RoundAmountLookback:    30 * 24 * time.Hour,
			RoundAmountMinTxns:     3,
			TemporalStdDevSecs:     300,
			TemporalMinTxns:        4,
			TemporalLookback:       7 * 24 * time.Hour,
		},
		Scoring: ScoringConfig{
			VelocityCap:       0.35,
			AmountCap:         0.30,
			GeoCap:            0.25,
			PatternsCap:       0.30,
			RuleTimeout:       time.Second,
			MediumThreshold:   0.3,
			HighThreshold:     0.6,
			CriticalThreshold: 0.8,
		},
		Alerting: AlertConfig{
			SuppressionWindow: time.Hour,
		},
		Hybrid: HybridConfig{
			Strategy:      StrategyWeightedAverage,
			RuleWeight:    0.6,
			ModelWeight:   0.4,
			VoteThreshold: 0.6,
		},
	}
}

// DefaultServingConfig returns the standard serving control-plane
// settings: a 95/5 champion/challenger split and the documented drift
// and monitoring windows.
func DefaultServingConfig() ServingConfig {
	return ServingConfig{
		ModelName:  "fraud-scorer",
		ModelStage: StageProduction,
		Timeout:    200 * time.Millisecond,
		Routing: RoutingConfig{
			ChampionPct:       95,
			ChallengerPct:     5,
			MetricsBufferSize: 10000,
			MinObservations:   1000,
		},
		Drift: DriftConfig{
			WarningPSI:      0.10,
			CriticalPSI:     0.25,
			Bins:            10,
			MinObservations: 100,
			CheckEvery:      500,
			MaxObservations: 50000,
			Epsilon:         1e-6,
		},
		Monitoring: MonitoringConfig{
			ScoreShiftStd:   2.0,
			LatencyP95SLA:   200 * time.Millisecond,
			LatencyP99SLA:   500 * time.Millisecond,
			MaxObservations: 100000,
			CheckEvery:      100,
			MinWindowCount:  10,
			MaxAlerts:       1000,
			ReportAlerts:    10,
		},
	}
}
