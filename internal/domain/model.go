package domain

import "context"

// Model is a loaded scoring model handle. Predict takes the feature
// values in the order of FeatureNames and returns a raw score.
type Model interface {
	Predict(features []float64) (float64, error)
	FeatureNames() []string
	Version() string
}

// ModelMetadata describes a registered model version.
type ModelMetadata struct {
	Name    string             `json:"name"`
	Version string             `json:"version"`
	Stage   string             `json:"stage"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Tags    map[string]string  `json:"tags,omitempty"`
}

// ModelRegistry is the external registry the model server loads from.
// Persistence, promotion workflows and validation live outside this
// system.
type ModelRegistry interface {
	Load(ctx context.Context, name, stage string) (Model, error)
	Metadata(ctx context.Context, name, stage string) (*ModelMetadata, error)
	Promote(ctx context.Context, name, version, stage string) error
	ListVersions(ctx context.Context, name string) ([]string, error)
}

// Registry stage names.
const (
	StageProduction = "production"
	StageStaging    = "staging"
)
