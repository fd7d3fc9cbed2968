package serving

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// InMemoryRegistry is a process-local model registry. It backs
// deployments that have no external registry and the test suite;
// production deployments point the same interface at a real one.
type InMemoryRegistry struct {
	mu     sync.RWMutex
	models map[string]map[string]domain.Model // name -> version -> model
	meta   map[string]map[string]*domain.ModelMetadata
	stages map[string]map[string]string // name -> stage -> version
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		models: make(map[string]map[string]domain.Model),
		meta:   make(map[string]map[string]*domain.ModelMetadata),
		stages: make(map[string]map[string]string),
	}
}

// Register adds a model version and assigns it to a stage.
func (r *InMemoryRegistry) Register(name string, model domain.Model, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	version := model.Version()
	if r.models[name] == nil {
		r.models[name] = make(map[string]domain.Model)
		r.meta[name] = make(map[string]*domain.ModelMetadata)
		r.stages[name] = make(map[string]string)
	}
	r.models[name][version] = model
	r.meta[name][version] = &domain.ModelMetadata{
		Name:    name,
		Version: version,
		Stage:   stage,
	}
	r.stages[name][stage] = version
}

// Load returns the model currently assigned to a stage.
func (r *InMemoryRegistry) Load(ctx context.Context, name, stage string) (domain.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, ok := r.stages[name][stage]
	if !ok {
		return nil, fmt.Errorf("%w: no %s model at stage %s", domain.ErrNotFound, name, stage)
	}
	return r.models[name][version], nil
}

// Metadata returns the registry record for a stage's current model.
func (r *InMemoryRegistry) Metadata(ctx context.Context, name, stage string) (*domain.ModelMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, ok := r.stages[name][stage]
	if !ok {
		return nil, fmt.Errorf("%w: no %s model at stage %s", domain.ErrNotFound, name, stage)
	}
	return r.meta[name][version], nil
}

// Promote assigns an existing version to a stage.
func (r *InMemoryRegistry) Promote(ctx context.Context, name, version, stage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[name][version]; !ok {
		return fmt.Errorf("%w: %s version %s", domain.ErrNotFound, name, version)
	}
	r.stages[name][stage] = version
	r.meta[name][version].Stage = stage
	return nil
}

// ListVersions returns all registered versions of a model, sorted.
func (r *InMemoryRegistry) ListVersions(ctx context.Context, name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := make([]string, 0, len(r.models[name]))
	for v := range r.models[name] {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

// LogisticModel is a linear model squashed through a sigmoid. The
// built-in baseline is one of these: hand-fitted coefficients over the
// standard feature vector.
type LogisticModel struct {
	version   string
	names     []string
	weights   []float64
	intercept float64
}

// NewLogisticModel creates a model over the named features. weights
// must align with names.
func NewLogisticModel(version string, names []string, weights []float64, intercept float64) *LogisticModel {
	return &LogisticModel{
		version:   version,
		names:     names,
		weights:   weights,
		intercept: intercept,
	}
}

// DefaultBaseline returns the built-in hand-fitted model. Its output
// sits near zero on ordinary traffic, so blending it into a weighted
// average drags genuine high-risk rule scores down; it belongs in the
// staging slot until a trained model is promoted, not as champion.
func DefaultBaseline() *LogisticModel {
	return NewLogisticModel(
		"baseline-1",
		[]string{
			"velocity_count_1h",
			"velocity_count_24h",
			"velocity_amount_24h",
			"is_new_device",
			"is_new_country",
			"stddev_amount_30d",
		},
		[]float64{0.25, 0.08, 0.0002, 0.9, 1.2, 0.001},
		-4.0,
	)
}

func (m *LogisticModel) Predict(features []float64) (float64, error) {
	if len(features) != len(m.weights) {
		return 0, fmt.Errorf("%w: got %d features, want %d", domain.ErrInvalidInput, len(features), len(m.weights))
	}
	z := m.intercept
	for i, w := range m.weights {
		z += w * features[i]
	}
	return 1.0 / (1.0 + math.Exp(-z)), nil
}

func (m *LogisticModel) FeatureNames() []string { return m.names }
func (m *LogisticModel) Version() string        { return m.version }
