package serving

import (
	"context"
	"errors"
	"testing"

	"github.com/lakay-finance/kestrel/internal/domain"
)

func TestInMemoryRegistryLifecycle(t *testing.T) {
	r := NewInMemoryRegistry()
	ctx := context.Background()

	if _, err := r.Load(ctx, "fraud-scorer", domain.StageProduction); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Load() on empty registry error = %v, want ErrNotFound", err)
	}

	v1 := NewLogisticModel("1", []string{"amount"}, []float64{0.1}, -2)
	v2 := NewLogisticModel("2", []string{"amount"}, []float64{0.2}, -2)
	r.Register("fraud-scorer", v1, domain.StageProduction)
	r.Register("fraud-scorer", v2, domain.StageStaging)

	model, err := r.Load(ctx, "fraud-scorer", domain.StageProduction)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if model.Version() != "1" {
		t.Errorf("production version = %v, want 1", model.Version())
	}

	if err := r.Promote(ctx, "fraud-scorer", "2", domain.StageProduction); err != nil {
		t.Fatalf("Promote() error: %v", err)
	}
	model, _ = r.Load(ctx, "fraud-scorer", domain.StageProduction)
	if model.Version() != "2" {
		t.Errorf("production version after promote = %v, want 2", model.Version())
	}

	if err := r.Promote(ctx, "fraud-scorer", "99", domain.StageProduction); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Promote() of unknown version error = %v, want ErrNotFound", err)
	}

	versions, _ := r.ListVersions(ctx, "fraud-scorer")
	if len(versions) != 2 || versions[0] != "1" || versions[1] != "2" {
		t.Errorf("ListVersions() = %v, want [1 2]", versions)
	}
}

func TestLogisticModelPredict(t *testing.T) {
	m := NewLogisticModel("1", []string{"a", "b"}, []float64{1, 1}, 0)

	// z = 0: sigmoid is exactly 0.5.
	score, err := m.Predict([]float64{0, 0})
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	if score != 0.5 {
		t.Errorf("Predict(0,0) = %v, want 0.5", score)
	}

	// Larger inputs push the score up but never past 1.
	high, _ := m.Predict([]float64{10, 10})
	if high <= score || high >= 1 {
		t.Errorf("Predict(10,10) = %v, want in (0.5, 1)", high)
	}

	if _, err := m.Predict([]float64{1}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("feature length mismatch error = %v, want ErrInvalidInput", err)
	}
}

func TestDefaultBaselineRanksRiskySessionsHigher(t *testing.T) {
	m := DefaultBaseline()
	names := m.FeatureNames()

	feats := func(overrides map[string]float64) []float64 {
		values := make([]float64, len(names))
		for i, n := range names {
			values[i] = overrides[n]
		}
		return values
	}

	clean, _ := m.Predict(feats(nil))
	risky, _ := m.Predict(feats(map[string]float64{
		"velocity_count_1h": 12,
		"is_new_device":     1,
		"is_new_country":    1,
	}))

	if risky <= clean {
		t.Errorf("risky = %v, clean = %v, want risky ranked higher", risky, clean)
	}
}
