package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/lakay-finance/kestrel/internal/alerts"
	"github.com/lakay-finance/kestrel/internal/bus"
	"github.com/lakay-finance/kestrel/internal/domain"
	"github.com/lakay-finance/kestrel/internal/features"
	"github.com/lakay-finance/kestrel/internal/repository"
	"github.com/lakay-finance/kestrel/internal/rules"
	"github.com/lakay-finance/kestrel/internal/scoring"
	"github.com/lakay-finance/kestrel/internal/serving"
)

// newTestServer wires the full pipeline against a temp SQLite store.
// The baseline model is registered but not loaded, matching the
// default deployment: scoring runs on rules alone, and the reload
// endpoint exercises the load path.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	store, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := domain.DefaultConfig()

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	registry := serving.NewInMemoryRegistry()
	registry.Register(cfg.Serving.ModelName, serving.DefaultBaseline(), domain.StageProduction)

	champion := serving.NewModelServer(registry, cfg.Serving.ModelName, domain.StageProduction, cfg.Serving.Timeout)

	router := serving.NewRouter(champion, nil, cfg.Serving.Routing)
	drift := serving.NewDriftDetector(cfg.Serving.Drift)
	monitor := serving.NewMonitor(cfg.Serving.Monitoring)

	computer := features.NewComputer(store, cfg.Fraud.Features)
	engine := rules.NewEngine(store, cfg.Fraud, 4)
	hybrid := scoring.NewHybrid(cfg.Fraud.Hybrid)
	alerter := alerts.NewManager(store, eventBus, cfg.Fraud.Alerting)
	scorer := scoring.NewScorer(computer, engine, router, hybrid, alerter, store, store, eventBus)

	handler := NewHandler(scorer, engine, store, nil, eventBus, router, champion, nil, drift, monitor, "test-v1")
	return NewServer(cfg.Server, handler)
}

var testClock = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func scoreBody(txID string, amount string) []byte {
	return scoreBodyAt(txID, amount, 0)
}

// scoreBodyAt offsets InitiatedAt so consecutive transactions land at
// distinct instants; feature windows are half-open and exclude events
// at the query instant itself.
func scoreBodyAt(txID string, amount string, offset time.Duration) []byte {
	body, _ := json.Marshal(domain.ScoreRequest{
		TransactionID:   txID,
		UserID:          "user-001",
		Amount:          amount,
		Currency:        "USD",
		TransactionType: "p2p_transfer",
		InitiatedAt:     testClock.Add(offset),
	})
	return body
}

func doRequest(server *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestScoreEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("SuccessfulScore", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/score", scoreBody("tx-001", "100.00"))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var result domain.ScoringContext
		if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if result.TransactionID != "tx-001" {
			t.Errorf("expected transactionId 'tx-001', got '%s'", result.TransactionID)
		}
		if result.RiskTier != domain.TierLow {
			t.Errorf("expected low tier for clean transaction, got %s", result.RiskTier)
		}
		if result.Recommendation != domain.RecommendAllow {
			t.Errorf("expected allow recommendation, got %s", result.Recommendation)
		}
		if rr.Header().Get(RequestIDHeader) == "" {
			t.Error("expected request id response header")
		}
	})

	t.Run("IdempotentReplay", func(t *testing.T) {
		first := doRequest(server, http.MethodPost, "/score", scoreBody("tx-replay", "250.00"))
		second := doRequest(server, http.MethodPost, "/score", scoreBody("tx-replay", "250.00"))

		if first.Code != http.StatusOK || second.Code != http.StatusOK {
			t.Fatalf("expected 200/200, got %d/%d", first.Code, second.Code)
		}

		var a, b domain.ScoringContext
		json.Unmarshal(first.Body.Bytes(), &a)
		json.Unmarshal(second.Body.Bytes(), &b)
		if !a.ScoredAt.Equal(b.ScoredAt) {
			t.Errorf("replay returned a different result: %v vs %v", a.ScoredAt, b.ScoredAt)
		}
	})

	t.Run("MalformedAmount", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/score", scoreBody("tx-bad", "ten dollars"))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingUserID", func(t *testing.T) {
		body, _ := json.Marshal(domain.ScoreRequest{
			TransactionID: "tx-no-user",
			Amount:        "10.00",
		})
		rr := doRequest(server, http.MethodPost, "/score", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/score", []byte("not-json"))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestGetScoreEndpoint(t *testing.T) {
	server := newTestServer(t)

	doRequest(server, http.MethodPost, "/score", scoreBody("tx-lookup", "42.00"))

	t.Run("Found", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/scores/tx-lookup", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var stored domain.StoredScore
		if err := json.Unmarshal(rr.Body.Bytes(), &stored); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if stored.TransactionID != "tx-lookup" {
			t.Errorf("expected transactionId 'tx-lookup', got '%s'", stored.TransactionID)
		}
		if stored.Result == nil {
			t.Fatal("expected archived result")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/scores/tx-unknown", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestEventsEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("RecordLogin", func(t *testing.T) {
		body, _ := json.Marshal(domain.Event{
			ID:     "ev-login-1",
			Type:   domain.EventSessionStarted,
			UserID: "user-001",
		})
		rr := doRequest(server, http.MethodPost, "/events", body)
		if rr.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		body, _ := json.Marshal(domain.Event{
			Type:   domain.EventSessionStarted,
			UserID: "user-001",
		})
		rr := doRequest(server, http.MethodPost, "/events", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestAlertsEndpoint(t *testing.T) {
	server := newTestServer(t)

	// Burst of large transactions a minute apart pushes the user over
	// the high tier and raises an alert.
	var last domain.ScoringContext
	for i := 0; i < 12; i++ {
		rr := doRequest(server, http.MethodPost, "/score",
			scoreBodyAt(fmt.Sprintf("tx-burst-%d", i), "9800.00", time.Duration(i)*time.Minute))
		if rr.Code != http.StatusOK {
			t.Fatalf("score %d failed: %d %s", i, rr.Code, rr.Body.String())
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &last); err != nil {
			t.Fatalf("failed to parse score %d: %v", i, err)
		}
	}

	if last.RiskTier != domain.TierHigh && last.RiskTier != domain.TierCritical {
		t.Errorf("final burst tier = %s (score %.3f), want high or critical",
			last.RiskTier, last.CompositeScore)
	}

	rr := doRequest(server, http.MethodGet, "/alerts?userId=user-001", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Alerts []*domain.Alert `json:"alerts"`
		Count  int             `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count == 0 {
		t.Fatal("expected at least one alert after high-risk burst")
	}

	t.Run("GetByID", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/alerts/"+resp.Alerts[0].ID, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("UnknownID", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/alerts/nonexistent", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/alerts?limit=many", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestRulesEndpoint(t *testing.T) {
	server := newTestServer(t)

	rr := doRequest(server, http.MethodGet, "/rules", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Rules []domain.RuleInfo `json:"rules"`
		Count int               `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count == 0 {
		t.Error("expected registered rules")
	}
}

func TestConfigEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("Get", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/config", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("PartialUpdateKeepsDefaults", func(t *testing.T) {
		rr := doRequest(server, http.MethodPut, "/config",
			[]byte(`{"amount":{"largeTxnMin":40}}`))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var cfg domain.FraudConfig
		if err := json.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if cfg.Amount.LargeTxnMin != 40 {
			t.Errorf("largeTxnMin = %v, want 40", cfg.Amount.LargeTxnMin)
		}
		if cfg.Scoring.HighThreshold != 0.6 {
			t.Errorf("highThreshold = %v, want preserved default 0.6", cfg.Scoring.HighThreshold)
		}
	})

	t.Run("UpdateTakesEffect", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/score", scoreBody("tx-after-reload", "50.00"))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var result domain.ScoringContext
		json.Unmarshal(rr.Body.Bytes(), &result)
		if result.CompositeScore == 0 {
			t.Error("expected the lowered large-transaction threshold to score 50.00 above zero")
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := doRequest(server, http.MethodPut, "/config", []byte("{"))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestModelEndpoints(t *testing.T) {
	server := newTestServer(t)

	t.Run("Reload", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/model/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]any
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["championVersion"] != "baseline-1" {
			t.Errorf("championVersion = %v, want baseline-1", resp["championVersion"])
		}
	})

	t.Run("Health", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/model/health", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var report serving.HealthReport
		if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if report.Status != serving.HealthUnknown {
			t.Errorf("status = %s, want unknown before first check", report.Status)
		}
	})

	t.Run("Drift", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/model/drift", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("GetRouting", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/model/routing", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Routing         serving.RoutingSummary `json:"routing"`
			PromoteEligible bool                   `json:"promoteEligible"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Routing.ChampionPct != 95 {
			t.Errorf("championPct = %d, want 95", resp.Routing.ChampionPct)
		}
		if resp.PromoteEligible {
			t.Error("promotion must never be automatic")
		}
	})

	t.Run("UpdateRouting", func(t *testing.T) {
		rr := doRequest(server, http.MethodPut, "/model/routing",
			[]byte(`{"championPct":80,"challengerPct":20}`))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var summary serving.RoutingSummary
		json.Unmarshal(rr.Body.Bytes(), &summary)
		if summary.ChallengerPct != 20 {
			t.Errorf("challengerPct = %d, want 20", summary.ChallengerPct)
		}
	})

	t.Run("InvalidSplit", func(t *testing.T) {
		rr := doRequest(server, http.MethodPut, "/model/routing",
			[]byte(`{"championPct":50,"challengerPct":40}`))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := newTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/health", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["status"] != "healthy" {
			t.Errorf("status = %s, want healthy", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("version = %s, want test-v1", resp["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/ready", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/metrics", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}
