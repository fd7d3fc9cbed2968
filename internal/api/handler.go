package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lakay-finance/kestrel/internal/domain"
	"github.com/lakay-finance/kestrel/internal/repository"
	"github.com/lakay-finance/kestrel/internal/rules"
	"github.com/lakay-finance/kestrel/internal/scoring"
	"github.com/lakay-finance/kestrel/internal/serving"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	scorer     *scoring.Scorer
	engine     *rules.Engine
	store      repository.Store
	cache      domain.Cache
	bus        domain.EventBus
	router     *serving.Router
	champion   *serving.ModelServer
	challenger *serving.ModelServer
	drift      *serving.DriftDetector
	monitor    *serving.Monitor
	version    string
}

// NewHandler creates a new API handler. Serving-plane dependencies may
// be nil; their endpoints then return 503.
func NewHandler(
	scorer *scoring.Scorer,
	engine *rules.Engine,
	store repository.Store,
	cache domain.Cache,
	bus domain.EventBus,
	router *serving.Router,
	champion, challenger *serving.ModelServer,
	drift *serving.DriftDetector,
	monitor *serving.Monitor,
	version string,
) *Handler {
	return &Handler{
		scorer:     scorer,
		engine:     engine,
		store:      store,
		cache:      cache,
		bus:        bus,
		router:     router,
		champion:   champion,
		challenger: challenger,
		drift:      drift,
		monitor:    monitor,
		version:    version,
	}
}

// Score handles POST /score requests.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var req domain.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.scorer.Score(r.Context(), &req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("scoring failed", "tx_id", req.TransactionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetScore retrieves an archived scoring result by transaction ID.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txID")

	stored, err := h.scorer.GetScore(r.Context(), txID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "score not found",
			})
			return
		}
		slog.Error("score lookup failed", "tx_id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "score lookup failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, stored)
}

// RecordEvent handles POST /events: out-of-band historical events such
// as logins and circle joins that feed future feature computation.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var event domain.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := h.store.SaveEvent(r.Context(), &event); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("event write failed", "event_id", event.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save event",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id": event.ID,
	})
}

// ListAlerts returns alerts filtered by user, status and severity.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := domain.AlertFilter{
		UserID:   r.URL.Query().Get("userId"),
		Status:   domain.AlertStatus(r.URL.Query().Get("status")),
		Severity: domain.Severity(r.URL.Query().Get("severity")),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		filter.Limit = n
	}

	alerts, err := h.store.ListAlerts(r.Context(), filter)
	if err != nil {
		slog.Error("alert listing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetAlert retrieves an alert by ID.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	alert, err := h.store.GetAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert not found",
			})
			return
		}
		slog.Error("alert lookup failed", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "alert lookup failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// ListRules returns the registered rules and their categories.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ruleInfos := h.engine.Rules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": ruleInfos,
		"count": len(ruleInfos),
	})
}

// GetConfig returns the active fraud configuration.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Config())
}

// UpdateConfig hot-reloads fraud thresholds. The request body is
// merged over the active configuration, so partial updates keep every
// unmentioned threshold.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	h.scorer.Reload(cfg)

	slog.Info("fraud configuration reloaded")
	writeJSON(w, http.StatusOK, cfg)
}

// ReloadModels re-resolves the champion and challenger from the model
// registry. A failed load keeps the previously served version.
func (h *Handler) ReloadModels(w http.ResponseWriter, r *http.Request) {
	if h.champion == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model serving not available",
		})
		return
	}

	resp := map[string]any{}
	if err := h.champion.Load(r.Context()); err != nil {
		resp["championError"] = err.Error()
	}
	resp["championVersion"] = h.champion.Version()

	if h.challenger != nil {
		if err := h.challenger.Load(r.Context()); err != nil {
			resp["challengerError"] = err.Error()
		}
		resp["challengerVersion"] = h.challenger.Version()
	}

	writeJSON(w, http.StatusOK, resp)
}

// ModelHealth returns the monitoring snapshot.
func (h *Handler) ModelHealth(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model monitoring not available",
		})
		return
	}
	writeJSON(w, http.StatusOK, h.monitor.Report())
}

// ModelDrift returns the feature drift report.
func (h *Handler) ModelDrift(w http.ResponseWriter, r *http.Request) {
	if h.drift == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "drift detection not available",
		})
		return
	}
	writeJSON(w, http.StatusOK, h.drift.Report())
}

// GetRouting returns the routing summary and promotion readiness.
func (h *Handler) GetRouting(w http.ResponseWriter, r *http.Request) {
	if h.router == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model routing not available",
		})
		return
	}

	eligible, reason := h.router.ShouldPromote()
	writeJSON(w, http.StatusOK, map[string]any{
		"routing":          h.router.Summary(),
		"promoteEligible":  eligible,
		"promotionComment": reason,
	})
}

// UpdateRoutingRequest is the request body for PUT /model/routing.
type UpdateRoutingRequest struct {
	ChampionPct   int `json:"championPct"`
	ChallengerPct int `json:"challengerPct"`
}

// UpdateRouting changes the champion/challenger traffic split.
func (h *Handler) UpdateRouting(w http.ResponseWriter, r *http.Request) {
	if h.router == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model routing not available",
		})
		return
	}

	var req UpdateRoutingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.router.UpdateSplit(req.ChampionPct, req.ChallengerPct); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update routing split",
		})
		return
	}

	writeJSON(w, http.StatusOK, h.router.Summary())
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
