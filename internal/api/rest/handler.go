package rest

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/llmrace/llmrace-backend/internal/config"
	"github.com/llmrace/llmrace-backend/internal/executor"
	"github.com/llmrace/llmrace-backend/internal/judge"
	"github.com/llmrace/llmrace-backend/internal/providers"
	"github.com/llmrace/llmrace-backend/internal/repository"
	"github.com/llmrace/llmrace-backend/internal/telemetry"
	"github.com/llmrace/llmrace-backend/internal/views"
)

// Handler holds the dependencies every race-engine HTTP endpoint needs.
type Handler struct {
	store          repository.Store
	exec           *executor.RaceExecutor
	judgePipeline  *judge.Pipeline
	views          *views.Views
	telemetryLog   *telemetry.Log
	providerClient providers.Client
	cfg            *config.Config
	log            *slog.Logger
}

// NewHandler constructs a Handler. None of the dependencies may be nil.
func NewHandler(store repository.Store, exec *executor.RaceExecutor, judgePipeline *judge.Pipeline, v *views.Views, telemetryLog *telemetry.Log, providerClient providers.Client, cfg *config.Config, log *slog.Logger) *Handler {
	return &Handler{
		store:          store,
		exec:           exec,
		judgePipeline:  judgePipeline,
		views:          v,
		telemetryLog:   telemetryLog,
		providerClient: providerClient,
		cfg:            cfg,
		log:            log,
	}
}

// SetupRoutes registers every handler on router under the /api prefix; /metrics is
// registered separately by the caller.
func SetupRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/api/health", h.Health).Methods(http.MethodGet)

	router.HandleFunc("/api/connections", h.ListConnections).Methods(http.MethodGet)
	router.HandleFunc("/api/connections", h.CreateConnection).Methods(http.MethodPost)
	router.HandleFunc("/api/connections/{id}", h.GetConnection).Methods(http.MethodGet)
	router.HandleFunc("/api/connections/{id}", h.UpdateConnection).Methods(http.MethodPut)
	router.HandleFunc("/api/connections/{id}", h.DeleteConnection).Methods(http.MethodDelete)
	router.HandleFunc("/api/connections/{id}/models", h.DiscoverModels).Methods(http.MethodGet)
	router.HandleFunc("/api/connections/{id}/test", h.TestConnection).Methods(http.MethodPost)
	router.HandleFunc("/api/connections/{id}/verify-runtime", h.VerifyRuntime).Methods(http.MethodPost)

	router.HandleFunc("/api/cars", h.ListCars).Methods(http.MethodGet)
	router.HandleFunc("/api/cars", h.CreateCar).Methods(http.MethodPost)
	router.HandleFunc("/api/cars/{id}", h.GetCar).Methods(http.MethodGet)
	router.HandleFunc("/api/cars/{id}", h.UpdateCar).Methods(http.MethodPut)
	router.HandleFunc("/api/cars/{id}", h.DeleteCar).Methods(http.MethodDelete)

	router.HandleFunc("/api/suites", h.ListSuites).Methods(http.MethodGet)
	router.HandleFunc("/api/suites", h.CreateSuite).Methods(http.MethodPost)
	router.HandleFunc("/api/suites/{id}", h.GetSuite).Methods(http.MethodGet)
	router.HandleFunc("/api/suites/{id}", h.UpdateSuite).Methods(http.MethodPut)
	router.HandleFunc("/api/suites/{id}", h.DeleteSuite).Methods(http.MethodDelete)
	router.HandleFunc("/api/suites/{id}/tests", h.ListTests).Methods(http.MethodGet)
	router.HandleFunc("/api/suites/{id}/tests", h.CreateTest).Methods(http.MethodPost)

	router.HandleFunc("/api/tests/{id}", h.GetTest).Methods(http.MethodGet)
	router.HandleFunc("/api/tests/{id}", h.UpdateTest).Methods(http.MethodPut)
	router.HandleFunc("/api/tests/{id}", h.DeleteTest).Methods(http.MethodDelete)

	router.HandleFunc("/api/settings/providers", h.ListProviderSettings).Methods(http.MethodGet)
	router.HandleFunc("/api/settings/providers", h.UpsertProviderSettings).Methods(http.MethodPut)

	router.HandleFunc("/api/runs/start", h.StartRun).Methods(http.MethodPost)
	router.HandleFunc("/api/runs/{id}", h.GetRun).Methods(http.MethodGet)
	router.HandleFunc("/api/runs/{id}/scorecard", h.GetScorecard).Methods(http.MethodGet)
	router.HandleFunc("/api/runs/{id}/compare", h.GetCompare).Methods(http.MethodGet)
	router.HandleFunc("/api/runs/{id}/stream", h.StreamRun).Methods(http.MethodGet)
	router.HandleFunc("/api/runs/{id}/judge", h.JudgeRun).Methods(http.MethodPost)

	router.HandleFunc("/api/leaderboard", h.GetLeaderboard).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondNotFound(r, w, "route not found")
	})
}

// Health handles GET /api/health, verifying the store is reachable (503 if the ping fails).
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
