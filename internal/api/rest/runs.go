package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/llmrace/llmrace-backend/internal/models"
)

type startRunRequest struct {
	SuiteID    string   `json:"suite_id"`
	CarIDs     []string `json:"car_ids"`
	JudgeCarID *string  `json:"judge_car_id,omitempty"`
}

// StartRun handles POST /api/runs/start: validates the suite and cars exist, materializes
// the (Test, Car) cartesian product as PENDING RunItem rows, then enqueues the run on the
// executor's worker.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(r, w, "invalid request body")
		return
	}
	if req.SuiteID == "" || len(req.CarIDs) == 0 {
		respondBadRequest(r, w, "suite_id and at least one car_id are required")
		return
	}

	suite, err := h.store.GetSuite(r.Context(), req.SuiteID)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if suite == nil {
		respondNotFound(r, w, "suite not found")
		return
	}

	for _, carID := range req.CarIDs {
		car, err := h.store.GetCar(r.Context(), carID)
		if err != nil {
			respondInternalError(r, w, err)
			return
		}
		if car == nil {
			respondBadRequest(r, w, fmt.Sprintf("car %s does not exist", carID))
			return
		}
	}

	tests, err := h.store.ListTestsBySuite(r.Context(), req.SuiteID)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if len(tests) == 0 {
		respondBadRequest(r, w, "suite has no tests")
		return
	}

	selectedCarIDsJSON, err := json.Marshal(req.CarIDs)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}

	run := &models.Run{
		ID:             uuid.New().String(),
		SuiteID:        req.SuiteID,
		Status:         models.RunQueued,
		SelectedCarIDs: string(selectedCarIDsJSON),
		JudgeCarID:     req.JudgeCarID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.CreateRun(r.Context(), run); err != nil {
		respondInternalError(r, w, err)
		return
	}

	for _, test := range tests {
		for _, carID := range req.CarIDs {
			item := &models.RunItem{
				ID:           uuid.New().String(),
				RunID:        run.ID,
				TestID:       test.ID,
				CarID:        carID,
				Status:       models.RunItemPending,
				AttemptCount: 0,
			}
			if err := h.store.CreateRunItem(r.Context(), item); err != nil {
				respondInternalError(r, w, err)
				return
			}
		}
	}

	h.exec.Enqueue(run.ID)
	respondJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

// GetRun handles GET /api/runs/{id}: a full snapshot of the run plus its items.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if run == nil {
		respondNotFound(r, w, "run not found")
		return
	}
	items, err := h.store.ListRunItemsByRun(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run":   run,
		"items": items,
	})
}

// GetScorecard handles GET /api/runs/{id}/scorecard.
func (h *Handler) GetScorecard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if run == nil {
		respondNotFound(r, w, "run not found")
		return
	}
	rows, err := h.views.Scorecard(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// GetCompare handles GET /api/runs/{id}/compare?baseline_run_id=.
func (h *Handler) GetCompare(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	baselineID := r.URL.Query().Get("baseline_run_id")
	if baselineID == "" {
		respondBadRequest(r, w, "baseline_run_id query parameter is required")
		return
	}
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if run == nil {
		respondNotFound(r, w, "run not found")
		return
	}
	baseline, err := h.store.GetRun(r.Context(), baselineID)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if baseline == nil {
		respondNotFound(r, w, "baseline run not found")
		return
	}

	result, err := h.views.Compare(r.Context(), id, baselineID)
	if err != nil {
		respondBadRequest(r, w, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// JudgeRun handles POST /api/runs/{id}/judge.
func (h *Handler) JudgeRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if run == nil {
		respondNotFound(r, w, "run not found")
		return
	}

	var req struct {
		JudgeCarID string `json:"judge_car_id,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondBadRequest(r, w, "invalid request body")
			return
		}
	}

	summary, err := h.judgePipeline.Run(r.Context(), id, req.JudgeCarID)
	if err != nil {
		respondBadRequest(r, w, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// GetLeaderboard handles GET /api/leaderboard.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := h.views.Leaderboard(r.Context())
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// StreamRun handles GET /api/runs/{id}/stream: an SSE subscriber that replays telemetry
// events after Last-Event-ID (or ?after_seq=), heartbeats on inactivity, and closes once
// the run reaches a terminal status with nothing left to replay.
func (h *Handler) StreamRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if run == nil {
		respondNotFound(r, w, "run not found")
		return
	}

	if err := h.telemetryLog.Subscribe(w, r, id, func(runID string) (string, error) {
		run, err := h.store.GetRun(r.Context(), runID)
		if err != nil {
			return "", err
		}
		if run == nil {
			return string(models.RunFailed), nil
		}
		return string(run.Status), nil
	}); err != nil {
		respondError(r, w, http.StatusInternalServerError, ErrCodeInternalError, "streaming unsupported")
		return
	}
}
