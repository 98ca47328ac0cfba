package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/llmrace/llmrace-backend/internal/models"
)

type suiteRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ListSuites handles GET /api/suites.
func (h *Handler) ListSuites(w http.ResponseWriter, r *http.Request) {
	suites, err := h.store.ListSuites(r.Context())
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, suites)
}

// CreateSuite handles POST /api/suites.
func (h *Handler) CreateSuite(w http.ResponseWriter, r *http.Request) {
	var req suiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(r, w, "invalid request body")
		return
	}
	if req.Name == "" {
		respondBadRequest(r, w, "name is required")
		return
	}
	now := time.Now().UTC()
	suite := &models.Suite{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Category:  req.Category,
		IsDemo:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateSuite(r.Context(), suite); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, suite)
}

// GetSuite handles GET /api/suites/{id}.
func (h *Handler) GetSuite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	suite, err := h.store.GetSuite(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if suite == nil {
		respondNotFound(r, w, "suite not found")
		return
	}
	respondJSON(w, http.StatusOK, suite)
}

// UpdateSuite handles PUT /api/suites/{id}.
func (h *Handler) UpdateSuite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := h.store.GetSuite(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if existing == nil {
		respondNotFound(r, w, "suite not found")
		return
	}
	var req suiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(r, w, "invalid request body")
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Category != "" {
		existing.Category = req.Category
	}
	existing.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateSuite(r.Context(), existing); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, existing)
}

// DeleteSuite handles DELETE /api/suites/{id}.
func (h *Handler) DeleteSuite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.DeleteSuite(r.Context(), id); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type testRequest struct {
	Name                string  `json:"name"`
	SystemPrompt        *string `json:"system_prompt,omitempty"`
	UserPrompt          string  `json:"user_prompt"`
	ExpectedConstraints *string `json:"expected_constraints,omitempty"`
	ToolsSchema         *string `json:"tools_schema,omitempty"`
	OrderIndex          *int    `json:"order_index,omitempty"`
}

// ListTests handles GET /api/suites/{id}/tests.
func (h *Handler) ListTests(w http.ResponseWriter, r *http.Request) {
	suiteID := mux.Vars(r)["id"]
	tests, err := h.store.ListTestsBySuite(r.Context(), suiteID)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, tests)
}

// CreateTest handles POST /api/suites/{id}/tests. order_index defaults to the next
// available slot (current test count) when omitted, keeping (suite_id, order_index) unique.
func (h *Handler) CreateTest(w http.ResponseWriter, r *http.Request) {
	suiteID := mux.Vars(r)["id"]
	suite, err := h.store.GetSuite(r.Context(), suiteID)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if suite == nil {
		respondNotFound(r, w, "suite not found")
		return
	}

	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(r, w, "invalid request body")
		return
	}
	if req.UserPrompt == "" {
		respondBadRequest(r, w, "user_prompt is required")
		return
	}

	orderIndex := 0
	if req.OrderIndex != nil {
		orderIndex = *req.OrderIndex
	} else {
		existing, err := h.store.ListTestsBySuite(r.Context(), suiteID)
		if err != nil {
			respondInternalError(r, w, err)
			return
		}
		orderIndex = len(existing)
	}

	test := &models.Test{
		ID:                  uuid.New().String(),
		SuiteID:             suiteID,
		OrderIndex:          orderIndex,
		Name:                req.Name,
		SystemPrompt:        req.SystemPrompt,
		UserPrompt:          req.UserPrompt,
		ExpectedConstraints: req.ExpectedConstraints,
		ToolsSchema:         req.ToolsSchema,
		CreatedAt:           time.Now().UTC(),
	}
	if err := h.store.CreateTest(r.Context(), test); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, test)
}

// GetTest handles GET /api/tests/{id}.
func (h *Handler) GetTest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	test, err := h.store.GetTest(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if test == nil {
		respondNotFound(r, w, "test not found")
		return
	}
	respondJSON(w, http.StatusOK, test)
}

// UpdateTest handles PUT /api/tests/{id}.
func (h *Handler) UpdateTest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := h.store.GetTest(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if existing == nil {
		respondNotFound(r, w, "test not found")
		return
	}
	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(r, w, "invalid request body")
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.SystemPrompt != nil {
		existing.SystemPrompt = req.SystemPrompt
	}
	if req.UserPrompt != "" {
		existing.UserPrompt = req.UserPrompt
	}
	if req.ExpectedConstraints != nil {
		existing.ExpectedConstraints = req.ExpectedConstraints
	}
	if req.ToolsSchema != nil {
		existing.ToolsSchema = req.ToolsSchema
	}
	if req.OrderIndex != nil {
		existing.OrderIndex = *req.OrderIndex
	}
	if err := h.store.UpdateTest(r.Context(), existing); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, existing)
}

// DeleteTest handles DELETE /api/tests/{id}.
func (h *Handler) DeleteTest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.DeleteTest(r.Context(), id); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
