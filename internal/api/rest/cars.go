package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/llmrace/llmrace-backend/internal/models"
)

type carRequest struct {
	Name         string   `json:"name"`
	ConnectionID string   `json:"connection_id"`
	ModelName    string   `json:"model_name"`
	Temperature  *float64 `json:"temperature,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	Stop         *string  `json:"stop,omitempty"`
	Seed         *int     `json:"seed,omitempty"`
}

// ListCars handles GET /api/cars.
func (h *Handler) ListCars(w http.ResponseWriter, r *http.Request) {
	cars, err := h.store.ListCars(r.Context())
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, cars)
}

// CreateCar handles POST /api/cars.
func (h *Handler) CreateCar(w http.ResponseWriter, r *http.Request) {
	var req carRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(r, w, "invalid request body")
		return
	}
	if req.Name == "" || req.ConnectionID == "" || req.ModelName == "" {
		respondBadRequest(r, w, "name, connection_id and model_name are required")
		return
	}
	conn, err := h.store.GetConnection(r.Context(), req.ConnectionID)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if conn == nil {
		respondBadRequest(r, w, "connection_id does not reference an existing connection")
		return
	}

	temperature, topP := 0.7, 1.0
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if req.TopP != nil {
		topP = *req.TopP
	}

	now := time.Now().UTC()
	car := &models.Car{
		ID:           uuid.New().String(),
		Name:         req.Name,
		ConnectionID: req.ConnectionID,
		ModelName:    req.ModelName,
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    req.MaxTokens,
		Stop:         req.Stop,
		Seed:         req.Seed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.CreateCar(r.Context(), car); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, car)
}

// GetCar handles GET /api/cars/{id}.
func (h *Handler) GetCar(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	car, err := h.store.GetCar(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if car == nil {
		respondNotFound(r, w, "car not found")
		return
	}
	respondJSON(w, http.StatusOK, car)
}

// UpdateCar handles PUT /api/cars/{id}.
func (h *Handler) UpdateCar(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := h.store.GetCar(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if existing == nil {
		respondNotFound(r, w, "car not found")
		return
	}

	var req carRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(r, w, "invalid request body")
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.ConnectionID != "" {
		existing.ConnectionID = req.ConnectionID
	}
	if req.ModelName != "" {
		existing.ModelName = req.ModelName
	}
	if req.Temperature != nil {
		existing.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		existing.TopP = *req.TopP
	}
	if req.MaxTokens != nil {
		existing.MaxTokens = req.MaxTokens
	}
	if req.Stop != nil {
		existing.Stop = req.Stop
	}
	if req.Seed != nil {
		existing.Seed = req.Seed
	}
	existing.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateCar(r.Context(), existing); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, existing)
}

// DeleteCar handles DELETE /api/cars/{id}.
func (h *Handler) DeleteCar(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.DeleteCar(r.Context(), id); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
