package rest

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/llmrace/llmrace-backend/internal/models"
)

// ListProviderSettings handles GET /api/settings/providers.
func (h *Handler) ListProviderSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.ListProviderSettings(r.Context())
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

type providerSettingsRequest struct {
	ProviderType   models.ConnectionType `json:"provider_type"`
	MaxInFlight    int                   `json:"max_in_flight"`
	TimeoutMs      int                   `json:"timeout_ms"`
	RetryCount     int                   `json:"retry_count"`
	RetryBackoffMs int                   `json:"retry_backoff_ms"`
}

// UpsertProviderSettings handles PUT /api/settings/providers. Creating a new row when
// provider_type has no stored settings yet; overwriting the existing row otherwise.
func (h *Handler) UpsertProviderSettings(w http.ResponseWriter, r *http.Request) {
	var req providerSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(r, w, "invalid request body")
		return
	}
	if req.ProviderType == "" {
		respondBadRequest(r, w, "provider_type is required")
		return
	}

	existing, err := h.store.GetProviderSettings(r.Context(), req.ProviderType)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}

	id := uuid.New().String()
	if existing != nil {
		id = existing.ID
	}

	settings := &models.ProviderSettings{
		ID:             id,
		ProviderType:   req.ProviderType,
		MaxInFlight:    req.MaxInFlight,
		TimeoutMs:      req.TimeoutMs,
		RetryCount:     req.RetryCount,
		RetryBackoffMs: req.RetryBackoffMs,
	}
	if settings.MaxInFlight <= 0 || settings.TimeoutMs <= 0 {
		defaults := models.DefaultProviderSettings(req.ProviderType)
		if settings.MaxInFlight <= 0 {
			settings.MaxInFlight = defaults.MaxInFlight
		}
		if settings.TimeoutMs <= 0 {
			settings.TimeoutMs = defaults.TimeoutMs
		}
	}

	if err := h.store.UpsertProviderSettings(r.Context(), settings); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}
