package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/llmrace/llmrace-backend/internal/executor"
	"github.com/llmrace/llmrace-backend/internal/models"
	"github.com/llmrace/llmrace-backend/internal/pkg/secret"
	"github.com/llmrace/llmrace-backend/internal/providers"
)

type connectionRequest struct {
	Name         string                 `json:"name"`
	Type         models.ConnectionType  `json:"type"`
	BaseURL      string                 `json:"base_url"`
	APIKey       *string                `json:"api_key,omitempty"`
	APIKeyEnvVar *string                `json:"api_key_env_var,omitempty"`
}

// ListConnections handles GET /api/connections.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.store.ListConnections(r.Context())
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, conns)
}

// CreateConnection handles POST /api/connections. A plaintext api_key is encrypted under
// the configured secret key before being stored; api_key_env_var is stored verbatim.
func (h *Handler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(r, w, "invalid request body")
		return
	}
	if req.Name == "" || req.Type == "" || req.BaseURL == "" {
		respondBadRequest(r, w, "name, type and base_url are required")
		return
	}

	now := time.Now().UTC()
	conn := &models.Connection{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Type:         req.Type,
		BaseURL:      req.BaseURL,
		APIKeyEnvVar: req.APIKeyEnvVar,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.APIKey != nil && *req.APIKey != "" {
		encrypted, err := secret.Encrypt(*req.APIKey, h.cfg.SecretKey)
		if err != nil {
			respondError(r, w, http.StatusInternalServerError, ErrCodeInternalError, "failed to encrypt api_key: "+err.Error())
			return
		}
		conn.APIKeyEncrypted = &encrypted
	}

	if err := h.store.CreateConnection(r.Context(), conn); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, conn)
}

// GetConnection handles GET /api/connections/{id}.
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conn, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if conn == nil {
		respondNotFound(r, w, "connection not found")
		return
	}
	respondJSON(w, http.StatusOK, conn)
}

// UpdateConnection handles PUT /api/connections/{id}.
func (h *Handler) UpdateConnection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if existing == nil {
		respondNotFound(r, w, "connection not found")
		return
	}

	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(r, w, "invalid request body")
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Type != "" {
		existing.Type = req.Type
	}
	if req.BaseURL != "" {
		existing.BaseURL = req.BaseURL
	}
	if req.APIKeyEnvVar != nil {
		existing.APIKeyEnvVar = req.APIKeyEnvVar
	}
	if req.APIKey != nil && *req.APIKey != "" {
		encrypted, err := secret.Encrypt(*req.APIKey, h.cfg.SecretKey)
		if err != nil {
			respondError(r, w, http.StatusInternalServerError, ErrCodeInternalError, "failed to encrypt api_key: "+err.Error())
			return
		}
		existing.APIKeyEncrypted = &encrypted
	}
	existing.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateConnection(r.Context(), existing); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, existing)
}

// DeleteConnection handles DELETE /api/connections/{id}.
func (h *Handler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.DeleteConnection(r.Context(), id); err != nil {
		respondInternalError(r, w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) connectionInfo(conn *models.Connection) providers.ConnectionInfo {
	return providers.ConnectionInfo{
		Type:    string(conn.Type),
		BaseURL: conn.BaseURL,
		APIKey:  executor.ResolveAPIKey(conn, h.cfg.SecretKey),
	}
}

// DiscoverModels handles GET /api/connections/{id}/models.
func (h *Handler) DiscoverModels(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conn, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if conn == nil {
		respondNotFound(r, w, "connection not found")
		return
	}

	settings, err := h.providerSettingsFor(r, conn.Type)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}

	models_, err := h.providerClient.DiscoverModels(r.Context(), h.connectionInfo(conn), settings.TimeoutMs)
	if err != nil {
		respondError(r, w, http.StatusBadGateway, ErrCodeProviderError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, models_)
}

// TestConnection handles POST /api/connections/{id}/test.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conn, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if conn == nil {
		respondNotFound(r, w, "connection not found")
		return
	}

	settings, err := h.providerSettingsFor(r, conn.Type)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}

	ok, latencyMs, discovered, errMsg := h.providerClient.TestConnection(r.Context(), h.connectionInfo(conn), settings.TimeoutMs)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         ok,
		"latency_ms": latencyMs,
		"models":     discovered,
		"error":      errMsg,
	})
}

// VerifyRuntime handles POST /api/connections/{id}/verify-runtime: reports which auth
// source would be used and pre-computes the same hints a failed generate call would carry.
func (h *Handler) VerifyRuntime(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conn, err := h.store.GetConnection(r.Context(), id)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}
	if conn == nil {
		respondNotFound(r, w, "connection not found")
		return
	}

	authSource := "none"
	if conn.APIKeyEncrypted != nil && *conn.APIKeyEncrypted != "" && h.cfg.SecretKey != "" {
		authSource = "encrypted_db"
	} else if conn.APIKeyEnvVar != nil && *conn.APIKeyEnvVar != "" {
		authSource = "env_var"
	}

	settings, err := h.providerSettingsFor(r, conn.Type)
	if err != nil {
		respondInternalError(r, w, err)
		return
	}

	ok, latencyMs, discovered, errMsg := h.providerClient.TestConnection(r.Context(), h.connectionInfo(conn), settings.TimeoutMs)

	var hints []string
	if !ok && errMsg != "" {
		hadKey := executor.ResolveAPIKey(conn, h.cfg.SecretKey) != ""
		if provErr := providers.ClassifyError(errors.New(errMsg), conn.BaseURL, hadKey); provErr != nil && provErr.Hint != "" {
			hints = append(hints, provErr.Hint)
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"auth_source": authSource,
		"ok":          ok,
		"latency_ms":  latencyMs,
		"models":      discovered,
		"error":       errMsg,
		"hints":       hints,
	})
}

func (h *Handler) providerSettingsFor(r *http.Request, providerType models.ConnectionType) (*models.ProviderSettings, error) {
	settings, err := h.store.GetProviderSettings(r.Context(), providerType)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		defaults := models.DefaultProviderSettings(providerType)
		return &defaults, nil
	}
	return settings, nil
}
