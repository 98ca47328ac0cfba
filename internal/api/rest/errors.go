package rest

import (
	"encoding/json"
	"net/http"

	"github.com/llmrace/llmrace-backend/internal/pkg/logger"
)

// APIError is the structured error body returned for every non-2xx response.
type APIError struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeProviderError  = "PROVIDER_ERROR"
	ErrCodeValidation     = "VALIDATION_FAILED"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(r *http.Request, w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, APIError{
		Error:     message,
		Code:      code,
		Message:   message,
		RequestID: logger.FromContext(r.Context()),
	})
}

func respondNotFound(r *http.Request, w http.ResponseWriter, message string) {
	respondError(r, w, http.StatusNotFound, ErrCodeNotFound, message)
}

func respondBadRequest(r *http.Request, w http.ResponseWriter, message string) {
	respondError(r, w, http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

func respondInternalError(r *http.Request, w http.ResponseWriter, err error) {
	respondError(r, w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
}
