package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/review-backfill/internal/service"
	"github.com/review-backfill/internal/storage"
	"github.com/review-backfill/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeBadGateway    = "PLATFORM_UNAVAILABLE"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// mapServiceError maps service errors to HTTP status codes.
func mapServiceError(err error) (int, string, string) {
	var serviceErr *types.ServiceError
	if errors.As(err, &serviceErr) {
		switch serviceErr.Code {
		case types.ErrCodeConnectionNotFound:
			return http.StatusNotFound, ErrCodeNotFound, serviceErr.Message
		case types.ErrCodeJobNotFound:
			return http.StatusNotFound, ErrCodeNotFound, serviceErr.Message
		case types.ErrCodeJobAlreadyRunning:
			return http.StatusConflict, ErrCodeConflict, serviceErr.Message
		case types.ErrCodeNotEntitled:
			return http.StatusForbidden, ErrCodeForbidden, serviceErr.Message
		case types.ErrCodePlatformError:
			return http.StatusBadGateway, ErrCodeBadGateway, serviceErr.Message
		default:
			return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
		}
	}

	if errors.Is(err, storage.ErrJobNotFound) {
		return http.StatusNotFound, ErrCodeNotFound, "job not found"
	}

	// Upstream platform failures surface as a bad gateway so callers can
	// distinguish them from our own faults.
	if service.IsPlatformError(err) {
		return http.StatusBadGateway, ErrCodeBadGateway, "commerce platform request failed"
	}

	return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
}
