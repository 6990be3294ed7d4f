package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/address-vault/internal/types"
	"github.com/google/uuid"
)

// ErrorResponse represents a flat API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// Envelope is the hardened response format: success flag, payload or
// error, and response metadata.
type Envelope struct {
	Success bool                `json:"success"`
	Data    interface{}         `json:"data,omitempty"`
	Error   *types.ServiceError `json:"error,omitempty"`
	Meta    EnvelopeMeta        `json:"meta"`
}

// EnvelopeMeta carries response metadata for the hardened endpoints.
type EnvelopeMeta struct {
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
}

func newMeta() EnvelopeMeta {
	return EnvelopeMeta{
		Version:   "v1",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: uuid.New().String(),
	}
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends a flat error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// respondEnvelope sends an enveloped success response.
func respondEnvelope(w http.ResponseWriter, statusCode int, data interface{}) {
	respondJSON(w, statusCode, Envelope{
		Success: true,
		Data:    data,
		Meta:    newMeta(),
	})
}

// respondEnvelopeError sends an enveloped error response.
func respondEnvelopeError(w http.ResponseWriter, statusCode int, serviceErr *types.ServiceError) {
	respondJSON(w, statusCode, Envelope{
		Success: false,
		Error:   serviceErr,
		Meta:    newMeta(),
	})
}

// parseJSONBody parses a JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// statusForCode maps stable error codes to HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case types.CodeInvalidRequest, types.CodeValidationError, types.CodeInvalidSignature:
		return http.StatusBadRequest
	case types.CodeUnauthorized, types.CodeInvalidAccessToken, types.CodePermissionRevoked, types.CodeTokenExpired:
		return http.StatusUnauthorized
	case types.CodeMaxAccessExceeded, types.CodeAddressNotVerified:
		return http.StatusForbidden
	case types.CodeNoAddress, types.CodeNotFound:
		return http.StatusNotFound
	case types.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// asServiceError converts any error into a client-safe ServiceError.
// Unexpected errors become internal_server_error with the underlying
// message demoted to details.
func asServiceError(err error) *types.ServiceError {
	var serviceErr *types.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}

	return &types.ServiceError{
		Code:    types.CodeInternalError,
		Message: "an internal error occurred",
		Details: map[string]interface{}{
			"message": err.Error(),
		},
	}
}

// respondServiceError writes a flat error response for a service failure.
func respondServiceError(w http.ResponseWriter, err error) {
	serviceErr := asServiceError(err)
	respondJSON(w, statusForCode(serviceErr.Code), ErrorResponse{Error: *serviceErr})
}

// respondEnvelopeServiceError writes an enveloped error response.
func respondEnvelopeServiceError(w http.ResponseWriter, err error) {
	serviceErr := asServiceError(err)
	respondEnvelopeError(w, statusForCode(serviceErr.Code), serviceErr)
}
