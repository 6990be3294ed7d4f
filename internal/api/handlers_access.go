package api

import (
	"net/http"
	"strings"

	"github.com/address-vault/internal/logging"
	"github.com/address-vault/internal/service"
	"github.com/address-vault/internal/types"
)

// bearerToken extracts the access token from the Authorization header,
// falling back to the access_token query parameter.
func bearerToken(r *http.Request) types.AccessToken {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return types.AccessToken(strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
	}

	return types.AccessToken(r.URL.Query().Get("access_token"))
}

// splitFields normalizes a comma-separated field list, dropping empty
// entries so "city,,state" and "city, state" both parse cleanly.
func splitFields(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			fields = append(fields, trimmed)
		}
	}
	return fields
}

// getAddressRequest is the POST body for address retrieval.
type getAddressRequest struct {
	AccessToken         string   `json:"access_token,omitempty"`
	Fields              []string `json:"fields,omitempty"`
	IncludeVerification bool     `json:"include_verification,omitempty"`
}

// buildAccessInput assembles the validation input from either request
// style. The Authorization header wins over a token in the body so that
// SDK callers cannot be confused by a stale body value.
func (s *Server) buildAccessInput(w http.ResponseWriter, r *http.Request, enveloped bool) (*service.ValidateAndFetchInput, bool) {
	input := &service.ValidateAndFetchInput{
		Token:     bearerToken(r),
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	}

	if r.Method == http.MethodPost {
		var req getAddressRequest
		if err := parseJSONBody(r, &req); err != nil {
			serviceErr := &types.ServiceError{
				Code:    types.CodeInvalidRequest,
				Message: "invalid request body",
				Details: map[string]interface{}{"message": err.Error()},
			}
			if enveloped {
				respondEnvelopeError(w, http.StatusBadRequest, serviceErr)
			} else {
				respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: *serviceErr})
			}
			return nil, false
		}

		if input.Token.IsZero() && req.AccessToken != "" {
			input.Token = types.AccessToken(req.AccessToken)
		}
		input.RequestedFields = req.Fields
		input.IncludeVerification = req.IncludeVerification
	} else {
		query := r.URL.Query()
		input.RequestedFields = splitFields(query.Get("fields"))
		input.IncludeVerification = query.Get("include_verification") == "true"
	}

	return input, true
}

// handleGetAddress serves the legacy address endpoint with a flat
// response body.
func (s *Server) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	input, ok := s.buildAccessInput(w, r, false)
	if !ok {
		return
	}

	view, err := s.accessService.ValidateAndFetch(r.Context(), input)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handleAPIAddress serves the hardened address endpoint. It requires an
// X-App-ID header in addition to the bearer token and wraps everything
// in the response envelope.
func (s *Server) handleAPIAddress(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-App-ID") == "" {
		respondEnvelopeError(w, http.StatusBadRequest, &types.ServiceError{
			Code:    types.CodeInvalidRequest,
			Message: "X-App-ID header is required",
		})
		return
	}

	// X-SDK-Version is telemetry only, never an authorization input.
	if sdkVersion := r.Header.Get("X-SDK-Version"); sdkVersion != "" {
		logging.GetGlobalLogger().WithFields(map[string]interface{}{
			"app_id":      r.Header.Get("X-App-ID"),
			"sdk_version": sdkVersion,
		}).Debug("SDK address request")
	}

	input, ok := s.buildAccessInput(w, r, true)
	if !ok {
		return
	}

	view, err := s.accessService.ValidateAndFetch(r.Context(), input)
	if err != nil {
		respondEnvelopeServiceError(w, err)
		return
	}

	respondEnvelope(w, http.StatusOK, view)
}

// tokenCheckFailure is the failure body for the token check endpoint.
// Clients key off the valid flag before inspecting the error, so it is
// always present, unlike the plain error responses elsewhere.
type tokenCheckFailure struct {
	Valid  bool               `json:"valid"`
	Error  types.ServiceError `json:"error"`
	Reason string             `json:"reason,omitempty"`
}

// handleValidateToken reports token state without recording an access.
func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	validation, err := s.accessService.ValidateToken(r.Context(), bearerToken(r))
	if err != nil {
		serviceErr := asServiceError(err)
		failure := tokenCheckFailure{Error: *serviceErr}
		if reason, ok := serviceErr.Details["reason"].(string); ok {
			failure.Reason = reason
		}
		respondJSON(w, statusForCode(serviceErr.Code), failure)
		return
	}

	respondJSON(w, http.StatusOK, validation)
}
