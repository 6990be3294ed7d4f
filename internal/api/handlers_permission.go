package api

import (
	"net/http"
	"strconv"

	"github.com/address-vault/internal/service"
	"github.com/address-vault/internal/types"
	"github.com/gorilla/mux"
)

// defaultExpiryDays applies when an issuance request omits expiry_days.
const defaultExpiryDays = 30

// requireUserID reads the authenticated caller identity. Missing
// identity is rejected before the service layer runs.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		respondEnvelopeError(w, http.StatusUnauthorized, &types.ServiceError{
			Code:    types.CodeUnauthorized,
			Message: "authenticated user identity required",
		})
		return "", false
	}
	return userID, true
}

// handleIssuePermission mints a new access grant for the caller.
func (s *Server) handleIssuePermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var input service.IssuePermissionInput
	if err := parseJSONBody(r, &input); err != nil {
		respondEnvelopeError(w, http.StatusBadRequest, &types.ServiceError{
			Code:    types.CodeInvalidRequest,
			Message: "invalid request body",
			Details: map[string]interface{}{"message": err.Error()},
		})
		return
	}

	// The identity header is authoritative; a user_id in the body is
	// ignored rather than rejected.
	input.UserID = userID
	if input.ExpiryDays == 0 {
		input.ExpiryDays = defaultExpiryDays
	}

	result, err := s.permissionService.IssuePermission(r.Context(), &input)
	if err != nil {
		respondEnvelopeServiceError(w, err)
		return
	}

	respondEnvelope(w, http.StatusCreated, result)
}

// handleListPermissions returns all grants issued by the caller.
func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	permissions, err := s.permissionService.ListPermissions(r.Context(), userID)
	if err != nil {
		respondEnvelopeServiceError(w, err)
		return
	}

	respondEnvelope(w, http.StatusOK, map[string]interface{}{
		"permissions": permissions,
		"count":       len(permissions),
	})
}

// revokeRequest is the optional revocation body.
type revokeRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// handleRevokePermission terminally disables a grant. Repeating the call
// for an already-revoked grant succeeds.
func (s *Server) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	permissionID := mux.Vars(r)["id"]

	var req revokeRequest
	if r.ContentLength > 0 {
		if err := parseJSONBody(r, &req); err != nil {
			respondEnvelopeError(w, http.StatusBadRequest, &types.ServiceError{
				Code:    types.CodeInvalidRequest,
				Message: "invalid request body",
				Details: map[string]interface{}{"message": err.Error()},
			})
			return
		}
	}

	if err := s.permissionService.Revoke(r.Context(), permissionID, userID, req.Reason); err != nil {
		respondEnvelopeServiceError(w, err)
		return
	}

	respondEnvelope(w, http.StatusOK, map[string]interface{}{
		"revoked":       true,
		"permission_id": permissionID,
	})
}

// handleAccessHistory returns the audit trail for one grant.
func (s *Server) handleAccessHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	permissionID := mux.Vars(r)["id"]

	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	history, err := s.permissionService.GetAccessHistory(r.Context(), permissionID, userID, limit, offset)
	if err != nil {
		respondEnvelopeServiceError(w, err)
		return
	}

	respondEnvelope(w, http.StatusOK, history)
}
