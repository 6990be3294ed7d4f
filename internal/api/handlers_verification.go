package api

import (
	"net/http"

	"github.com/address-vault/internal/service"
)

// handleVerificationStatus reports address verification state. The
// target can be named by user id, address id, or a linked wallet; an
// authenticated caller defaults to their own record.
func (s *Server) handleVerificationStatus(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	input := &service.VerificationStatusInput{
		UserID:        query.Get("user_id"),
		AddressID:     query.Get("address_id"),
		WalletAddress: query.Get("wallet_address"),
	}

	if input.UserID == "" && input.AddressID == "" && input.WalletAddress == "" {
		input.UserID = r.Header.Get("X-User-ID")
	}

	status, err := s.verificationService.GetStatus(r.Context(), input)
	if err != nil {
		respondEnvelopeServiceError(w, err)
		return
	}

	respondEnvelope(w, http.StatusOK, status)
}
