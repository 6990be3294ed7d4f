package api

import (
	"net/http"

	"github.com/address-vault/internal/service"
	"github.com/address-vault/internal/types"
)

// handleLinkWallet verifies a signed challenge and links the wallet to
// the caller.
func (s *Server) handleLinkWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var input service.LinkWalletInput
	if err := parseJSONBody(r, &input); err != nil {
		respondEnvelopeError(w, http.StatusBadRequest, &types.ServiceError{
			Code:    types.CodeInvalidRequest,
			Message: "invalid request body",
			Details: map[string]interface{}{"message": err.Error()},
		})
		return
	}
	input.UserID = userID

	wallet, err := s.walletService.LinkWallet(r.Context(), &input)
	if err != nil {
		respondEnvelopeServiceError(w, err)
		return
	}

	respondEnvelope(w, http.StatusCreated, wallet)
}

// handleListWallets returns all wallets linked to the caller.
func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	wallets, err := s.walletService.ListWallets(r.Context(), userID)
	if err != nil {
		respondEnvelopeServiceError(w, err)
		return
	}

	respondEnvelope(w, http.StatusOK, map[string]interface{}{
		"wallets": wallets,
		"count":   len(wallets),
	})
}
