package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/address-vault/internal/logging"
	"github.com/address-vault/internal/models"
	"github.com/address-vault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// WalletService links blockchain wallets to vault users. A link is only
// created when the claimed wallet produced a valid signature over the
// challenge message.
type WalletService struct {
	walletRepo WalletRepository
	logger     *logging.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(walletRepo WalletRepository, logger *logging.Logger) *WalletService {
	return &WalletService{
		walletRepo: walletRepo,
		logger:     logger,
	}
}

// LinkWalletInput represents a wallet link request
type LinkWalletInput struct {
	UserID    string `json:"user_id"`
	Address   string `json:"wallet_address"`
	ChainID   string `json:"chain_id"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	IsPrimary bool   `json:"is_primary"`
}

// LinkWallet verifies the EIP-191 personal-message signature and upserts
// the wallet link on success.
func (s *WalletService) LinkWallet(ctx context.Context, input *LinkWalletInput) (*models.WalletAddress, error) {
	if input.UserID == "" {
		return nil, &types.ServiceError{
			Code:    types.CodeUnauthorized,
			Message: "authenticated user identity required",
		}
	}

	if input.Address == "" || input.Message == "" || input.Signature == "" {
		return nil, &types.ServiceError{
			Code:    types.CodeInvalidRequest,
			Message: "wallet_address, message, and signature are required",
		}
	}

	if !common.IsHexAddress(input.Address) {
		return nil, &types.ServiceError{
			Code:    types.CodeInvalidRequest,
			Message: "invalid wallet address format",
		}
	}

	recovered, err := recoverSigner(input.Message, input.Signature)
	if err != nil {
		return nil, &types.ServiceError{
			Code:    types.CodeInvalidSignature,
			Message: "invalid signature format",
			Details: map[string]interface{}{
				"message": err.Error(),
			},
		}
	}

	claimed := common.HexToAddress(input.Address)
	if recovered != claimed {
		return nil, &types.ServiceError{
			Code:    types.CodeInvalidSignature,
			Message: "signature does not match the provided wallet address",
		}
	}

	chainID := input.ChainID
	if chainID == "" {
		chainID = "1"
	}

	wallet := &models.WalletAddress{
		UserID:    input.UserID,
		Address:   strings.ToLower(claimed.Hex()),
		ChainID:   chainID,
		IsPrimary: input.IsPrimary,
	}

	if err := s.walletRepo.Upsert(ctx, wallet); err != nil {
		return nil, storageError(err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": input.UserID,
		"wallet":  wallet.Address,
	}).Info("Linked wallet address")

	return wallet, nil
}

// ListWallets returns all wallets linked to a user.
func (s *WalletService) ListWallets(ctx context.Context, userID string) ([]*models.WalletAddress, error) {
	if userID == "" {
		return nil, &types.ServiceError{
			Code:    types.CodeUnauthorized,
			Message: "authenticated user identity required",
		}
	}

	wallets, err := s.walletRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}

	return wallets, nil
}

// recoverSigner recovers the address that signed an EIP-191 personal
// message ("\x19Ethereum Signed Message:\n" prefix).
func recoverSigner(message, signature string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("signature is not valid hex: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	// Wallets emit the recovery id as 27/28; go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	digest := crypto.Keccak256([]byte(prefixed))

	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}
