package service

import (
	"context"
	"errors"
	"time"

	"github.com/address-vault/internal/models"
	"github.com/address-vault/internal/storage"
	"github.com/address-vault/internal/types"
)

// VerificationService reports address verification state for the public
// status endpoint. It exposes coarse location only, never the street line.
type VerificationService struct {
	addressRepo AddressRepository
	walletRepo  WalletRepository
}

// NewVerificationService creates a new verification service
func NewVerificationService(addressRepo AddressRepository, walletRepo WalletRepository) *VerificationService {
	return &VerificationService{
		addressRepo: addressRepo,
		walletRepo:  walletRepo,
	}
}

// VerificationStatusInput identifies whose status is requested. Exactly
// one of the identifiers must be set.
type VerificationStatusInput struct {
	UserID        string
	AddressID     string
	WalletAddress string
}

// VerificationStatusView is the status endpoint response payload
type VerificationStatusView struct {
	ID            string                  `json:"id"`
	UserID        string                  `json:"user_id"`
	Verification  types.VerificationInfo  `json:"verification"`
	Location      CoarseLocation          `json:"location"`
	Timestamps    Timestamps              `json:"timestamps"`
	LinkedWallets []*models.WalletAddress `json:"linked_wallets"`
}

// CoarseLocation is the non-sensitive subset of an address
type CoarseLocation struct {
	Country    string `json:"country"`
	State      string `json:"state"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

// Timestamps holds record audit timestamps
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetStatus resolves the target address by user, address id, or linked
// wallet, and returns its verification state with linked wallets.
func (s *VerificationService) GetStatus(ctx context.Context, input *VerificationStatusInput) (*VerificationStatusView, error) {
	if input.UserID == "" && input.AddressID == "" && input.WalletAddress == "" {
		return nil, &types.ServiceError{
			Code:    types.CodeInvalidRequest,
			Message: "provide one of user_id, address_id, or wallet_address",
		}
	}

	userID := input.UserID
	if userID == "" && input.WalletAddress != "" {
		owner, err := s.walletRepo.GetUserIDByWallet(ctx, input.WalletAddress)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, &types.ServiceError{
					Code:    types.CodeNotFound,
					Message: "no user found for the provided wallet address",
				}
			}
			return nil, storageError(err)
		}
		userID = owner
	}

	var address *models.PhysicalAddress
	var err error
	if input.AddressID != "" {
		address, err = s.addressRepo.GetByID(ctx, input.AddressID)
	} else {
		address, err = s.addressRepo.GetLatestByUserID(ctx, userID)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &types.ServiceError{
				Code:    types.CodeNotFound,
				Message: "no address found for the provided identifier",
			}
		}
		return nil, storageError(err)
	}

	wallets, err := s.walletRepo.ListByUserID(ctx, address.UserID)
	if err != nil {
		return nil, storageError(err)
	}
	if wallets == nil {
		wallets = []*models.WalletAddress{}
	}

	return &VerificationStatusView{
		ID:     address.ID,
		UserID: address.UserID,
		Verification: types.VerificationInfo{
			Status: address.VerificationStatus,
			Method: address.VerificationMethod,
			Date:   address.VerificationDate,
		},
		Location: CoarseLocation{
			Country:    address.Country,
			State:      address.State,
			City:       address.City,
			PostalCode: address.PostalCode,
		},
		Timestamps: Timestamps{
			CreatedAt: address.CreatedAt,
			UpdatedAt: address.UpdatedAt,
		},
		LinkedWallets: wallets,
	}, nil
}
