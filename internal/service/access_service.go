package service

import (
	"context"
	"errors"
	"time"

	"github.com/address-vault/internal/logging"
	"github.com/address-vault/internal/models"
	"github.com/address-vault/internal/storage"
	"github.com/address-vault/internal/types"
)

// AccessService is the single gatekeeper for third-party address reads.
// It is stateless per call; its only writes are the counter/timestamp
// update and audit log row committed together on success.
type AccessService struct {
	permissionRepo PermissionRepository
	addressRepo    AddressRepository
	walletRepo     WalletRepository
	analytics      AccessEventRecorder
	logger         *logging.Logger
}

// NewAccessService creates a new access service. The analytics recorder
// is optional; pass nil to disable the ClickHouse mirror.
func NewAccessService(
	permissionRepo PermissionRepository,
	addressRepo AddressRepository,
	walletRepo WalletRepository,
	analytics AccessEventRecorder,
	logger *logging.Logger,
) *AccessService {
	return &AccessService{
		permissionRepo: permissionRepo,
		addressRepo:    addressRepo,
		walletRepo:     walletRepo,
		analytics:      analytics,
		logger:         logger,
	}
}

// ValidateAndFetchInput carries one validation request
type ValidateAndFetchInput struct {
	Token               types.AccessToken
	RequestedFields     []string
	IncludeVerification bool
	ClientIP            string
	UserAgent           string
}

// PermissionInfo describes the grant state after a successful access
type PermissionInfo struct {
	AppID          string           `json:"app_id"`
	AppName        string           `json:"app_name"`
	AccessCount    int              `json:"access_count"`
	MaxAccessCount *int             `json:"max_access_count,omitempty"`
	Remaining      *int             `json:"remaining_accesses,omitempty"`
	AccessExpiry   *time.Time       `json:"access_expiry,omitempty"`
	Permissions    types.ScopeFlags `json:"permissions"`
}

// AddressView is the successful validation response
type AddressView struct {
	Address       map[types.AddressField]string `json:"address"`
	Permission    PermissionInfo                `json:"permission"`
	Verification  *types.VerificationInfo       `json:"verification,omitempty"`
	LinkedWallets []*models.WalletAddress       `json:"linked_wallets,omitempty"`
}

// TokenValidation is the result of a side-effect-free token check
type TokenValidation struct {
	Valid          bool              `json:"valid"`
	AppID          string            `json:"app_id,omitempty"`
	AppName        string            `json:"app_name,omitempty"`
	AccessCount    int               `json:"access_count,omitempty"`
	MaxAccessCount *int              `json:"max_access_count,omitempty"`
	AccessExpiry   *time.Time        `json:"access_expiry,omitempty"`
	Permissions    *types.ScopeFlags `json:"permissions,omitempty"`
}

// ValidateAndFetch runs the access state machine over one permission row,
// strictly in order: lookup, revocation, expiry, quota, address existence
// and verification, field resolution, then side effects. Each failure is
// terminal for the call and carries a distinct error code.
//
// On success the counter increment and the audit row commit together;
// the caller never sees address data that was not recorded, and no access
// is recorded without data being returned on the same call.
func (s *AccessService) ValidateAndFetch(ctx context.Context, input *ValidateAndFetchInput) (*AddressView, error) {
	start := time.Now()

	if input.Token.IsZero() {
		return nil, &types.ServiceError{
			Code:    types.CodeInvalidRequest,
			Message: "missing access token",
		}
	}

	// Step 1: lookup by token
	permission, err := s.permissionRepo.GetByToken(ctx, input.Token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &types.ServiceError{
				Code:    types.CodeInvalidAccessToken,
				Message: "invalid access token",
			}
		}
		return nil, storageError(err)
	}

	// Steps 2-4: revocation, expiry, quota
	if denied := checkPermissionUsable(permission, time.Now().UTC()); denied != nil {
		return nil, denied
	}

	// Step 5: address existence and verification
	address, err := s.addressRepo.GetLatestByUserID(ctx, permission.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &types.ServiceError{
				Code:    types.CodeNoAddress,
				Message: "no address found for this user",
			}
		}
		return nil, storageError(err)
	}

	if !address.Verified() {
		return nil, &types.ServiceError{
			Code:    types.CodeAddressNotVerified,
			Message: "address has not been verified",
			Details: map[string]interface{}{
				"status": address.VerificationStatus,
			},
		}
	}

	// Step 6: field resolution under the scope ceiling
	fields, fieldErr := resolveRequestedFields(permission.Scope, input.RequestedFields)
	if fieldErr != nil {
		return nil, fieldErr
	}

	// Step 7: side effects, one transaction. The conditional increment
	// re-checks the quota at the storage layer so concurrent calls with
	// the same token cannot overshoot max_access_count.
	entry := &models.AccessLogEntry{
		PermissionID:   permission.ID,
		AccessedFields: fields,
		IPAddress:      input.ClientIP,
		UserAgent:      input.UserAgent,
	}

	newCount, err := s.permissionRepo.RecordAccess(ctx, entry)
	if err != nil {
		if errors.Is(err, storage.ErrQuotaExhausted) {
			return nil, maxAccessError(permission)
		}
		return nil, storageError(err)
	}
	permission.AccessCount = newCount

	// Step 8: response assembly
	view := &AddressView{
		Address: filterAddress(address, fields),
		Permission: PermissionInfo{
			AppID:          permission.AppID,
			AppName:        permission.AppName,
			AccessCount:    permission.AccessCount,
			MaxAccessCount: permission.MaxAccessCount,
			Remaining:      permission.RemainingAccesses(),
			AccessExpiry:   permission.AccessExpiry,
			Permissions:    permission.Scope,
		},
	}

	if input.IncludeVerification {
		view.Verification = &types.VerificationInfo{
			Status: address.VerificationStatus,
			Method: address.VerificationMethod,
			Date:   address.VerificationDate,
		}

		wallets, err := s.walletRepo.ListByUserID(ctx, permission.UserID)
		if err != nil {
			// The access has already been recorded; degrade to an empty
			// wallet list rather than failing the whole call.
			s.logger.WithError(err).Warn("Failed to load linked wallets")
		} else {
			view.LinkedWallets = wallets
		}
	}

	s.recordAnalytics(ctx, permission, len(fields), input.ClientIP, start)

	return view, nil
}

// ValidateToken checks a token without touching the address or recording
// an access: lookup, revocation, expiry, and quota only.
func (s *AccessService) ValidateToken(ctx context.Context, token types.AccessToken) (*TokenValidation, error) {
	if token.IsZero() {
		return nil, &types.ServiceError{
			Code:    types.CodeInvalidRequest,
			Message: "missing access token",
		}
	}

	permission, err := s.permissionRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &types.ServiceError{
				Code:    types.CodeInvalidAccessToken,
				Message: "invalid access token",
			}
		}
		return nil, storageError(err)
	}

	if denied := checkPermissionUsable(permission, time.Now().UTC()); denied != nil {
		return nil, denied
	}

	scope := permission.Scope
	return &TokenValidation{
		Valid:          true,
		AppID:          permission.AppID,
		AppName:        permission.AppName,
		AccessCount:    permission.AccessCount,
		MaxAccessCount: permission.MaxAccessCount,
		AccessExpiry:   permission.AccessExpiry,
		Permissions:    &scope,
	}, nil
}

// checkPermissionUsable evaluates the revocation, expiry, and quota gates
// in order. A nil return means the permission may proceed to address
// resolution.
func checkPermissionUsable(permission *models.AddressPermission, now time.Time) *types.ServiceError {
	if permission.Revoked {
		details := map[string]interface{}{}
		if permission.RevocationReason != nil {
			details["reason"] = *permission.RevocationReason
		}
		return &types.ServiceError{
			Code:    types.CodePermissionRevoked,
			Message: "permission has been revoked",
			Details: details,
		}
	}

	if permission.ExpiredAt(now) {
		return &types.ServiceError{
			Code:    types.CodeTokenExpired,
			Message: "access token has expired",
			Details: map[string]interface{}{
				"expired_at": permission.AccessExpiry,
			},
		}
	}

	if permission.QuotaExhausted() {
		return maxAccessError(permission)
	}

	return nil
}

func maxAccessError(permission *models.AddressPermission) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.CodeMaxAccessExceeded,
		Message: "maximum access count exceeded",
		Details: map[string]interface{}{
			"max_access_count": permission.MaxAccessCount,
			"access_count":     permission.AccessCount,
		},
	}
}

// storageError re-maps an infrastructure failure into the stable error
// taxonomy, keeping the underlying message out of the client-facing text.
func storageError(err error) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.CodeInternalError,
		Message: "an internal error occurred",
		Details: map[string]interface{}{
			"message": err.Error(),
		},
	}
}

func (s *AccessService) recordAnalytics(ctx context.Context, permission *models.AddressPermission, fieldCount int, clientIP string, start time.Time) {
	if s.analytics == nil {
		return
	}

	event := &storage.AccessEvent{
		PermissionID: permission.ID,
		AppID:        permission.AppID,
		UserID:       permission.UserID,
		FieldCount:   uint8(fieldCount), // #nosec G115 - at most five fields
		ClientIP:     clientIP,
		LatencyMS:    uint32(time.Since(start).Milliseconds()), // #nosec G115
		AccessedAt:   time.Now().UTC(),
	}

	if err := s.analytics.Record(ctx, event); err != nil {
		s.logger.WithError(err).Warn("Failed to record access analytics event")
	}
}
