package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/address-vault/internal/logging"
	"github.com/address-vault/internal/models"
	"github.com/address-vault/internal/storage"
	"github.com/address-vault/internal/types"
	"github.com/google/uuid"
)

// Expiry bounds for issued permissions, in days.
const (
	MinExpiryDays = 1
	MaxExpiryDays = 365
)

// PermissionService mints, lists, and revokes address access grants.
type PermissionService struct {
	permissionRepo PermissionRepository
	accessLogRepo  AccessLogRepository
	logger         *logging.Logger
}

// NewPermissionService creates a new permission service
func NewPermissionService(
	permissionRepo PermissionRepository,
	accessLogRepo AccessLogRepository,
	logger *logging.Logger,
) *PermissionService {
	return &PermissionService{
		permissionRepo: permissionRepo,
		accessLogRepo:  accessLogRepo,
		logger:         logger,
	}
}

// IssuePermissionInput represents input for minting a new grant
type IssuePermissionInput struct {
	UserID  string `json:"user_id"`
	AppName string `json:"app_name"`
	// AppID is optional; a fresh one is generated when absent.
	AppID string `json:"app_id,omitempty"`
	// Scope defaults to the privacy-conservative flags when nil.
	Scope              *types.ScopeFlags `json:"scope,omitempty"`
	ExpiryDays         int               `json:"expiry_days"`
	MaxAccessCount     *int              `json:"max_access_count,omitempty"`
	AccessNotification bool              `json:"access_notification"`
}

// IssuePermissionResult carries the new grant and its raw secret. The
// token appears here and nowhere else; it is not retrievable again.
type IssuePermissionResult struct {
	Permission  *models.AddressPermission `json:"permission"`
	AccessToken string                    `json:"access_token"`
}

// IssuePermission mints a new capability for a named third-party app to
// access a subset of the caller's verified address fields. It inserts
// exactly one row and touches nothing else; in particular it never
// writes the audit log.
func (s *PermissionService) IssuePermission(ctx context.Context, input *IssuePermissionInput) (*IssuePermissionResult, error) {
	if input.UserID == "" {
		return nil, &types.ServiceError{
			Code:    types.CodeUnauthorized,
			Message: "authenticated user identity required",
		}
	}

	appName := strings.TrimSpace(input.AppName)
	if appName == "" {
		return nil, &types.ServiceError{
			Code:    types.CodeValidationError,
			Message: "app name is required",
		}
	}

	if input.ExpiryDays < MinExpiryDays || input.ExpiryDays > MaxExpiryDays {
		return nil, &types.ServiceError{
			Code:    types.CodeValidationError,
			Message: fmt.Sprintf("expiry days must be between %d and %d", MinExpiryDays, MaxExpiryDays),
			Details: map[string]interface{}{
				"expiry_days": input.ExpiryDays,
			},
		}
	}

	if input.MaxAccessCount != nil && *input.MaxAccessCount <= 0 {
		return nil, &types.ServiceError{
			Code:    types.CodeValidationError,
			Message: "max access count must be positive when set",
			Details: map[string]interface{}{
				"max_access_count": *input.MaxAccessCount,
			},
		}
	}

	scope := types.DefaultScopeFlags()
	if input.Scope != nil {
		scope = *input.Scope
	}

	appID := input.AppID
	if appID == "" {
		appID = "app_" + uuid.New().String()
	}

	token, err := generateAccessToken()
	if err != nil {
		return nil, storageError(err)
	}

	expiry := time.Now().UTC().AddDate(0, 0, input.ExpiryDays)

	permission := &models.AddressPermission{
		UserID:             input.UserID,
		AppID:              appID,
		AppName:            appName,
		AccessToken:        token,
		Scope:              scope,
		AccessExpiry:       &expiry,
		MaxAccessCount:     input.MaxAccessCount,
		AccessCount:        0,
		Revoked:            false,
		AccessNotification: input.AccessNotification,
	}

	if err := s.permissionRepo.Create(ctx, permission); err != nil {
		return nil, storageError(err)
	}

	s.logger.WithFields(map[string]interface{}{
		"permission_id": permission.ID,
		"app_name":      appName,
		"expiry_days":   input.ExpiryDays,
	}).Info("Issued address access permission")

	return &IssuePermissionResult{
		Permission:  permission,
		AccessToken: token.Raw(),
	}, nil
}

// ListPermissions returns all grants issued by a user, tokens redacted by
// the model's JSON encoding.
func (s *PermissionService) ListPermissions(ctx context.Context, userID string) ([]*models.AddressPermission, error) {
	if userID == "" {
		return nil, &types.ServiceError{
			Code:    types.CodeUnauthorized,
			Message: "authenticated user identity required",
		}
	}

	permissions, err := s.permissionRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}

	return permissions, nil
}

// Revoke terminally disables a grant owned by the caller. Revoking an
// already-revoked grant succeeds without changing the stored reason.
func (s *PermissionService) Revoke(ctx context.Context, permissionID, userID string, reason *string) error {
	if userID == "" {
		return &types.ServiceError{
			Code:    types.CodeUnauthorized,
			Message: "authenticated user identity required",
		}
	}

	permission, err := s.permissionRepo.GetByID(ctx, permissionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &types.ServiceError{
				Code:    types.CodeNotFound,
				Message: "permission not found",
			}
		}
		return storageError(err)
	}

	if permission.UserID != userID {
		// Do not reveal whether the row exists to non-owners.
		return &types.ServiceError{
			Code:    types.CodeNotFound,
			Message: "permission not found",
		}
	}

	if err := s.permissionRepo.Revoke(ctx, permissionID, reason); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &types.ServiceError{
				Code:    types.CodeNotFound,
				Message: "permission not found",
			}
		}
		return storageError(err)
	}

	s.logger.WithField("permission_id", permissionID).Info("Revoked address access permission")

	return nil
}

// AccessHistory lists audit entries for a grant owned by the caller.
type AccessHistory struct {
	Entries []*models.AccessLogEntry `json:"entries"`
	Total   int64                    `json:"total"`
}

// GetAccessHistory returns the audit trail for one permission.
func (s *PermissionService) GetAccessHistory(ctx context.Context, permissionID, userID string, limit, offset int) (*AccessHistory, error) {
	permission, err := s.permissionRepo.GetByID(ctx, permissionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &types.ServiceError{
				Code:    types.CodeNotFound,
				Message: "permission not found",
			}
		}
		return nil, storageError(err)
	}

	if permission.UserID != userID {
		return nil, &types.ServiceError{
			Code:    types.CodeNotFound,
			Message: "permission not found",
		}
	}

	entries, err := s.accessLogRepo.ListByPermissionID(ctx, permissionID, limit, offset)
	if err != nil {
		return nil, storageError(err)
	}

	total, err := s.accessLogRepo.CountByPermissionID(ctx, permissionID)
	if err != nil {
		return nil, storageError(err)
	}

	return &AccessHistory{Entries: entries, Total: total}, nil
}
