// Package service implements the address vault business logic: permission
// issuance, access validation, revocation, wallet linking, and
// verification status.
package service

import (
	"context"

	"github.com/address-vault/internal/models"
	"github.com/address-vault/internal/storage"
	"github.com/address-vault/internal/types"
)

// Repository interfaces for dependency injection

// PermissionRepository defines the persistence operations on permission grants
type PermissionRepository interface {
	Create(ctx context.Context, permission *models.AddressPermission) error
	GetByID(ctx context.Context, id string) (*models.AddressPermission, error)
	GetByToken(ctx context.Context, token types.AccessToken) (*models.AddressPermission, error)
	ListByUser(ctx context.Context, userID string) ([]*models.AddressPermission, error)
	RecordAccess(ctx context.Context, entry *models.AccessLogEntry) (int, error)
	Revoke(ctx context.Context, id string, reason *string) error
}

// AddressRepository defines the read-only operations on physical addresses
type AddressRepository interface {
	GetLatestByUserID(ctx context.Context, userID string) (*models.PhysicalAddress, error)
	GetByID(ctx context.Context, id string) (*models.PhysicalAddress, error)
}

// AccessLogRepository defines the read operations on the audit log
type AccessLogRepository interface {
	ListByPermissionID(ctx context.Context, permissionID string, limit, offset int) ([]*models.AccessLogEntry, error)
	CountByPermissionID(ctx context.Context, permissionID string) (int64, error)
}

// WalletRepository defines the operations on linked wallets
type WalletRepository interface {
	Upsert(ctx context.Context, wallet *models.WalletAddress) error
	ListByUserID(ctx context.Context, userID string) ([]*models.WalletAddress, error)
	GetUserIDByWallet(ctx context.Context, address string) (string, error)
}

// AccessEventRecorder mirrors successful accesses into the analytics
// store. Implementations must be safe to fail independently of the
// access itself.
type AccessEventRecorder interface {
	Record(ctx context.Context, event *storage.AccessEvent) error
}
