package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/address-vault/internal/models"
	"github.com/address-vault/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PermissionRepository handles address permission persistence.
//
// AddressPermission rows have exactly three writers: Create at issuance,
// RecordAccess on a successful validation, and Revoke. Nothing else
// mutates them.
type PermissionRepository struct {
	db *PostgresDB
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *PostgresDB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

const permissionColumns = `
	id, user_id, app_id, app_name, access_token,
	share_street, share_city, share_state, share_postal_code, share_country,
	access_expiry, max_access_count, access_count, last_accessed,
	revoked, revocation_reason, access_notification, last_notification_at,
	created_at, updated_at
`

// Create inserts a new permission row. The access token must already be
// set by the issuer; this layer never generates credentials.
func (r *PermissionRepository) Create(ctx context.Context, permission *models.AddressPermission) error {
	if permission.ID == "" {
		permission.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	permission.CreatedAt = now
	permission.UpdatedAt = now

	query := `
		INSERT INTO address_permissions (
			id, user_id, app_id, app_name, access_token,
			share_street, share_city, share_state, share_postal_code, share_country,
			access_expiry, max_access_count, access_count,
			revoked, access_notification, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		permission.ID,
		permission.UserID,
		permission.AppID,
		permission.AppName,
		permission.AccessToken.Raw(),
		permission.Scope.ShareStreet,
		permission.Scope.ShareCity,
		permission.Scope.ShareState,
		permission.Scope.SharePostalCode,
		permission.Scope.ShareCountry,
		permission.AccessExpiry,
		permission.MaxAccessCount,
		permission.AccessCount,
		permission.Revoked,
		permission.AccessNotification,
		permission.CreatedAt,
		permission.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}

	return nil
}

// GetByToken looks up the single permission row addressable by the given
// access token.
func (r *PermissionRepository) GetByToken(ctx context.Context, token types.AccessToken) (*models.AddressPermission, error) {
	query := `SELECT ` + permissionColumns + ` FROM address_permissions WHERE access_token = $1`

	permission, err := scanPermission(r.db.Pool().QueryRow(ctx, query, token.Raw()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("permission for token: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get permission by token: %w", err)
	}

	return permission, nil
}

// GetByID retrieves a permission by its row ID.
func (r *PermissionRepository) GetByID(ctx context.Context, id string) (*models.AddressPermission, error) {
	query := `SELECT ` + permissionColumns + ` FROM address_permissions WHERE id = $1`

	permission, err := scanPermission(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("permission %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	return permission, nil
}

// ListByUser retrieves all permissions granted by a user, newest first.
func (r *PermissionRepository) ListByUser(ctx context.Context, userID string) ([]*models.AddressPermission, error) {
	query := `SELECT ` + permissionColumns + ` FROM address_permissions WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []*models.AddressPermission
	for rows.Next() {
		permission, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permissions: %w", err)
	}

	return permissions, nil
}

// RecordAccess applies the side effects of one successful validation as a
// single transaction: a conditional increment of access_count guarded by
// max_access_count, the last-accessed (and, when enabled, notification)
// timestamps, and the audit log row for exactly the fields returned.
//
// The increment and quota comparison are one conditional UPDATE, so
// concurrent calls against the same token can never push access_count
// past max_access_count. When the guard matches no row the access did
// not happen: no counter change, no audit row, ErrQuotaExhausted.
func (r *PermissionRepository) RecordAccess(ctx context.Context, entry *models.AccessLogEntry) (int, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin access transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	now := time.Now().UTC()

	updateQuery := `
		UPDATE address_permissions
		SET access_count = access_count + 1,
		    last_accessed = $2,
		    last_notification_at = CASE WHEN access_notification THEN $2 ELSE last_notification_at END,
		    updated_at = $2
		WHERE id = $1
		  AND revoked = FALSE
		  AND (max_access_count IS NULL OR access_count < max_access_count)
		RETURNING access_count
	`

	var newCount int
	err = tx.QueryRow(ctx, updateQuery, entry.PermissionID, now).Scan(&newCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrQuotaExhausted
		}
		return 0, fmt.Errorf("failed to increment access count: %w", err)
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.AccessedAt = now

	fields := make([]string, len(entry.AccessedFields))
	for i, f := range entry.AccessedFields {
		fields[i] = string(f)
	}

	insertQuery := `
		INSERT INTO access_logs (id, permission_id, accessed_fields, ip_address, user_agent, accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = tx.Exec(ctx, insertQuery,
		entry.ID,
		entry.PermissionID,
		fields,
		entry.IPAddress,
		entry.UserAgent,
		entry.AccessedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert access log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit access transaction: %w", err)
	}

	return newCount, nil
}

// Revoke terminally disables a permission. Revoking an already-revoked
// permission is a no-op success and preserves the original reason; no
// operation ever flips revoked back to false.
func (r *PermissionRepository) Revoke(ctx context.Context, id string, reason *string) error {
	query := `
		UPDATE address_permissions
		SET revoked = TRUE,
		    revocation_reason = CASE WHEN revoked THEN revocation_reason ELSE $2 END,
		    updated_at = CASE WHEN revoked THEN updated_at ELSE $3 END
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, id, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("permission %s: %w", id, ErrNotFound)
	}

	return nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermission(row rowScanner) (*models.AddressPermission, error) {
	var permission models.AddressPermission
	var rawToken string

	err := row.Scan(
		&permission.ID,
		&permission.UserID,
		&permission.AppID,
		&permission.AppName,
		&rawToken,
		&permission.Scope.ShareStreet,
		&permission.Scope.ShareCity,
		&permission.Scope.ShareState,
		&permission.Scope.SharePostalCode,
		&permission.Scope.ShareCountry,
		&permission.AccessExpiry,
		&permission.MaxAccessCount,
		&permission.AccessCount,
		&permission.LastAccessed,
		&permission.Revoked,
		&permission.RevocationReason,
		&permission.AccessNotification,
		&permission.LastNotificationAt,
		&permission.CreatedAt,
		&permission.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	permission.AccessToken = types.AccessToken(rawToken)
	return &permission, nil
}
