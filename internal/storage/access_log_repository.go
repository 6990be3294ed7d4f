package storage

import (
	"context"
	"fmt"

	"github.com/address-vault/internal/models"
	"github.com/address-vault/internal/types"
)

// AccessLogRepository reads the append-only audit log. Writes happen
// exclusively inside PermissionRepository.RecordAccess so the audit row
// and the counter increment share one transaction.
type AccessLogRepository struct {
	db *PostgresDB
}

// NewAccessLogRepository creates a new access log repository
func NewAccessLogRepository(db *PostgresDB) *AccessLogRepository {
	return &AccessLogRepository{db: db}
}

// ListByPermissionID retrieves audit entries for one permission, newest
// first, with pagination.
func (r *AccessLogRepository) ListByPermissionID(ctx context.Context, permissionID string, limit, offset int) ([]*models.AccessLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, permission_id, accessed_fields, ip_address, user_agent, accessed_at
		FROM access_logs
		WHERE permission_id = $1
		ORDER BY accessed_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, permissionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list access logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.AccessLogEntry
	for rows.Next() {
		var entry models.AccessLogEntry
		var fields []string

		err := rows.Scan(
			&entry.ID,
			&entry.PermissionID,
			&fields,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.AccessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access log: %w", err)
		}

		entry.AccessedFields = make([]types.AddressField, len(fields))
		for i, f := range fields {
			entry.AccessedFields[i] = types.AddressField(f)
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access logs: %w", err)
	}

	return entries, nil
}

// CountByPermissionID returns the number of audit entries for a permission.
func (r *AccessLogRepository) CountByPermissionID(ctx context.Context, permissionID string) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM access_logs WHERE permission_id = $1`

	if err := r.db.Pool().QueryRow(ctx, query, permissionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count access logs: %w", err)
	}

	return count, nil
}
