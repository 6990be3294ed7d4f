package models

import (
	"time"

	"github.com/address-vault/internal/types"
)

// AccessLogEntry is one append-only audit record of a successful address
// access. Entries are never mutated or deleted.
type AccessLogEntry struct {
	ID             string               `json:"id" db:"id"`
	PermissionID   string               `json:"permission_id" db:"permission_id"`
	AccessedFields []types.AddressField `json:"accessed_fields" db:"accessed_fields"`
	IPAddress      string               `json:"ip_address" db:"ip_address"`
	UserAgent      string               `json:"user_agent" db:"user_agent"`
	AccessedAt     time.Time            `json:"accessed_at" db:"accessed_at"`
}
