// Package models provides data models for the address vault system.
package models

import (
	"time"

	"github.com/address-vault/internal/types"
)

// AddressPermission is one capability grant: it binds a requesting app to
// a scoped, time/count-bounded view of one user's verified address.
type AddressPermission struct {
	ID      string `json:"id" db:"id"`
	UserID  string `json:"user_id" db:"user_id"`
	AppID   string `json:"app_id" db:"app_id"`
	AppName string `json:"app_name" db:"app_name"`

	// AccessToken is the sole credential for this grant. It is returned to
	// the user exactly once at issuance and is excluded from JSON output.
	AccessToken types.AccessToken `json:"-" db:"access_token"`

	Scope types.ScopeFlags `json:"permissions" db:"-"`

	AccessExpiry   *time.Time `json:"access_expiry,omitempty" db:"access_expiry"`
	MaxAccessCount *int       `json:"max_access_count,omitempty" db:"max_access_count"`
	AccessCount    int        `json:"access_count" db:"access_count"`
	LastAccessed   *time.Time `json:"last_accessed,omitempty" db:"last_accessed"`

	Revoked          bool    `json:"revoked" db:"revoked"`
	RevocationReason *string `json:"revocation_reason,omitempty" db:"revocation_reason"`

	AccessNotification bool       `json:"access_notification" db:"access_notification"`
	LastNotificationAt *time.Time `json:"last_notification_at,omitempty" db:"last_notification_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ExpiredAt reports whether the grant is time-expired at the given instant.
// A grant expires strictly after its expiry timestamp; a call at exactly
// access_expiry is still valid.
func (p *AddressPermission) ExpiredAt(now time.Time) bool {
	return p.AccessExpiry != nil && now.After(*p.AccessExpiry)
}

// QuotaExhausted reports whether the usage counter has reached the grant's
// maximum access count. Grants without a maximum never exhaust.
func (p *AddressPermission) QuotaExhausted() bool {
	return p.MaxAccessCount != nil && p.AccessCount >= *p.MaxAccessCount
}

// RemainingAccesses returns the remaining quota, or nil when unbounded.
func (p *AddressPermission) RemainingAccesses() *int {
	if p.MaxAccessCount == nil {
		return nil
	}
	remaining := *p.MaxAccessCount - p.AccessCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
