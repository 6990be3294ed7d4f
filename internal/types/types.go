// Package types provides common type definitions for the address vault system.
package types

import (
	"crypto/subtle"
	"time"
)

// VerificationStatus represents the trust state of a physical address
type VerificationStatus string

const (
	// VerificationUnverified represents an address that has not started verification
	VerificationUnverified VerificationStatus = "unverified"
	// VerificationPending represents an address with verification in progress
	VerificationPending VerificationStatus = "pending"
	// VerificationVerified represents a fully verified address
	VerificationVerified VerificationStatus = "verified"
	// VerificationRejected represents an address that failed verification
	VerificationRejected VerificationStatus = "rejected"
)

// AccessToken is the opaque bearer secret that authorizes address access.
// It is modeled as a distinct type so it is never accidentally logged or
// compared with non-constant-time equality.
type AccessToken string

// Equal compares two tokens in constant time.
func (t AccessToken) Equal(other AccessToken) bool {
	return subtle.ConstantTimeCompare([]byte(t), []byte(other)) == 1
}

// String returns a redacted representation. The raw value must be read
// explicitly via Raw; this keeps tokens out of log output and %v formatting.
func (t AccessToken) String() string {
	return "[REDACTED]"
}

// Raw returns the underlying secret.
func (t AccessToken) Raw() string {
	return string(t)
}

// IsZero reports whether the token is empty.
func (t AccessToken) IsZero() bool {
	return len(t) == 0
}

// AddressField identifies one component of a physical address
type AddressField string

const (
	// FieldStreetAddress is the street line of an address
	FieldStreetAddress AddressField = "street_address"
	// FieldCity is the city component
	FieldCity AddressField = "city"
	// FieldState is the state or province component
	FieldState AddressField = "state"
	// FieldPostalCode is the postal or ZIP code component
	FieldPostalCode AddressField = "postal_code"
	// FieldCountry is the country component
	FieldCountry AddressField = "country"
)

// AllAddressFields lists the five address components in canonical order.
var AllAddressFields = []AddressField{
	FieldStreetAddress,
	FieldCity,
	FieldState,
	FieldPostalCode,
	FieldCountry,
}

// fieldAliases maps accepted request field names to canonical fields.
// Canonical names map to themselves so lookup is a single table consult.
var fieldAliases = map[string]AddressField{
	"street_address": FieldStreetAddress,
	"street":         FieldStreetAddress,
	"city":           FieldCity,
	"state":          FieldState,
	"province":       FieldState,
	"postal_code":    FieldPostalCode,
	"zip":            FieldPostalCode,
	"zip_code":       FieldPostalCode,
	"country":        FieldCountry,
}

// NormalizeAddressField resolves a requested field name (canonical or
// alias) to its canonical field. The second return is false for names
// that do not resolve.
func NormalizeAddressField(name string) (AddressField, bool) {
	field, ok := fieldAliases[name]
	return field, ok
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Stable error codes surfaced to API clients. Business outcomes, not
// exception classes.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeValidationError    = "validation_error"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidAccessToken = "invalid_access_token"
	CodePermissionRevoked  = "permission_revoked"
	CodeTokenExpired       = "token_expired"
	CodeMaxAccessExceeded  = "max_access_exceeded"
	CodeAddressNotVerified = "address_not_verified"
	CodeNoAddress          = "no_address"
	CodeNotFound           = "not_found"
	CodeInvalidSignature   = "invalid_signature"
	CodeRateLimitExceeded  = "rate_limit_exceeded"
	CodeInternalError      = "internal_server_error"
)

// ScopeFlags holds the five per-field disclosure booleans on a permission
type ScopeFlags struct {
	ShareStreet     bool `json:"share_street"`
	ShareCity       bool `json:"share_city"`
	ShareState      bool `json:"share_state"`
	SharePostalCode bool `json:"share_postal_code"`
	ShareCountry    bool `json:"share_country"`
}

// DefaultScopeFlags returns the privacy-conservative issuance defaults:
// coarse location only, no street or postal code.
func DefaultScopeFlags() ScopeFlags {
	return ScopeFlags{
		ShareStreet:     false,
		ShareCity:       true,
		ShareState:      true,
		SharePostalCode: false,
		ShareCountry:    true,
	}
}

// Allows reports whether the scope permits disclosing the given field.
func (s ScopeFlags) Allows(field AddressField) bool {
	switch field {
	case FieldStreetAddress:
		return s.ShareStreet
	case FieldCity:
		return s.ShareCity
	case FieldState:
		return s.ShareState
	case FieldPostalCode:
		return s.SharePostalCode
	case FieldCountry:
		return s.ShareCountry
	default:
		return false
	}
}

// VerificationInfo describes how and when an address was verified
type VerificationInfo struct {
	Status VerificationStatus `json:"status"`
	Method *string            `json:"method,omitempty"`
	Date   *time.Time         `json:"date,omitempty"`
}
