package models

import (
	"time"

	"github.com/address-vault/internal/types"
)

// PhysicalAddress is the single source of truth for one user's verified
// postal address. The access-control core only ever reads this row.
type PhysicalAddress struct {
	ID            string `json:"id" db:"id"`
	UserID        string `json:"user_id" db:"user_id"`
	StreetAddress string `json:"street_address" db:"street_address"`
	City          string `json:"city" db:"city"`
	State         string `json:"state" db:"state"`
	PostalCode    string `json:"postal_code" db:"postal_code"`
	Country       string `json:"country" db:"country"`

	VerificationStatus types.VerificationStatus `json:"verification_status" db:"verification_status"`
	VerificationMethod *string                  `json:"verification_method,omitempty" db:"verification_method"`
	VerificationDate   *time.Time               `json:"verification_date,omitempty" db:"verification_date"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Verified reports whether the address may ever be disclosed. Only
// verified addresses pass the access validator, regardless of scope.
func (a *PhysicalAddress) Verified() bool {
	return a.VerificationStatus == types.VerificationVerified
}

// Field returns the value of one canonical address component.
func (a *PhysicalAddress) Field(field types.AddressField) string {
	switch field {
	case types.FieldStreetAddress:
		return a.StreetAddress
	case types.FieldCity:
		return a.City
	case types.FieldState:
		return a.State
	case types.FieldPostalCode:
		return a.PostalCode
	case types.FieldCountry:
		return a.Country
	default:
		return ""
	}
}
