package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/address-vault/internal/models"
	"github.com/jackc/pgx/v5"
)

// AddressRepository handles physical address reads. The access-control
// core never writes this table; verification flows own it.
type AddressRepository struct {
	db *PostgresDB
}

// NewAddressRepository creates a new address repository
func NewAddressRepository(db *PostgresDB) *AddressRepository {
	return &AddressRepository{db: db}
}

const addressColumns = `
	id, user_id, street_address, city, state, postal_code, country,
	verification_status, verification_method, verification_date,
	created_at, updated_at
`

// GetLatestByUserID retrieves a user's most recent physical address.
func (r *AddressRepository) GetLatestByUserID(ctx context.Context, userID string) (*models.PhysicalAddress, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM physical_addresses
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	address, err := scanAddress(r.db.Pool().QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("address for user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}

	return address, nil
}

// GetByID retrieves a physical address by its row ID.
func (r *AddressRepository) GetByID(ctx context.Context, id string) (*models.PhysicalAddress, error) {
	query := `SELECT ` + addressColumns + ` FROM physical_addresses WHERE id = $1`

	address, err := scanAddress(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("address %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}

	return address, nil
}

func scanAddress(row rowScanner) (*models.PhysicalAddress, error) {
	var address models.PhysicalAddress

	err := row.Scan(
		&address.ID,
		&address.UserID,
		&address.StreetAddress,
		&address.City,
		&address.State,
		&address.PostalCode,
		&address.Country,
		&address.VerificationStatus,
		&address.VerificationMethod,
		&address.VerificationDate,
		&address.CreatedAt,
		&address.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &address, nil
}
