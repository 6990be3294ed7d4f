package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/address-vault/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository handles linked wallet persistence
type WalletRepository struct {
	db *PostgresDB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *PostgresDB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Upsert links a wallet to a user, or refreshes an existing link.
func (r *WalletRepository) Upsert(ctx context.Context, wallet *models.WalletAddress) error {
	if wallet.ID == "" {
		wallet.ID = uuid.New().String()
	}
	wallet.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO wallet_addresses (id, user_id, address, chain_id, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, address, chain_id)
		DO UPDATE SET is_primary = EXCLUDED.is_primary
	`

	_, err := r.db.Pool().Exec(ctx, query,
		wallet.ID,
		wallet.UserID,
		wallet.Address,
		wallet.ChainID,
		wallet.IsPrimary,
		wallet.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert wallet: %w", err)
	}

	return nil
}

// ListByUserID retrieves all wallets linked to a user.
func (r *WalletRepository) ListByUserID(ctx context.Context, userID string) ([]*models.WalletAddress, error) {
	query := `
		SELECT id, user_id, address, chain_id, is_primary, created_at
		FROM wallet_addresses
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*models.WalletAddress
	for rows.Next() {
		var wallet models.WalletAddress
		err := rows.Scan(
			&wallet.ID,
			&wallet.UserID,
			&wallet.Address,
			&wallet.ChainID,
			&wallet.IsPrimary,
			&wallet.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, &wallet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallets: %w", err)
	}

	return wallets, nil
}

// GetUserIDByWallet resolves the owning user for a wallet address.
func (r *WalletRepository) GetUserIDByWallet(ctx context.Context, address string) (string, error) {
	var userID string
	query := `SELECT user_id FROM wallet_addresses WHERE address = $1 LIMIT 1`

	err := r.db.Pool().QueryRow(ctx, query, address).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("wallet %s: %w", address, ErrNotFound)
		}
		return "", fmt.Errorf("failed to resolve wallet owner: %w", err)
	}

	return userID, nil
}
