package models

import "time"

// WalletAddress links a blockchain wallet to a vault user. Linking
// requires a valid signature over a server-issued challenge message.
type WalletAddress struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Address   string    `json:"address" db:"address"`
	ChainID   string    `json:"chain_id" db:"chain_id"`
	IsPrimary bool      `json:"is_primary" db:"is_primary"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
