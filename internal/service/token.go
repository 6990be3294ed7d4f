package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/address-vault/internal/types"
)

// tokenEntropyBytes is the raw entropy behind each access token.
// 24 bytes = 192 bits, hex-encoded to a 48-character secret.
const tokenEntropyBytes = 24

// generateAccessToken mints a cryptographically random opaque bearer
// token. The token is the sole credential for a grant and is shown to
// the issuing user exactly once.
func generateAccessToken() (types.AccessToken, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return types.AccessToken(hex.EncodeToString(buf)), nil
}
