package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashAPIKey derives the stored digest of a plaintext key. Lookup and
// creation must use the same derivation or authentication never matches.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
