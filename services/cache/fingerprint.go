package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint derives the deterministic 256-bit cache key for a request
// as the SHA-256 of "user:query:k:model" (hex-encoded). An empty model
// is canonicalized to "default" so an explicit default-model request
// and an omitted model hash identically.
func Fingerprint(userID string, query string, k int, model string) string {
	if model == "" {
		model = "default"
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d:%s", userID, query, k, model)))
	return hex.EncodeToString(sum[:])
}
