package token

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a short, non-reversible tag for raw, suitable for logs.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:4])
}
