package keycache

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint returns a short BLAKE3 digest of value for logs, so a rotated
// secret can be told apart from the old one without logging either.
func Fingerprint(value string) string {
	sum := blake3.Sum256([]byte(value))
	return hex.EncodeToString(sum[:6])
}
