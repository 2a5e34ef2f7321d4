// Package sha256 pseudonymizes visitor keys for downstream visit events.
package sha256

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Hasher digests data with SHA-256, or HMAC-SHA256 when a salt is set so
// digests cannot be reversed by hashing candidate IPs.
type Hasher struct {
	salt []byte
}

// New returns a Hasher. An empty salt yields plain SHA-256.
func New(salt string) *Hasher {
	return &Hasher{salt: []byte(salt)}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	if len(h.salt) == 0 {
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	}
	mac := hmac.New(sha256.New, h.salt)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
