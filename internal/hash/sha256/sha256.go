// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements scraper.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of the input.
func (Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Short returns the first n hex characters of the digest, useful for
// filenames. n is clamped to the digest length.
func (h Hasher) Short(data []byte, n int) string {
	digest := h.Hash(data)
	if n <= 0 || n > len(digest) {
		return digest
	}
	return digest[:n]
}
