// Package hashing computes the content digests used for identity and
// deduplication. SHA-256, hex-encoded, deterministic for a given byte stream.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// SHA256FromReader streams r through SHA-256 and returns the hex digest.
func SHA256FromReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SHA256FromBytes returns the hex SHA-256 digest of data.
func SHA256FromBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
