package refile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	// DigestLength is the length of a hex-encoded SHA-256 digest.
	DigestLength = 64

	// ShortIDLength is the number of leading digest characters used as a short id.
	ShortIDLength = 12

	// HashPrefix marks a digest as SHA-256 in wire formats ("sha256:<hex>").
	HashPrefix = "sha256:"
)

// Digest streams r through SHA-256 and returns the lowercase hex digest.
// Read errors are returned as-is (wrapped); no partial digest is ever produced.
func Digest(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestBytes returns the lowercase hex SHA-256 digest of data.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortID returns the short identifier for a digest.
func ShortID(digest string) string {
	if len(digest) < ShortIDLength {
		return digest
	}
	return digest[:ShortIDLength]
}

// FormatHash renders a digest in the "sha256:<hex>" wire form.
func FormatHash(digest string) string {
	return HashPrefix + digest
}

// ParseHash extracts the digest from a "sha256:<hex>" string.
func ParseHash(hash string) (string, error) {
	digest, ok := strings.CutPrefix(hash, HashPrefix)
	if !ok || !IsDigest(digest) {
		return "", fmt.Errorf("%w: malformed hash %q", ErrInvalidInput, hash)
	}
	return digest, nil
}

// IsDigest reports whether s is a 64-character lowercase hex string.
func IsDigest(s string) bool {
	return len(s) == DigestLength && isLowerHex(s)
}

// IsShortID reports whether s is a 12-character lowercase hex string.
func IsShortID(s string) bool {
	return len(s) == ShortIDLength && isLowerHex(s)
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
