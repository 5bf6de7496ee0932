// Package cryptoutil issues and recognizes opaque session tokens.
package cryptoutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenBytes is the entropy of an issued token; its hex form is twice as long.
const TokenBytes = 32

// NewToken returns a random hex-encoded token.
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsToken reports whether s has the shape of a token from NewToken.
func IsToken(s string) bool {
	return len(s) == 2*TokenBytes && IsHexString(s)
}

// IsHexString reports whether s consists entirely of hexadecimal characters
// (0-9, a-f, A-F). It returns true for an empty string.
func IsHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
