// Package secrets seals credential values in integration configs so they are
// encrypted at rest in the database and never echoed back over the API.
//
// Values are encrypted with NaCl secretbox (XSalsa20-Poly1305) under a single
// operator key. A sealed value is the string "sealed:v1:" followed by the
// base64 of nonce||ciphertext.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealedPrefix = "sealed:v1:"
	nonceSize    = 24
	// Mask replaces credential values in API responses.
	Mask = "********"
)

var (
	// ErrInvalidKey is returned when the sealing key is not 32 raw bytes or
	// 64 hex characters.
	ErrInvalidKey = errors.New("invalid secrets key")
	// ErrNotSealed is returned by Open for values without the sealed prefix.
	ErrNotSealed = errors.New("value is not sealed")
	// ErrDecrypt is returned when a sealed value fails authentication.
	ErrDecrypt = errors.New("sealed value could not be decrypted")
)

// sensitiveKeys are config field names (lowercased, separators removed)
// whose values are credentials.
var sensitiveKeys = []string{
	"apikey", "token", "accesstoken", "refreshtoken", "password",
	"secret", "clientsecret", "privatekey", "webhooksecret",
}

// Sealer encrypts and decrypts credential values.
type Sealer struct {
	key [32]byte
}

// NewSealer accepts the key as 32 raw bytes or 64 hex characters.
func NewSealer(key string) (*Sealer, error) {
	raw, err := resolveKey(key)
	if err != nil {
		return nil, err
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

func resolveKey(key string) ([]byte, error) {
	if len(key) == 64 {
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("key hex: %w", ErrInvalidKey)
		}
		return decoded, nil
	}
	if len(key) == 32 {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("key must be 32 bytes or 64 hex characters (got %d): %w", len(key), ErrInvalidKey)
}

// Seal encrypts a single value.
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(box), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if !IsSealed(sealed) {
		return "", ErrNotSealed
	}
	box, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	out, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(out), nil
}

// IsSealed reports whether v carries the sealed prefix.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, sealedPrefix)
}

// IsSensitive reports whether a config field name holds a credential.
// Matching ignores case, '_' and '-' ("api_key", "apiKey", "API-KEY").
func IsSensitive(field string) bool {
	norm := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(field))
	for _, k := range sensitiveKeys {
		if norm == k {
			return true
		}
	}
	return false
}

// SealConfig returns a copy of cfg with every non-empty string under a
// sensitive field sealed. Nested objects are walked; already sealed values
// are kept as they are.
func (s *Sealer) SealConfig(cfg map[string]any) (map[string]any, error) {
	if cfg == nil {
		return nil, nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		switch val := v.(type) {
		case map[string]any:
			nested, err := s.SealConfig(val)
			if err != nil {
				return nil, err
			}
			out[k] = nested
		case string:
			if val == "" || !IsSensitive(k) || IsSealed(val) {
				out[k] = val
				continue
			}
			sealed, err := s.Seal(val)
			if err != nil {
				return nil, fmt.Errorf("sealing %s: %w", k, err)
			}
			out[k] = sealed
		default:
			out[k] = v
		}
	}
	return out, nil
}

// MaskConfig returns a copy of cfg with every sensitive string value, sealed
// or not, replaced by Mask.
func MaskConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		switch val := v.(type) {
		case map[string]any:
			out[k] = MaskConfig(val)
		case string:
			if val != "" && (IsSensitive(k) || IsSealed(val)) {
				out[k] = Mask
			} else {
				out[k] = val
			}
		default:
			out[k] = v
		}
	}
	return out
}
