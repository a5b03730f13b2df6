// Package auth validates administrator API keys. Keys are stored only as
// HMAC-SHA256 hashes computed with a server-side pepper; a database leak
// alone reveals nothing usable.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for any failed key validation. The cause is
// deliberately not distinguished to the caller.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key carries the given scope.
func (i *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Verifier authenticates raw API keys against the repository.
type Verifier struct {
	apikeys Repository
	pepper  []byte
}

// NewVerifier creates a Verifier with the given repository and HMAC pepper.
func NewVerifier(apikeys Repository, pepper []byte) *Verifier {
	return &Verifier{apikeys: apikeys, pepper: pepper}
}

// Verify authenticates a raw API key and checks that it carries the required
// scope. The hash comparison is constant time.
func (v *Verifier) Verify(ctx context.Context, rawKey, scope string) (*APIKeyInfo, error) {
	mac := hmac.New(sha256.New, v.pepper)
	mac.Write([]byte(rawKey))
	hash := mac.Sum(nil)

	info, err := v.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return nil, ErrUnauthorized
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrUnauthorized
	}

	if scope != "" && !info.HasScope(scope) {
		return nil, ErrUnauthorized
	}
	return info, nil
}

// HashKey computes the stored hash for a raw key, used when provisioning.
func HashKey(rawKey string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(rawKey))
	return hex.EncodeToString(mac.Sum(nil))
}
