package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// APIKey is a stored API key. Only the HMAC hash of the key is persisted.
type APIKey struct {
	ID      string
	UserID  string
	KeyHash string
	Name    string
	Scopes  []string
}

// Identity returns the caller identity the key grants.
func (k *APIKey) Identity() Identity {
	return Identity{
		UserID: k.UserID,
		KeyID:  k.ID,
		Name:   k.Name,
		Scopes: slices.Clone(k.Scopes),
	}
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	// FindByHash returns ErrUnauthenticated when no key has the given hash.
	FindByHash(ctx context.Context, hash string) (*APIKey, error)
}

// HashKey returns the hex HMAC-SHA256 of key under pepper. Only this hash
// is stored and looked up.
func HashKey(pepper, key string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
