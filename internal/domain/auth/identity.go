// Package auth defines caller identity and its permissions.
package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// ScopeCatalogWrite allows creating, updating and deleting catalog items.
const ScopeCatalogWrite = "catalog:write"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Identity is the authenticated caller. UserID owns the orders the caller
// creates.
type Identity struct {
	UserID string
	KeyID  string
	Name   string
	Scopes []string
}

// HasScope reports whether the identity was granted scope.
func (i Identity) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}

// Require returns the identity stored in ctx or ErrUnauthenticated.
func Require(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}

// RequireScope is like Require and additionally checks scope.
func RequireScope(ctx context.Context, scope string) (Identity, error) {
	id, err := Require(ctx)
	if err != nil {
		return Identity{}, err
	}
	if !id.HasScope(scope) {
		return Identity{}, errors.Wrapf(ErrForbidden, "missing scope %q", scope)
	}
	return id, nil
}
