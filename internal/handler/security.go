package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coffee-store/internal/domain/auth"
	"github.com/xenking/coffee-store/pkg/httpmiddleware"
)

// HeaderAPIKey carries the caller's API key.
const HeaderAPIKey = "api_key"

// Authenticator resolves API keys to caller identities.
type Authenticator struct {
	keys     auth.Repository
	pepper   string
	failures *httpmiddleware.Limiter
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithFailureLimiter counts rejected keys per limiter key, usually the
// client IP. Once a client exceeds the limit its requests carrying a key are
// refused with 429 before any lookup, until the window slides.
func WithFailureLimiter(l *httpmiddleware.Limiter) AuthenticatorOption {
	return func(a *Authenticator) { a.failures = l }
}

// NewAuthenticator creates an Authenticator with the given key repository
// and HMAC pepper.
func NewAuthenticator(keys auth.Repository, pepper string, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{keys: keys, pepper: pepper}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Authenticate hashes key with the pepper, looks the hash up and compares
// it in constant time against the stored one.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (auth.Identity, error) {
	if key == "" {
		return auth.Identity{}, auth.ErrUnauthenticated
	}
	hash := auth.HashKey(a.pepper, key)

	k, err := a.keys.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return auth.Identity{}, auth.ErrUnauthenticated
		}
		return auth.Identity{}, errors.Wrap(err, "find api key")
	}
	if subtle.ConstantTimeCompare([]byte(hash), []byte(k.KeyHash)) != 1 {
		return auth.Identity{}, auth.ErrUnauthenticated
	}
	return k.Identity(), nil
}

// Middleware attaches the caller identity to the request context. Requests
// without a key pass through anonymously; requests with an unknown key are
// rejected with 401.
func (a *Authenticator) Middleware() httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderAPIKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			var client string
			if a.failures != nil {
				client = a.failures.KeyFor(r)
				if a.failures.Exceeded(client) {
					httpmiddleware.WriteError(w, http.StatusTooManyRequests, "too many failed authentication attempts")
					return
				}
			}

			id, err := a.Authenticate(ctx, key)
			if err != nil {
				if !errors.Is(err, auth.ErrUnauthenticated) {
					zctx.From(ctx).Error("Authenticate request", zap.Error(err))
					httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
					return
				}
				if a.failures != nil {
					a.failures.Allow(client)
				}
				httpmiddleware.WriteError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx = auth.WithIdentity(ctx, id)
			ctx = zctx.With(ctx, zap.String("owner", id.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
