package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/subsync/pkg/cache"
	"github.com/dmitrymomot/subsync/pkg/directory"
)

type ctxKey struct{}

// UserIDFromContext returns the authenticated user's directory ID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}

// Authenticator is chi middleware resolving bearer tokens to directory user
// IDs. Resolutions are cached briefly; the cache only maps token→id, never
// metadata, so staleness costs nothing beyond honoring a token for the
// cache TTL after revocation.
type Authenticator struct {
	resolver directory.TokenResolver
	tokens   *cache.TTL[string, string]
	log      *slog.Logger
}

// NewAuthenticator builds the middleware. The cache is optional.
func NewAuthenticator(resolver directory.TokenResolver, tokens *cache.TTL[string, string], log *slog.Logger) *Authenticator {
	if log == nil {
		log = slog.Default()
	}
	return &Authenticator{resolver: resolver, tokens: tokens, log: log}
}

// Middleware rejects requests without a resolvable bearer token with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := a.resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, directory.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}
			a.log.ErrorContext(r.Context(), "token resolution failed", slog.Any("error", err))
			writeError(w, http.StatusBadGateway, "authentication backend unavailable")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func (a *Authenticator) resolve(ctx context.Context, token string) (string, error) {
	if a.tokens != nil {
		if id, ok := a.tokens.Get(token); ok {
			return id, nil
		}
	}

	id, err := a.resolver.ResolveToken(ctx, token)
	if err != nil {
		return "", err
	}

	if a.tokens != nil {
		a.tokens.Set(token, id)
	}
	return id, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}
