package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/httpapi"
	"github.com/dmitrymomot/subsync/pkg/cache"
	"github.com/dmitrymomot/subsync/pkg/directory"
)

// countingResolver wraps a TokenResolver and counts upstream calls.
type countingResolver struct {
	inner directory.TokenResolver
	calls int
}

func (r *countingResolver) ResolveToken(ctx context.Context, token string) (string, error) {
	r.calls++
	return r.inner.ResolveToken(ctx, token)
}

func echoUserID() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := httpapi.UserIDFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(id))
	})
}

func TestAuthenticator_Middleware(t *testing.T) {
	dir := directory.NewMemoryClient()
	dir.RegisterToken("tok_alice", "dir|alice")

	auth := httpapi.NewAuthenticator(dir, nil, nil)
	handler := auth.Middleware(echoUserID())

	t.Run("missing authorization header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("forged token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tok_forged")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token reaches the handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tok_alice")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "dir|alice", rr.Body.String())
	})
}

func TestAuthenticator_CachesResolutions(t *testing.T) {
	dir := directory.NewMemoryClient()
	dir.RegisterToken("tok_bob", "dir|bob")

	resolver := &countingResolver{inner: dir}
	tokens := cache.NewTTL[string, string](16, time.Minute)
	auth := httpapi.NewAuthenticator(resolver, tokens, nil)
	handler := auth.Middleware(echoUserID())

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tok_bob")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	assert.Equal(t, 1, resolver.calls)
}
