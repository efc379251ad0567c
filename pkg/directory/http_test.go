package directory_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/directory"
)

func newResolveTestClient(t *testing.T, baseURL string) *directory.HTTPClient {
	t.Helper()

	client, err := directory.NewHTTPClient(context.Background(), directory.Config{
		BaseURL:      baseURL,
		TokenURL:     baseURL + "/oauth/token",
		ClientID:     "svc",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
		MaxAttempts:  1,
	})
	require.NoError(t, err)
	return client
}

func TestHTTPClient_ResolveToken(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves the token bearer's user id", func(t *testing.T) {
		var calls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			require.Equal(t, "/userinfo", r.URL.Path)
			// The end user's token must survive untouched; the service's
			// own client-credentials token would fail this check.
			require.Equal(t, "Bearer user-tok", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"user_id":"dir|u1"}`))
		}))
		defer srv.Close()

		client := newResolveTestClient(t, srv.URL)

		id, err := client.ResolveToken(ctx, "user-tok")
		require.NoError(t, err)
		assert.Equal(t, "dir|u1", id)

		// Consecutive calls reuse the same client and still land upstream.
		id, err = client.ResolveToken(ctx, "user-tok")
		require.NoError(t, err)
		assert.Equal(t, "dir|u1", id)
		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("falls back to the sub claim", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"sub":"dir|u2"}`))
		}))
		defer srv.Close()

		client := newResolveTestClient(t, srv.URL)

		id, err := client.ResolveToken(ctx, "user-tok")
		require.NoError(t, err)
		assert.Equal(t, "dir|u2", id)
	})

	t.Run("rejected token maps to ErrUnauthorized", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		client := newResolveTestClient(t, srv.URL)

		_, err := client.ResolveToken(ctx, "forged")
		assert.ErrorIs(t, err, directory.ErrUnauthorized)
	})

	t.Run("upstream failure maps to ErrUpstream", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := newResolveTestClient(t, srv.URL)

		_, err := client.ResolveToken(ctx, "user-tok")
		assert.ErrorIs(t, err, directory.ErrUpstream)
	})

	t.Run("empty userinfo maps to ErrUnauthorized", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		client := newResolveTestClient(t, srv.URL)

		_, err := client.ResolveToken(ctx, "user-tok")
		assert.ErrorIs(t, err, directory.ErrUnauthorized)
	})
}
