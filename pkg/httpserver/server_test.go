package httpserver_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/subsync/pkg/httpserver"
)

func TestHealthcheck(t *testing.T) {
	log := slog.New(slog.DiscardHandler)

	t.Run("ready with no checks", func(t *testing.T) {
		rr := httptest.NewRecorder()
		httpserver.Healthcheck(log)(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "READY", rr.Body.String())
	})

	t.Run("ready when every check passes", func(t *testing.T) {
		pass := func(context.Context) error { return nil }

		rr := httptest.NewRecorder()
		httpserver.Healthcheck(log, pass, pass)(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("not ready on a failing check", func(t *testing.T) {
		fail := func(context.Context) error { return errors.New("directory unreachable") }

		rr := httptest.NewRecorder()
		httpserver.Healthcheck(log, fail)(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "NOT_READY", rr.Body.String())
	})
}
