package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"

	"github.com/dmitrymomot/subsync/pkg/directory"
	"github.com/dmitrymomot/subsync/pkg/httpserver"
)

// RouterDeps carries everything the HTTP surface needs. Webhook handlers are
// optional: a nil handler leaves the corresponding route unregistered, so a
// deployment can run with a single provider configured.
type RouterDeps struct {
	Logger        *slog.Logger
	Directory     directory.Client
	Auth          *Authenticator
	PaddleWebhook http.Handler
	StripeWebhook http.Handler
	Team          http.Handler
}

// NewRouter assembles the service routes: unauthenticated webhook ingestion,
// and a bearer-token group for team management and access reads.
func NewRouter(deps RouterDeps) http.Handler {
	log := logOrDefault(deps.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(log, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.Healthcheck(log))

	r.Route("/v1", func(r chi.Router) {
		if deps.PaddleWebhook != nil {
			r.Method(http.MethodPost, "/webhooks/paddle", deps.PaddleWebhook)
		}
		if deps.StripeWebhook != nil {
			r.Method(http.MethodPost, "/webhooks/stripe", deps.StripeWebhook)
		}

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Middleware)
			r.Method(http.MethodPost, "/team", deps.Team)
			r.Method(http.MethodGet, "/access", NewAccessHandler(deps.Directory, log))
		})
	})

	return r
}
