package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrymomot/subsync/httpapi"
	"github.com/dmitrymomot/subsync/pkg/alert"
	"github.com/dmitrymomot/subsync/pkg/cache"
	"github.com/dmitrymomot/subsync/pkg/config"
	"github.com/dmitrymomot/subsync/pkg/directory"
	"github.com/dmitrymomot/subsync/pkg/httpserver"
	"github.com/dmitrymomot/subsync/pkg/license"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/subscription"
	"github.com/dmitrymomot/subsync/pkg/team"
)

type appConfig struct {
	LogLevel  slog.Level    `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat logger.Format `env:"LOG_FORMAT" envDefault:"json"`

	Directory directory.Config
	Server    httpserver.Config

	PaddleWebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	// Plan maps connect provider price identifiers to SKUs, e.g.
	// PADDLE_PLANS="pri_123:individual_monthly,pri_456:team_annual".
	PaddlePlans map[string]string `env:"PADDLE_PLANS" envKeyValSeparator:":"`
	StripePlans map[string]string `env:"STRIPE_PLANS" envKeyValSeparator:":"`

	AlertWebhookURL string `env:"ALERT_WEBHOOK_URL"`

	TokenCacheSize int           `env:"TOKEN_CACHE_SIZE" envDefault:"4096"`
	TokenCacheTTL  time.Duration `env:"TOKEN_CACHE_TTL" envDefault:"5m"`
	UserCacheSize  int           `env:"USER_CACHE_SIZE" envDefault:"8192"`
	UserCacheTTL   time.Duration `env:"USER_CACHE_TTL" envDefault:"30m"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
		logger.WithService("subsyncd"),
	)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("service stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	dir, err := directory.NewHTTPClient(ctx, cfg.Directory)
	if err != nil {
		return err
	}

	var alerts alert.Reporter = alert.NewLogReporter(log)
	if cfg.AlertWebhookURL != "" {
		alerts = alert.NewWebhookReporter(cfg.AlertWebhookURL, log)
	}

	reconciler := subscription.NewReconciler(dir,
		subscription.WithAlertReporter(alerts),
		subscription.WithLogger(log),
		subscription.WithUserCache(cache.NewTTL[string, string](cfg.UserCacheSize, cfg.UserCacheTTL)),
	)

	manager := team.NewManager(dir,
		team.WithAlertReporter(alerts),
		team.WithLogger(log),
	)

	auth := httpapi.NewAuthenticator(dir,
		cache.NewTTL[string, string](cfg.TokenCacheSize, cfg.TokenCacheTTL), log)

	deps := httpapi.RouterDeps{
		Logger:    log,
		Directory: dir,
		Auth:      auth,
		Team:      httpapi.NewTeamHandler(manager, log),
	}
	if cfg.PaddleWebhookSecret != "" {
		deps.PaddleWebhook = httpapi.NewPaddleWebhookHandler(cfg.PaddleWebhookSecret,
			subscription.NewPaddleNormalizer(planMap(cfg.PaddlePlans)), reconciler, log)
	}
	if cfg.StripeWebhookSecret != "" {
		deps.StripeWebhook = httpapi.NewStripeWebhookHandler(cfg.StripeWebhookSecret,
			subscription.NewStripeNormalizer(planMap(cfg.StripePlans)), reconciler, log)
	}
	if deps.PaddleWebhook == nil && deps.StripeWebhook == nil {
		log.Warn("no webhook secrets configured, webhook routes disabled")
	}

	return httpserver.New(cfg.Server, log).Run(ctx, httpapi.NewRouter(deps))
}

func planMap(raw map[string]string) subscription.PlanMap {
	plans := make(subscription.PlanMap, len(raw))
	for id, sku := range raw {
		plans[id] = license.SKU(sku)
	}
	return plans
}
