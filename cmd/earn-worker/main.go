package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/loyalty-backend/internal/consumers/earn"
	"github.com/angelmondragon/loyalty-backend/internal/ledger"
	"github.com/angelmondragon/loyalty-backend/internal/loyalty"
	"github.com/angelmondragon/loyalty-backend/internal/rewards"
	"github.com/angelmondragon/loyalty-backend/internal/tiers"
	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"github.com/angelmondragon/loyalty-backend/pkg/pubsub"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "earn-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "earn-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.EarnSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "earn subscription", errors.New("subscription not configured"))
	}

	tierTable, err := tiers.LoadTable(cfg.Loyalty.TiersPath)
	requireResource(ctx, logg, "tier table", err)

	catalog, err := rewards.LoadCatalog(cfg.Loyalty.RewardsPath)
	requireResource(ctx, logg, "reward catalog", err)

	loyaltyService, err := loyalty.NewService(loyalty.ServiceParams{
		Repo:         ledger.NewRepository(dbClient.DB()),
		Tiers:        tierTable,
		Catalog:      catalog,
		Logger:       logg,
		Metrics:      metrics.NewLoyaltyMetrics(prometheus.DefaultRegisterer),
		EarnValidity: cfg.Loyalty.EarnValidity(),
		MaxRetries:   cfg.Loyalty.RedeemMaxRetries,
		RetryBase:    cfg.Loyalty.RedeemRetryBase,
	})
	requireResource(ctx, logg, "loyalty service", err)

	service, err := earn.NewService(subscription, loyaltyService, logg)
	requireResource(ctx, logg, "earn consumer service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithField(runCtx, "env", cfg.App.Env)
	logg.Info(runCtx, "earn worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "earn worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
