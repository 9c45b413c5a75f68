package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mowistore/storefront-backend/api/routes"
	"github.com/mowistore/storefront-backend/internal/cart"
	"github.com/mowistore/storefront-backend/internal/categories"
	"github.com/mowistore/storefront-backend/internal/coupons"
	"github.com/mowistore/storefront-backend/internal/orders"
	"github.com/mowistore/storefront-backend/internal/payments"
	"github.com/mowistore/storefront-backend/internal/products"
	"github.com/mowistore/storefront-backend/internal/reviews"
	"github.com/mowistore/storefront-backend/internal/search"
	"github.com/mowistore/storefront-backend/pkg/config"
	"github.com/mowistore/storefront-backend/pkg/db"
	"github.com/mowistore/storefront-backend/pkg/logger"
	"github.com/mowistore/storefront-backend/pkg/metrics"
	"github.com/mowistore/storefront-backend/pkg/migrate"
	"github.com/mowistore/storefront-backend/pkg/redis"
	"github.com/mowistore/storefront-backend/pkg/stripe"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	productsRepo := products.NewRepository(dbClient.DB())
	categoriesRepo := categories.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	paymentsRepo := payments.NewRepository(dbClient.DB())
	reviewsRepo := reviews.NewRepository(dbClient.DB())
	couponsRepo := coupons.NewRepository(dbClient.DB())

	productsService, err := products.NewService(productsRepo)
	if err != nil {
		fatal(logg, "failed to create products service", err)
	}
	categoriesService, err := categories.NewService(categoriesRepo)
	if err != nil {
		fatal(logg, "failed to create categories service", err)
	}
	cartService, err := cart.NewService(cartRepo, productsRepo, dbClient)
	if err != nil {
		fatal(logg, "failed to create cart service", err)
	}
	ordersService, err := orders.NewService(ordersRepo, cartRepo, productsRepo, dbClient, logg, checkoutMetrics)
	if err != nil {
		fatal(logg, "failed to create orders service", err)
	}
	paymentsService, err := payments.NewService(
		paymentsRepo,
		ordersRepo,
		cartRepo,
		payments.NewStripeGateway(stripeClient),
		dbClient,
		logg,
		checkoutMetrics,
		cfg.Stripe.RequestTimeout,
	)
	if err != nil {
		fatal(logg, "failed to create payments service", err)
	}
	reviewsService, err := reviews.NewService(reviewsRepo, productsRepo)
	if err != nil {
		fatal(logg, "failed to create reviews service", err)
	}
	couponsService, err := coupons.NewService(couponsRepo, dbClient)
	if err != nil {
		fatal(logg, "failed to create coupons service", err)
	}
	searchService, err := search.NewService(cfg.Gemini, productsRepo, logg)
	if err != nil {
		fatal(logg, "failed to create search service", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			Registry:   registry,
			Products:   productsService,
			Categories: categoriesService,
			Cart:       cartService,
			Orders:     ordersService,
			Payments:   paymentsService,
			Reviews:    reviewsService,
			Coupons:    couponsService,
			Search:     searchService,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func fatal(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
