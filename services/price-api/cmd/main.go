package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paaavkata/market-dashboard/shared/pkg/baha24"
	"github.com/paaavkata/market-dashboard/shared/pkg/nobitex"
	"github.com/paaavkata/market-dashboard/shared/pkg/utils"

	"github.com/paaavkata/market-dashboard/services/price-api/internal/aggregator"
	"github.com/paaavkata/market-dashboard/services/price-api/internal/api"
	"github.com/paaavkata/market-dashboard/services/price-api/internal/config"
	"github.com/paaavkata/market-dashboard/services/price-api/internal/fetcher"
	"github.com/paaavkata/market-dashboard/services/price-api/internal/health"
	"github.com/paaavkata/market-dashboard/services/price-api/internal/scheduler"
	"github.com/paaavkata/market-dashboard/services/price-api/internal/stream"
)

const serviceName = "price-api"

func main() {
	// Load configuration; the .env file must be applied before the logger
	// reads LOG_LEVEL and ENVIRONMENT.
	cfg, err := config.Load(config.WithEnvFile(".env"))
	if err != nil {
		utils.NewLogger(serviceName).WithError(err).Fatal("Failed to load configuration")
	}

	logger := utils.NewLogger(serviceName)
	logger.WithFields(logrus.Fields{
		"port":                 cfg.Port,
		"baha24_url":           cfg.Baha24URL,
		"nobitex_url":          cfg.NobitexURL,
		"prices_cache_ttl":     cfg.PricesCacheTTL,
		"nobitex_cache_ttl":    cfg.NobitexCacheTTL,
		"serve_stale_on_error": cfg.ServeStaleOnError,
		"warmer_enabled":       cfg.WarmerEnabled,
	}).Info("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Upstream clients
	baha24Client := baha24.NewClient(baha24.Config{
		BaseURL:   cfg.Baha24URL,
		Timeout:   cfg.Baha24Timeout,
		UserAgent: cfg.UserAgent,
	}, logger)
	nobitexClient := nobitex.NewClient(nobitex.Config{
		BaseURL:           cfg.NobitexURL,
		Timeout:           cfg.NobitexTimeout,
		UserAgent:         cfg.UserAgent,
		RequestsPerSecond: cfg.NobitexRateLimit,
	}, logger)

	bulkFetcher := fetcher.NewBulkFetcher(baha24Client, cfg.Baha24Timeout, logger)
	orderbookFetcher := fetcher.NewOrderbookFetcher(nobitexClient, cfg.NobitexTimeout, cfg.NobitexLocalQuote, logger)

	hub := stream.NewHub(logger)
	go hub.Run(ctx)

	// Pipelines
	pricesPipeline := aggregator.NewPricesPipeline(bulkFetcher, cfg.PricesCacheTTL, aggregator.Options{
		Retry:             cfg.PricesRetryPolicy(),
		ServeStaleOnError: cfg.ServeStaleOnError,
		Publisher:         hub,
	}, logger)
	nobitexPipeline := aggregator.NewNobitexPipeline(orderbookFetcher, pricesPipeline, cfg.NobitexCacheTTL, aggregator.Options{
		Retry:             cfg.NobitexRetryPolicy(),
		ServeStaleOnError: cfg.ServeStaleOnError,
		Publisher:         hub,
	}, logger)

	healthChecker := health.NewHealthChecker(
		[]health.CacheReporter{pricesPipeline},
		[]health.CacheReporter{nobitexPipeline},
		logger,
	)

	handler := api.NewHandler(pricesPipeline, nobitexPipeline, orderbookFetcher, logger)
	router := api.NewRouter(handler, api.Routes{
		Stream:    hub,
		Liveness:  healthChecker.LivenessHandler(),
		Readiness: healthChecker.ReadinessHandler(),
		StaticDir: cfg.StaticDir,
	}, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var warmer *scheduler.Warmer
	if cfg.WarmerEnabled {
		warmer = scheduler.NewWarmer([]scheduler.Job{
			{Refresher: pricesPipeline, Schedule: cfg.PricesWarmSchedule},
			{Refresher: nobitexPipeline, Schedule: cfg.NobitexWarmSchedule},
		}, logger)
		if err := warmer.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to start cache warmer")
		}
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	logger.Info("Price API service started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down price API service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}

	// Cancelling stops the hub and lets in-flight warms return early.
	cancel()
	if warmer != nil {
		warmer.Stop()
	}

	logger.Info("Price API service stopped")
}
