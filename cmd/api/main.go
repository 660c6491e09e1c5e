package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/novasend/novasend-platform/internal/api/router"
	"github.com/novasend/novasend-platform/internal/assignment"
	"github.com/novasend/novasend-platform/internal/campaign"
	appconfig "github.com/novasend/novasend-platform/internal/config"
	"github.com/novasend/novasend-platform/internal/dispatch"
	"github.com/novasend/novasend-platform/internal/events"
	"github.com/novasend/novasend-platform/pkg/logging"
)

func main() {
	// .env is for local development; deployments set real env vars
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting novasend API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("api server requires DATABASE_URL")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open sql db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Campaign registration writes the campaign, its details, and the queue
	// items in one transaction.
	campaignStore := campaign.NewStore(pool)
	dispatchStore := dispatch.NewStore(pool, events.NewOutboxStore(pool))
	validator := campaign.NewValidator(cfg.DefaultCountryCode)
	registrar := campaign.NewRegistrar(campaignStore, validator, dispatchStore, logger)

	// Single-process dev mode: dispatch, outbox delivery, and reconciliation
	// run inside the API binary over an in-memory outcome queue.
	if cfg.UseMemoryQueue {
		if err := startInlineDispatch(ctx, cfg, pool, campaignStore, prometheus.DefaultRegisterer, logger); err != nil {
			logger.Error("failed to start inline dispatch", "error", err)
			os.Exit(1)
		}
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}
	statusCache := campaign.NewStatusCache(campaignStore, redisClient, cfg.StatusCacheTTL, logger)

	campaignHandler := campaign.NewHandler(registrar, statusCache, campaignStore, logger).
		WithCache(statusCache)
	liveFeed := campaign.NewLiveFeed(statusCache, logger)

	assignmentStore := assignment.NewStore(db)
	coordinator := assignment.NewCoordinator(assignmentStore, logger)
	assignmentHandler := assignment.NewHandler(coordinator, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		CampaignHandler:    campaignHandler,
		LiveFeed:           liveFeed,
		AssignmentHandler:  assignmentHandler,
		MetricsHandler:     promhttp.Handler(),
		OperatorAuthSecret: cfg.OperatorJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.APIRatePerSec,
		RateLimitBurst:     cfg.APIBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
