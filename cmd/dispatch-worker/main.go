package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/novasend/novasend-platform/cmd/mainconfig"
	"github.com/novasend/novasend-platform/internal/campaign"
	appconfig "github.com/novasend/novasend-platform/internal/config"
	"github.com/novasend/novasend-platform/internal/dispatch"
	"github.com/novasend/novasend-platform/internal/events"
	"github.com/novasend/novasend-platform/internal/notify"
	"github.com/novasend/novasend-platform/internal/observability/metrics"
	"github.com/novasend/novasend-platform/internal/provider"
	"github.com/novasend/novasend-platform/internal/queue"
	"github.com/novasend/novasend-platform/internal/reconcile"
	"github.com/novasend/novasend-platform/pkg/logging"
)

func main() {
	// .env is for local development; deployments set real env vars
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" || cfg.ProviderAPIKey == "" {
		logger.Error("dispatch worker requires DATABASE_URL and PROVIDER_API_KEY")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	providerClient, err := provider.New(provider.Config{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		Timeout: cfg.SendTimeout,
		Logger:  logger.Logger,
	})
	if err != nil {
		logger.Error("failed to create provider client", "error", err)
		os.Exit(1)
	}

	// Outcome queue: SQS in deployment, in-process for local runs.
	var outcomeQueue queue.Client
	var sesClient *sesv2.Client
	if cfg.UseMemoryQueue {
		outcomeQueue = queue.NewMemoryQueue(1024)
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		if cfg.OutcomeQueueURL == "" {
			logger.Error("dispatch worker requires OUTCOME_QUEUE_URL (or USE_MEMORY_QUEUE=true)")
			os.Exit(1)
		}
		outcomeQueue = queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.OutcomeQueueURL)
		sesClient = sesv2.NewFromConfig(awsCfg)
	}

	outbox := events.NewOutboxStore(pool)
	dispatchStore := dispatch.NewStore(pool, outbox)
	dispatchMetrics := metrics.NewDispatchMetrics(prometheus.DefaultRegisterer)
	limiter := dispatch.NewChannelLimiter(cfg.ChannelRatePerSec, cfg.ChannelBurst)

	workerPool := dispatch.NewPool(dispatchStore, providerClient, limiter, logger).
		WithWorkers(cfg.DispatchWorkerCount).
		WithPollInterval(cfg.DispatchPollInterval).
		WithBatchSize(int32(cfg.DispatchBatchSize)).
		WithSendTimeout(cfg.SendTimeout).
		WithLeaseDuration(cfg.LeaseDuration).
		WithReaperInterval(cfg.ReaperInterval).
		WithMaxRetries(cfg.MaxRetries).
		WithBackoff(dispatch.Backoff{Base: cfg.RetryBaseDelay, Max: cfg.RetryMaxDelay}).
		WithMetrics(dispatchMetrics)

	// Outbox rows become queue messages; the reconciler folds them back into
	// campaign counters exactly once.
	deliverer := events.NewDeliverer(outbox, events.NewQueuePublisher(outcomeQueue), logger)

	campaignStore := campaign.NewStore(pool)
	notifier := notify.NewService(buildEmailSender(cfg, sesClient, logger), campaignStore, logger)

	reconcileStore := reconcile.NewStore(pool, events.NewProcessedStore(pool))
	reconciler := reconcile.NewReconciler(outcomeQueue, reconcileStore, logger).
		WithMetrics(dispatchMetrics).
		WithNotifier(notifier)

	go workerPool.Run(ctx)
	go deliverer.Start(ctx)
	go reconciler.Run(ctx)

	logger.Info("dispatch worker started",
		"workers", cfg.DispatchWorkerCount,
		"lease", cfg.LeaseDuration,
		"max_retries", cfg.MaxRetries,
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("dispatch worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}

// buildEmailSender picks the configured email provider, falling back from
// SendGrid to SES to a logging stub.
func buildEmailSender(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) notify.EmailSender {
	useSendGrid := cfg.EmailProvider == "sendgrid" || (cfg.EmailProvider == "auto" && cfg.SendGridAPIKey != "")
	if useSendGrid {
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	if cfg.EmailProvider == "ses" || cfg.EmailProvider == "auto" {
		if sender := notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
		}, logger); sender != nil && cfg.SESFromEmail != "" {
			return sender
		}
	}
	return notify.NewStubEmailSender(logger)
}
