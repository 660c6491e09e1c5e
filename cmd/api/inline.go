package main

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"

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

// inlinePool is the slice of pgxpool.Pool the inline dispatch stack needs.
type inlinePool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// startInlineDispatch runs the dispatch pool, outbox deliverer, and
// reconciler inside the API process over an in-process outcome queue, so one
// binary serves the whole pipeline during local development. Production runs
// cmd/dispatch-worker against SQS instead.
func startInlineDispatch(ctx context.Context, cfg *appconfig.Config, pool inlinePool, campaignStore *campaign.Store, reg prometheus.Registerer, logger *logging.Logger) error {
	providerClient, err := provider.New(provider.Config{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		Timeout: cfg.SendTimeout,
		Logger:  logger.Logger,
	})
	if err != nil {
		return err
	}

	outcomeQueue := queue.NewMemoryQueue(1024)
	outbox := events.NewOutboxStore(pool)
	dispatchStore := dispatch.NewStore(pool, outbox)
	dispatchMetrics := metrics.NewDispatchMetrics(reg)
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

	deliverer := events.NewDeliverer(outbox, events.NewQueuePublisher(outcomeQueue), logger)

	notifier := notify.NewService(notify.NewStubEmailSender(logger), campaignStore, logger)
	reconcileStore := reconcile.NewStore(pool, events.NewProcessedStore(pool))
	reconciler := reconcile.NewReconciler(outcomeQueue, reconcileStore, logger).
		WithMetrics(dispatchMetrics).
		WithNotifier(notifier)

	go workerPool.Run(ctx)
	go deliverer.Start(ctx)
	go reconciler.Run(ctx)

	logger.Info("inline dispatch enabled",
		"workers", cfg.DispatchWorkerCount,
		"lease", cfg.LeaseDuration,
	)
	return nil
}
