package reconcile

import (
	"context"

	"github.com/google/uuid"

	"github.com/novasend/novasend-platform/internal/events"
	"github.com/novasend/novasend-platform/internal/observability/metrics"
	"github.com/novasend/novasend-platform/internal/queue"
	"github.com/novasend/novasend-platform/pkg/logging"
)

type applier interface {
	Apply(ctx context.Context, env events.Envelope) (Result, error)
}

// CompletionNotifier is told when a campaign reaches its terminal tally.
type CompletionNotifier interface {
	CampaignCompleted(ctx context.Context, campaignID uuid.UUID) error
}

// Reconciler pulls outcome events off the queue and applies them.
type Reconciler struct {
	queue    queue.Client
	store    applier
	logger   *logging.Logger
	metrics  *metrics.DispatchMetrics
	notifier CompletionNotifier

	batchSize   int
	waitSeconds int
}

func NewReconciler(q queue.Client, store applier, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		queue:       q,
		store:       store,
		logger:      logger,
		batchSize:   10,
		waitSeconds: 5,
	}
}

func (r *Reconciler) WithBatchSize(n int) *Reconciler {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

func (r *Reconciler) WithWaitSeconds(n int) *Reconciler {
	if n >= 0 {
		r.waitSeconds = n
	}
	return r
}

func (r *Reconciler) WithMetrics(m *metrics.DispatchMetrics) *Reconciler {
	r.metrics = m
	return r
}

func (r *Reconciler) WithNotifier(n CompletionNotifier) *Reconciler {
	r.notifier = n
	return r
}

// Run consumes until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	if r.queue == nil || r.store == nil {
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := r.queue.Receive(ctx, r.batchSize, r.waitSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("outcome receive failed", "error", err)
			continue
		}
		for _, msg := range msgs {
			r.handle(ctx, msg)
		}
	}
}

func (r *Reconciler) handle(ctx context.Context, msg queue.Message) {
	env, err := events.DecodeEnvelope([]byte(msg.Body))
	if err != nil {
		// Malformed payloads can never apply; drop them.
		r.logger.Error("dropping undecodable outcome event", "error", err, "message_id", msg.ID)
		if err := r.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
			r.logger.Error("failed to delete poison message", "error", err, "message_id", msg.ID)
		}
		return
	}

	res, err := r.store.Apply(ctx, env)
	if err != nil {
		// Leave the message on the queue; redelivery is safe thanks to the
		// processed ledger.
		r.logger.Error("failed to apply outcome event", "error", err, "event_id", env.EventID, "type", env.EventType)
		return
	}

	if res.Applied {
		r.metrics.ObserveReconciled(env.EventType, "applied")
	} else {
		r.metrics.ObserveReconciled(env.EventType, "duplicate")
	}

	if res.Completed {
		r.logger.Info("campaign completed", "campaign_id", res.CampaignID)
		if r.notifier != nil {
			if err := r.notifier.CampaignCompleted(ctx, res.CampaignID); err != nil {
				r.logger.Error("completion notification failed", "error", err, "campaign_id", res.CampaignID)
			}
		}
	}

	if err := r.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		r.logger.Error("failed to delete outcome message", "error", err, "event_id", env.EventID)
	}
}
