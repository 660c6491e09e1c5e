// Package reconcile consumes dispatch outcome events and is the only writer
// of campaign counters. Every event applies in one transaction together with
// its dedupe record, so replays and redeliveries never double count and the
// invariant successful+failed+pending+processing == total_recipients holds
// at every commit.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/novasend/novasend-platform/internal/events"
)

const consumerSource = "reconciler"

// Querier is satisfied by pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool adds transaction support on top of Querier.
type PgxPool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Result reports what applying one envelope did.
type Result struct {
	Applied    bool
	Completed  bool
	CampaignID uuid.UUID
}

// Store applies outcome events to campaign state.
type Store struct {
	pool      PgxPool
	processed *events.ProcessedStore
}

func NewStore(pool PgxPool, processed *events.ProcessedStore) *Store {
	return &Store{pool: pool, processed: processed}
}

// Apply handles one envelope. Duplicates are detected through the processed
// ledger inside the same transaction and return Applied=false with no state
// change. Unknown event types are absorbed so a poison event cannot wedge
// the consumer.
func (s *Store) Apply(ctx context.Context, env events.Envelope) (Result, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: failed to begin: %w", err)
	}
	defer tx.Rollback(ctx)

	fresh, err := s.processed.MarkProcessed(ctx, tx, consumerSource, env.EventID)
	if err != nil {
		return Result{}, err
	}
	if !fresh {
		return Result{}, nil
	}

	var res Result
	switch env.EventType {
	case events.RecipientClaimedV1{}.EventType():
		var evt events.RecipientClaimedV1
		if err := events.DecodePayload(env, &evt); err != nil {
			return Result{}, err
		}
		res, err = s.applyClaimed(ctx, tx, evt)

	case events.RecipientRequeuedV1{}.EventType():
		var evt events.RecipientRequeuedV1
		if err := events.DecodePayload(env, &evt); err != nil {
			return Result{}, err
		}
		res, err = s.applyRequeued(ctx, tx, evt)

	case events.MessageSentV1{}.EventType():
		var evt events.MessageSentV1
		if err := events.DecodePayload(env, &evt); err != nil {
			return Result{}, err
		}
		res, err = s.applyTerminal(ctx, tx, terminalOutcome{
			campaignID:        evt.CampaignID,
			phone:             evt.Phone,
			success:           true,
			providerMessageID: evt.ProviderMessageID,
			at:                evt.SentAt,
		})

	case events.MessageFailedV1{}.EventType():
		var evt events.MessageFailedV1
		if err := events.DecodePayload(env, &evt); err != nil {
			return Result{}, err
		}
		res, err = s.applyTerminal(ctx, tx, terminalOutcome{
			campaignID:   evt.CampaignID,
			phone:        evt.Phone,
			errorCode:    evt.ErrorCode,
			errorMessage: evt.ErrorMessage,
			at:           evt.FailedAt,
		})

	case events.CampaignAbortedV1{}.EventType():
		var evt events.CampaignAbortedV1
		if err := events.DecodePayload(env, &evt); err != nil {
			return Result{}, err
		}
		res, err = s.applyAborted(ctx, tx, evt)

	default:
		// Absorb unknown types; the dedupe mark keeps them from looping.
	}
	if err != nil {
		return Result{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("reconcile: failed to commit: %w", err)
	}
	return res, nil
}

func (s *Store) applyClaimed(ctx context.Context, tx pgx.Tx, evt events.RecipientClaimedV1) (Result, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE campaign_details
		SET status = 'processing', updated_at = now()
		WHERE campaign_id = $1 AND phone = $2 AND status = 'pending'`,
		evt.CampaignID, evt.Phone,
	)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: claim detail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Stale claim, the recipient already moved on.
		return Result{CampaignID: evt.CampaignID}, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE campaigns
		SET pending = pending - 1, processing = processing + 1,
		    status = CASE WHEN status = 'pending' THEN 'processing' ELSE status END,
		    started_at = COALESCE(started_at, now()), updated_at = now()
		WHERE id = $1`,
		evt.CampaignID,
	)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: claim counters: %w", err)
	}
	return Result{Applied: true, CampaignID: evt.CampaignID}, nil
}

func (s *Store) applyRequeued(ctx context.Context, tx pgx.Tx, evt events.RecipientRequeuedV1) (Result, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE campaign_details
		SET status = 'pending', updated_at = now()
		WHERE campaign_id = $1 AND phone = $2 AND status = 'processing'`,
		evt.CampaignID, evt.Phone,
	)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: requeue detail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Result{CampaignID: evt.CampaignID}, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE campaigns
		SET processing = processing - 1, pending = pending + 1, updated_at = now()
		WHERE id = $1`,
		evt.CampaignID,
	)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: requeue counters: %w", err)
	}
	return Result{Applied: true, CampaignID: evt.CampaignID}, nil
}

type terminalOutcome struct {
	campaignID        uuid.UUID
	phone             string
	success           bool
	providerMessageID string
	errorCode         string
	errorMessage      string
	at                time.Time
}

// applyTerminal moves a detail to sent or failed, adjusts the counter the
// recipient previously occupied, and checks for campaign completion.
func (s *Store) applyTerminal(ctx context.Context, tx pgx.Tx, o terminalOutcome) (Result, error) {
	from, err := s.finishDetail(ctx, tx, o)
	if err != nil {
		return Result{}, err
	}
	if from == "" {
		// Detail is already terminal, nothing to count.
		return Result{CampaignID: o.campaignID}, nil
	}

	var counterQuery string
	switch {
	case o.success && from == "processing":
		counterQuery = `UPDATE campaigns SET successful = successful + 1, processing = processing - 1, updated_at = now() WHERE id = $1`
	case o.success && from == "pending":
		counterQuery = `UPDATE campaigns SET successful = successful + 1, pending = pending - 1, updated_at = now() WHERE id = $1`
	case !o.success && from == "processing":
		counterQuery = `UPDATE campaigns SET failed = failed + 1, processing = processing - 1, updated_at = now() WHERE id = $1`
	default:
		counterQuery = `UPDATE campaigns SET failed = failed + 1, pending = pending - 1, updated_at = now() WHERE id = $1`
	}
	if _, err := tx.Exec(ctx, counterQuery, o.campaignID); err != nil {
		return Result{}, fmt.Errorf("reconcile: terminal counters: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE campaigns
		SET status = 'completed', completed_at = now(), updated_at = now()
		WHERE id = $1 AND pending = 0 AND processing = 0 AND status IN ('pending', 'processing')`,
		o.campaignID,
	)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: completion check: %w", err)
	}
	return Result{
		Applied:    true,
		Completed:  tag.RowsAffected() == 1,
		CampaignID: o.campaignID,
	}, nil
}

// finishDetail performs the conditional terminal transition and reports
// which in-flight status the detail held before, or "" when it was already
// terminal.
func (s *Store) finishDetail(ctx context.Context, tx pgx.Tx, o terminalOutcome) (string, error) {
	var query string
	var args []any
	if o.success {
		query = `
			UPDATE campaign_details
			SET status = 'sent', provider_message_id = $3, sent_at = $4, updated_at = now()
			WHERE campaign_id = $1 AND phone = $2 AND status = $5`
		args = []any{o.campaignID, o.phone, o.providerMessageID, o.at}
	} else {
		query = `
			UPDATE campaign_details
			SET status = 'failed', error_code = $3, error_message = $4, updated_at = now()
			WHERE campaign_id = $1 AND phone = $2 AND status = $5`
		args = []any{o.campaignID, o.phone, o.errorCode, o.errorMessage}
	}

	for _, from := range []string{"processing", "pending"} {
		tag, err := tx.Exec(ctx, query, append(args, from)...)
		if err != nil {
			return "", fmt.Errorf("reconcile: finish detail: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return from, nil
		}
	}
	return "", nil
}

func (s *Store) applyAborted(ctx context.Context, tx pgx.Tx, evt events.CampaignAbortedV1) (Result, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE campaigns
		SET status = 'failed', error_summary = $2, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		evt.CampaignID, evt.Reason,
	)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: abort campaign: %w", err)
	}
	return Result{Applied: tag.RowsAffected() == 1, CampaignID: evt.CampaignID}, nil
}
