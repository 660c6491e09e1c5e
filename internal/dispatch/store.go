package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/novasend/novasend-platform/internal/events"
)

// ErrLeaseLost indicates the worker no longer holds the lease for a queue
// item, so its outcome must be discarded.
var ErrLeaseLost = errors.New("dispatch: lease no longer held")

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

// Store persists queue items. State transitions and their outcome events
// commit in one transaction through the outbox.
type Store struct {
	pool   PgxPool
	outbox *events.OutboxStore
}

func NewStore(pool PgxPool, outbox *events.OutboxStore) *Store {
	return &Store{pool: pool, outbox: outbox}
}

// Enqueue expands validated recipients into pending queue items. Inserts are
// idempotent per (campaign_id, phone), so replays and partial re-runs never
// produce duplicate sends.
func (s *Store) Enqueue(ctx context.Context, q Querier, campaignID, channelID uuid.UUID, recipients []Recipient) (int64, error) {
	if q == nil {
		q = s.pool
	}
	var inserted int64
	for _, r := range recipients {
		tag, err := q.Exec(ctx, `
			INSERT INTO queue_items (id, campaign_id, channel_id, phone, priority, status, scheduled_for)
			VALUES ($1, $2, $3, $4, $5, 'pending', now())
			ON CONFLICT (campaign_id, phone) DO NOTHING`,
			uuid.New(), campaignID, channelID, r.Phone, r.Priority,
		)
		if err != nil {
			return inserted, fmt.Errorf("dispatch: failed to enqueue %s: %w", r.Phone, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ListDue returns pending items whose schedule has arrived, joined with the
// campaign template and recipient fields needed for the send. Items of
// cancelled or failed campaigns are excluded; the sweeper retires them.
func (s *Store) ListDue(ctx context.Context, limit int32) ([]DueItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT qi.id, qi.campaign_id, qi.channel_id, qi.phone, qi.priority, qi.retry_count,
		       c.template_body, cd.recipient_name, cd.variables
		FROM queue_items qi
		JOIN campaigns c ON c.id = qi.campaign_id
		JOIN campaign_details cd ON cd.campaign_id = qi.campaign_id AND cd.phone = qi.phone
		WHERE qi.status = 'pending'
		  AND qi.scheduled_for <= now()
		  AND c.status IN ('pending', 'processing')
		ORDER BY qi.priority ASC, qi.scheduled_for ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch: failed to list due items: %w", err)
	}
	defer rows.Close()

	var items []DueItem
	for rows.Next() {
		var item DueItem
		if err := rows.Scan(
			&item.ID, &item.CampaignID, &item.ChannelID, &item.Phone,
			&item.Priority, &item.RetryCount,
			&item.TemplateBody, &item.RecipientName, &item.Variables,
		); err != nil {
			return nil, fmt.Errorf("dispatch: failed to scan due item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Claim atomically takes the lease on a pending item. Returns false when
// another worker won the race; only the winner proceeds to send.
func (s *Store) Claim(ctx context.Context, item DueItem, leaseFor time.Duration) (uuid.UUID, bool, error) {
	token := uuid.New()
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("dispatch: failed to begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE queue_items
		SET status = 'processing', lease_token = $2, lease_expires_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		item.ID, token, now.Add(leaseFor),
	)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("dispatch: failed to claim item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, false, nil
	}

	_, err = s.outbox.Insert(ctx, tx, "campaign", events.RecipientClaimedV1{
		CampaignID: item.CampaignID,
		Phone:      item.Phone,
		LeaseToken: token,
		ClaimedAt:  now,
	})
	if err != nil {
		return uuid.Nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, false, fmt.Errorf("dispatch: failed to commit claim: %w", err)
	}
	return token, true, nil
}

// CompleteSuccess retires a sent item and records the sent event. The lease
// token guards against a reaped lease racing the outcome.
func (s *Store) CompleteSuccess(ctx context.Context, item DueItem, leaseToken uuid.UUID, providerMessageID string) error {
	return s.complete(ctx, item, leaseToken, events.MessageSentV1{
		CampaignID:        item.CampaignID,
		Phone:             item.Phone,
		ProviderMessageID: providerMessageID,
		SentAt:            time.Now().UTC(),
	}, nil)
}

// CompleteFailure retires a permanently failed item. When abortCampaign is
// set the campaign abort event commits in the same transaction.
func (s *Store) CompleteFailure(ctx context.Context, item DueItem, leaseToken uuid.UUID, code, message string, abortCampaign bool) error {
	failed := events.MessageFailedV1{
		CampaignID:   item.CampaignID,
		Phone:        item.Phone,
		ErrorCode:    code,
		ErrorMessage: message,
		FailedAt:     time.Now().UTC(),
	}
	var abort events.CanonicalEvent
	if abortCampaign {
		abort = events.CampaignAbortedV1{
			CampaignID: item.CampaignID,
			Reason:     code,
			AbortedAt:  time.Now().UTC(),
		}
	}
	return s.complete(ctx, item, leaseToken, failed, abort)
}

func (s *Store) complete(ctx context.Context, item DueItem, leaseToken uuid.UUID, outcome, extra events.CanonicalEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: failed to begin completion: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM queue_items WHERE id = $1 AND lease_token = $2`, item.ID, leaseToken)
	if err != nil {
		return fmt.Errorf("dispatch: failed to retire item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}

	if _, err := s.outbox.Insert(ctx, tx, "campaign", outcome); err != nil {
		return err
	}
	if extra != nil {
		if _, err := s.outbox.Insert(ctx, tx, "campaign", extra); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("dispatch: failed to commit completion: %w", err)
	}
	return nil
}

// ScheduleRetry returns a transiently failed item to pending with an
// incremented retry count and a future schedule.
func (s *Store) ScheduleRetry(ctx context.Context, item DueItem, leaseToken uuid.UUID, nextAt time.Time, reason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: failed to begin retry: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE queue_items
		SET status = 'pending', retry_count = retry_count + 1,
		    lease_token = NULL, lease_expires_at = NULL,
		    scheduled_for = $3, updated_at = now()
		WHERE id = $1 AND lease_token = $2`,
		item.ID, leaseToken, nextAt,
	)
	if err != nil {
		return fmt.Errorf("dispatch: failed to schedule retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}

	_, err = s.outbox.Insert(ctx, tx, "campaign", events.RecipientRequeuedV1{
		CampaignID: item.CampaignID,
		Phone:      item.Phone,
		Reason:     reason,
		RequeuedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("dispatch: failed to commit retry: %w", err)
	}
	return nil
}

// ReapExpired returns items with expired leases to pending. Crash recovery,
// so the retry count is left untouched.
func (s *Store) ReapExpired(ctx context.Context, limit int32) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch: failed to begin reap: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE queue_items
		SET status = 'pending', lease_token = NULL, lease_expires_at = NULL, updated_at = now()
		WHERE id IN (
			SELECT id FROM queue_items
			WHERE status = 'processing' AND lease_expires_at < now()
			ORDER BY lease_expires_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING campaign_id, phone`,
		limit,
	)
	if err != nil {
		return 0, fmt.Errorf("dispatch: failed to reap leases: %w", err)
	}

	type reaped struct {
		campaignID uuid.UUID
		phone      string
	}
	var freed []reaped
	for rows.Next() {
		var r reaped
		if err := rows.Scan(&r.campaignID, &r.phone); err != nil {
			rows.Close()
			return 0, fmt.Errorf("dispatch: failed to scan reaped item: %w", err)
		}
		freed = append(freed, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("dispatch: reap rows: %w", err)
	}

	now := time.Now().UTC()
	for _, r := range freed {
		_, err := s.outbox.Insert(ctx, tx, "campaign", events.RecipientRequeuedV1{
			CampaignID: r.campaignID,
			Phone:      r.phone,
			Reason:     "lease_expired",
			RequeuedAt: now,
		})
		if err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("dispatch: failed to commit reap: %w", err)
	}
	return len(freed), nil
}

// SweepRetired deletes queue items whose campaign was cancelled or aborted
// and records a terminal failure for each so counters stay consistent.
func (s *Store) SweepRetired(ctx context.Context, limit int32) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch: failed to begin sweep: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		DELETE FROM queue_items
		WHERE id IN (
			SELECT qi.id FROM queue_items qi
			JOIN campaigns c ON c.id = qi.campaign_id
			WHERE c.status IN ('cancelled', 'failed')
			LIMIT $1
			FOR UPDATE OF qi SKIP LOCKED
		)
		RETURNING campaign_id, phone`,
		limit,
	)
	if err != nil {
		return 0, fmt.Errorf("dispatch: failed to sweep retired items: %w", err)
	}

	type swept struct {
		campaignID uuid.UUID
		phone      string
	}
	var retired []swept
	for rows.Next() {
		var r swept
		if err := rows.Scan(&r.campaignID, &r.phone); err != nil {
			rows.Close()
			return 0, fmt.Errorf("dispatch: failed to scan swept item: %w", err)
		}
		retired = append(retired, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("dispatch: sweep rows: %w", err)
	}

	now := time.Now().UTC()
	for _, r := range retired {
		_, err := s.outbox.Insert(ctx, tx, "campaign", events.MessageFailedV1{
			CampaignID:   r.campaignID,
			Phone:        r.phone,
			ErrorCode:    "campaign_cancelled",
			ErrorMessage: "campaign no longer active",
			FailedAt:     now,
		})
		if err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("dispatch: failed to commit sweep: %w", err)
	}
	return len(retired), nil
}
