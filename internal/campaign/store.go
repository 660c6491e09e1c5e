package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx used by store methods, satisfied by both the
// pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the pool surface the store depends on.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists campaign aggregates and detail rows in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

func (s *Store) Insert(ctx context.Context, q Querier, c *Campaign) error {
	if q == nil {
		q = s.pool
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	query := `
		INSERT INTO campaigns (
			id, channel_id, template_name, template_body, name, owner_email,
			total_recipients, successful, failed, pending, processing, status
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,0,$7,0,$8)
		RETURNING created_at
	`
	if err := q.QueryRow(ctx, query,
		c.ID, c.ChannelID, c.TemplateName, c.TemplateBody, c.Name, c.OwnerEmail,
		c.TotalRecipients, string(StatusPending),
	).Scan(&c.CreatedAt); err != nil {
		return fmt.Errorf("campaign: insert campaign: %w", err)
	}
	c.Status = StatusPending
	c.Counters = Counters{Pending: c.TotalRecipients}
	return nil
}

// InsertDetails creates one pending detail row per recipient. Re-running for
// the same campaign is safe: the (campaign_id, phone) key makes inserts
// idempotent.
func (s *Store) InsertDetails(ctx context.Context, q Querier, campaignID uuid.UUID, recipients []NormalizedRecipient) error {
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO campaign_details (id, campaign_id, phone, recipient_name, variables, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (campaign_id, phone) DO NOTHING
	`
	for _, rec := range recipients {
		vars, err := marshalVariables(rec.Variables)
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx, query,
			uuid.New(), campaignID, rec.Phone, rec.Name, vars, string(DeliveryPending),
		); err != nil {
			return fmt.Errorf("campaign: insert detail: %w", err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	query := `
		SELECT id, channel_id, template_name, template_body, name, owner_email,
			total_recipients, successful, failed, pending, processing,
			status, error_summary, created_at, started_at, completed_at
		FROM campaigns
		WHERE id = $1
	`
	var c Campaign
	var status string
	if err := s.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.ChannelID, &c.TemplateName, &c.TemplateBody, &c.Name, &c.OwnerEmail,
		&c.TotalRecipients, &c.Counters.Successful, &c.Counters.Failed,
		&c.Counters.Pending, &c.Counters.Processing,
		&status, &c.ErrorSummary, &c.CreatedAt, &c.StartedAt, &c.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("campaign: select campaign: %w", err)
	}
	c.Status = Status(status)
	return &c, nil
}

// ListDetails returns a page of detail rows ordered by creation.
func (s *Store) ListDetails(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]Detail, error) {
	query := `
		SELECT id, campaign_id, phone, recipient_name, variables,
			provider_message_id, status, error_code, error_message,
			sent_at, created_at, updated_at
		FROM campaign_details
		WHERE campaign_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`
	rows, err := s.pool.Query(ctx, query, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("campaign: list details: %w", err)
	}
	defer rows.Close()

	var details []Detail
	for rows.Next() {
		var d Detail
		var status string
		var vars []byte
		if err := rows.Scan(
			&d.ID, &d.CampaignID, &d.Phone, &d.RecipientName, &vars,
			&d.ProviderMessageID, &status, &d.ErrorCode, &d.ErrorMessage,
			&d.SentAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("campaign: scan detail: %w", err)
		}
		if len(vars) > 0 {
			if err := json.Unmarshal(vars, &d.Variables); err != nil {
				return nil, fmt.Errorf("campaign: decode variables: %w", err)
			}
		}
		d.Status = DeliveryStatus(status)
		details = append(details, d)
	}
	return details, rows.Err()
}

// Cancel marks a campaign cancelled so no further queue items are claimed.
// In-flight sends finish and reconcile normally.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE campaigns
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)
	`
	ct, err := s.pool.Exec(ctx, query, id,
		string(StatusCancelled), string(StatusPending), string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("campaign: cancel campaign: %w", err)
	}
	if ct.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrNotCancellable
	}
	return nil
}

func marshalVariables(vars map[string]string) ([]byte, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("campaign: marshal variables: %w", err)
	}
	return data, nil
}
