package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/novasend/novasend-platform/pkg/logging"
)

// Querier is satisfied by both pgxpool.Pool and pgx.Tx, letting callers
// insert outbox rows inside their own transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, env Envelope) error
}

// OutboxStore persists events for reliable delivery.
type OutboxStore struct {
	pool Querier
}

func NewOutboxStore(pool Querier) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{pool: pool}
}

// Insert stores an event in the outbox. Passing the caller's transaction as
// q makes the event atomic with the caller's state change.
func (s *OutboxStore) Insert(ctx context.Context, q Querier, aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) (uuid.UUID, error) {
	if q == nil {
		q = s.pool
	}
	env, err := NewEnvelope(aggregate, evt, opts...)
	if err != nil {
		return uuid.Nil, err
	}
	query := `
		INSERT INTO outbox (id, aggregate, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := q.Exec(ctx, query, env.EventID, env.Aggregate, env.EventType, []byte(env.Payload)); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return env.EventID, nil
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]Envelope, error) {
	query := `
		SELECT id, aggregate, event_type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []Envelope
	for rows.Next() {
		var env Envelope
		var payload []byte
		var createdAt time.Time
		if err := rows.Scan(&env.EventID, &env.Aggregate, &env.EventType, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		env.Payload = json.RawMessage(append([]byte(nil), payload...))
		env.TimestampMicros = createdAt.UTC().UnixMicro()
		entries = append(entries, env)
	}
	return entries, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store     *OutboxStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 50,
		interval:  time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, env := range entries {
		if err := d.handler.Handle(ctx, env); err != nil {
			d.logger.Error("outbox delivery failed", "error", err, "event_id", env.EventID, "type", env.EventType)
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, env.EventID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", env.EventID)
		} else if ok {
			d.logger.Debug("outbox delivered", "event_id", env.EventID, "type", env.EventType)
		}
	}
}
