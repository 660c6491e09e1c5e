package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProcessedStore records transition events that were already applied, giving
// the reconciler exactly-once semantics over an at-least-once transport.
type ProcessedStore struct {
	pool Querier
}

func NewProcessedStore(pool Querier) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

// AlreadyProcessed checks if this event id was applied for the source.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, q Querier, source string, eventID uuid.UUID) (bool, error) {
	if q == nil {
		q = s.pool
	}
	query := `SELECT 1 FROM processed_events WHERE source = $1 AND event_id = $2`
	var exists int
	if err := q.QueryRow(ctx, query, source, eventID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts an event id for the source, returning false if it
// already exists. Run inside the applying transaction so the dedupe record
// and the applied effects commit or roll back together.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, q Querier, source string, eventID uuid.UUID) (bool, error) {
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO processed_events (source, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := q.Exec(ctx, query, source, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
