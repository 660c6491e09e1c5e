package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Store persists conversations, assignees, and the reassignment audit trail.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var c Conversation
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, assignee_id, status, chatbot_active, version, updated_at
		FROM conversations
		WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.AssigneeID, &status, &c.ChatbotActive, &c.Version, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("assignment: select conversation: %w", err)
	}
	c.Status = ConversationStatus(status)
	return &c, nil
}

func (s *Store) GetAssignee(ctx context.Context, id uuid.UUID) (*Assignee, error) {
	var a Assignee
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, active
		FROM assignees
		WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssigneeNotEligible
		}
		return nil, fmt.Errorf("assignment: select assignee: %w", err)
	}
	return &a, nil
}

// Reassign performs the compare-and-swap on the conversation version and
// appends the audit entry in the same transaction. The conditional update is
// the concurrency guard: no read precedes the write, conflicts surface as
// zero affected rows.
func (s *Store) Reassign(ctx context.Context, conversationID uuid.UUID, newAssigneeID *uuid.UUID, expectedVersion int64, actorID, reason string) (*Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("assignment: begin reassign: %w", err)
	}
	defer tx.Rollback()

	var c Conversation
	var status string
	var oldAssignee *uuid.UUID
	// The subselect in RETURNING runs against the statement snapshot, so it
	// yields the assignee before the update.
	err = tx.QueryRowContext(ctx, `
		UPDATE conversations
		SET assignee_id = $2,
		    chatbot_active = ($2 IS NULL),
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND version = $3 AND status = 'open'
		RETURNING id, assignee_id, status, chatbot_active, version, updated_at,
		          (SELECT assignee_id FROM conversations WHERE id = $1)`,
		conversationID, newAssigneeID, expectedVersion,
	).Scan(&c.ID, &c.AssigneeID, &status, &c.ChatbotActive, &c.Version, &c.UpdatedAt, &oldAssignee)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyConflict(ctx, conversationID)
		}
		return nil, fmt.Errorf("assignment: reassign conversation: %w", err)
	}
	c.Status = ConversationStatus(status)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assignment_audit (
			id, conversation_id, actor_id, old_assignee_id, new_assignee_id,
			reason, from_version, to_version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), conversationID, actorID, oldAssignee, newAssigneeID,
		reason, expectedVersion, c.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("assignment: insert audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("assignment: commit reassign: %w", err)
	}
	return &c, nil
}

// classifyConflict distinguishes why the conditional update matched nothing.
func (s *Store) classifyConflict(ctx context.Context, conversationID uuid.UUID) error {
	current, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if current.Status == ConversationClosed {
		return ErrConversationClosed
	}
	return &ConflictError{CurrentVersion: current.Version}
}

// ListAudit returns the newest audit entries for a conversation.
func (s *Store) ListAudit(ctx context.Context, conversationID uuid.UUID, limit int) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, actor_id, old_assignee_id, new_assignee_id,
		       reason, from_version, to_version, created_at
		FROM assignment_audit
		WHERE conversation_id = $1
		ORDER BY created_at DESC, to_version DESC
		LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("assignment: list audit: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(
			&e.ID, &e.ConversationID, &e.ActorID, &e.OldAssigneeID, &e.NewAssigneeID,
			&e.Reason, &e.FromVersion, &e.ToVersion, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("assignment: scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
