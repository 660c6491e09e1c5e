package assignment

import (
	"context"

	"github.com/google/uuid"

	"github.com/novasend/novasend-platform/internal/identity"
	"github.com/novasend/novasend-platform/pkg/logging"
)

type store interface {
	GetAssignee(ctx context.Context, id uuid.UUID) (*Assignee, error)
	Reassign(ctx context.Context, conversationID uuid.UUID, newAssigneeID *uuid.UUID, expectedVersion int64, actorID, reason string) (*Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
}

// Coordinator is the only path that mutates conversation assignment state.
type Coordinator struct {
	store  store
	logger *logging.Logger
}

func NewCoordinator(store store, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{store: store, logger: logger}
}

// Reassign validates the actor's capability and the target assignee, then
// delegates to the store's compare-and-swap. A nil newAssigneeID unassigns
// the conversation and re-activates the chatbot.
func (c *Coordinator) Reassign(ctx context.Context, actor identity.Actor, conversationID uuid.UUID, newAssigneeID *uuid.UUID, expectedVersion int64, reason string) (*Conversation, error) {
	if !actor.CanAssign() {
		return nil, ErrNotPermitted
	}

	if newAssigneeID != nil {
		assignee, err := c.store.GetAssignee(ctx, *newAssigneeID)
		if err != nil {
			return nil, err
		}
		if !assignee.Active || !EligibleRoles[assignee.Role] {
			return nil, ErrAssigneeNotEligible
		}
	}

	conv, err := c.store.Reassign(ctx, conversationID, newAssigneeID, expectedVersion, actor.ID, reason)
	if err != nil {
		return nil, err
	}
	c.logger.Info("conversation reassigned",
		"conversation_id", conversationID,
		"actor_id", actor.ID,
		"version", conv.Version,
	)
	return conv, nil
}

// Get returns the current assignment view of a conversation.
func (c *Coordinator) Get(ctx context.Context, conversationID uuid.UUID) (*Conversation, error) {
	return c.store.GetConversation(ctx, conversationID)
}
