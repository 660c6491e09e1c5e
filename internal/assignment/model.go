// Package assignment applies optimistic-concurrency mutations to
// conversation assignment state. Every accepted mutation bumps the version
// by exactly one and appends an audit entry in the same transaction; a stale
// expected version is rejected as a conflict, never silently applied.
package assignment

import (
	"time"

	"github.com/google/uuid"
)

// ConversationStatus constrains which conversations accept mutations.
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation is the assignment view of a conversation record.
type Conversation struct {
	ID            uuid.UUID
	AssigneeID    *uuid.UUID
	Status        ConversationStatus
	ChatbotActive bool
	Version       int64
	UpdatedAt     time.Time
}

// Assignee is a human agent eligible to take over conversations.
type Assignee struct {
	ID     uuid.UUID
	Name   string
	Email  string
	Role   string
	Active bool
}

// EligibleRoles lists assignee roles that may hold conversations.
var EligibleRoles = map[string]bool{
	"agent":    true,
	"operator": true,
	"admin":    true,
}

// AuditEntry records one accepted reassignment.
type AuditEntry struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	ActorID        string
	OldAssigneeID  *uuid.UUID
	NewAssigneeID  *uuid.UUID
	Reason         string
	FromVersion    int64
	ToVersion      int64
	CreatedAt      time.Time
}
