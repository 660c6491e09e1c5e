package assignment

import (
	"errors"
	"fmt"
)

var (
	// ErrConversationNotFound maps to 404.
	ErrConversationNotFound = errors.New("assignment: conversation not found")
	// ErrNotPermitted maps to 403: the actor lacks the reassign capability.
	ErrNotPermitted = errors.New("assignment: actor not permitted to reassign")
	// ErrAssigneeNotEligible maps to 400: unknown, inactive, or wrong role.
	ErrAssigneeNotEligible = errors.New("assignment: assignee not eligible")
	// ErrConversationClosed maps to 400: closed conversations are immutable.
	ErrConversationClosed = errors.New("assignment: conversation is closed")
)

// ConflictError maps to 409: the caller presented a stale version. It
// carries the current version so the caller can re-read and retry.
type ConflictError struct {
	CurrentVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("assignment: version conflict (current=%d)", e.CurrentVersion)
}
