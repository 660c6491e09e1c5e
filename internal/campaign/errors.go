package campaign

import (
	"errors"
	"fmt"
)

var (
	// ErrCampaignNotFound is returned when no campaign exists for the id.
	ErrCampaignNotFound = errors.New("campaign: not found")

	// ErrNoRecipients is returned when a registration carries an empty recipient set.
	ErrNoRecipients = errors.New("campaign: at least one recipient is required")

	// ErrNotCancellable is returned when cancel is requested on a terminal campaign.
	ErrNotCancellable = errors.New("campaign: campaign already finished")
)

// ValidationError aggregates per-row recipient failures. It is reported to
// the caller before any state is created.
type ValidationError struct {
	Rows []RowError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("campaign: %d recipient row(s) failed validation", len(e.Rows))
}

// RowError describes why a single input row was rejected. Index is 1-based.
type RowError struct {
	Row     int      `json:"row"`
	Reasons []string `json:"reasons"`
}
