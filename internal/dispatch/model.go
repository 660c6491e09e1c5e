// Package dispatch owns the send queue: idempotent expansion of campaigns
// into queue items, leased claims, the worker pool that performs provider
// sends, retry scheduling and lease reaping.
package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// ItemStatus tracks a queue item through its claim lifecycle. Terminal
// outcomes delete the item; only in-flight states are persisted.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
)

// Recipient is one validated entry handed over by campaign registration.
type Recipient struct {
	Phone     string
	Name      string
	Variables map[string]string
	Priority  int
}

// QueueItem is a persisted pending send.
type QueueItem struct {
	ID             uuid.UUID
	CampaignID     uuid.UUID
	ChannelID      uuid.UUID
	Phone          string
	Priority       int
	RetryCount     int
	Status         ItemStatus
	LeaseToken     uuid.UUID
	LeaseExpiresAt *time.Time
	ScheduledFor   time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DueItem is a queue item joined with the campaign fields the worker needs
// to render and send the message.
type DueItem struct {
	ID            uuid.UUID
	CampaignID    uuid.UUID
	ChannelID     uuid.UUID
	Phone         string
	Priority      int
	RetryCount    int
	TemplateBody  string
	RecipientName string
	Variables     map[string]string
}
