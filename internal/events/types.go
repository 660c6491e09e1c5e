package events

import (
	"time"

	"github.com/google/uuid"
)

// Dispatch transition events. Workers produce them through the outbox in the
// same transaction as the queue-item state change; the reconciler is their
// only consumer and the sole writer of campaign counters.

type RecipientClaimedV1 struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Phone      string    `json:"phone"`
	LeaseToken uuid.UUID `json:"lease_token"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

func (RecipientClaimedV1) EventType() string { return "campaign.recipient.claimed.v1" }

type RecipientRequeuedV1 struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Phone      string    `json:"phone"`
	Reason     string    `json:"reason"`
	RequeuedAt time.Time `json:"requeued_at"`
}

func (RecipientRequeuedV1) EventType() string { return "campaign.recipient.requeued.v1" }

type MessageSentV1 struct {
	CampaignID        uuid.UUID `json:"campaign_id"`
	Phone             string    `json:"phone"`
	ProviderMessageID string    `json:"provider_message_id"`
	SentAt            time.Time `json:"sent_at"`
}

func (MessageSentV1) EventType() string { return "campaign.message.sent.v1" }

type MessageFailedV1 struct {
	CampaignID   uuid.UUID `json:"campaign_id"`
	Phone        string    `json:"phone"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
	FailedAt     time.Time `json:"failed_at"`
}

func (MessageFailedV1) EventType() string { return "campaign.message.failed.v1" }

// CampaignAbortedV1 signals a catastrophic, batch-wide failure such as the
// sending channel being revoked mid-run.
type CampaignAbortedV1 struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Reason     string    `json:"reason"`
	AbortedAt  time.Time `json:"aborted_at"`
}

func (CampaignAbortedV1) EventType() string { return "campaign.aborted.v1" }
