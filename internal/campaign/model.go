package campaign

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a campaign aggregate.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// DeliveryStatus is the per-recipient delivery state on a Detail row.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliverySent       DeliveryStatus = "sent"
	DeliveryFailed     DeliveryStatus = "failed"
)

// Counters are the four mutually-exclusive per-recipient tallies.
// They always sum to the campaign's TotalRecipients.
type Counters struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
}

// Campaign is one bulk send: a template dispatched over one channel to many recipients.
type Campaign struct {
	ID              uuid.UUID  `json:"id"`
	ChannelID       uuid.UUID  `json:"channel_id"`
	TemplateName    string     `json:"template_name"`
	TemplateBody    string     `json:"template_body"`
	Name            string     `json:"name"`
	OwnerEmail      string     `json:"owner_email,omitempty"`
	TotalRecipients int        `json:"total_recipients"`
	Counters        Counters   `json:"counters"`
	Status          Status     `json:"status"`
	ErrorSummary    string     `json:"error_summary,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Detail is the durable per-recipient delivery record. It outlives the
// transient queue item that schedules the send.
type Detail struct {
	ID                uuid.UUID         `json:"id"`
	CampaignID        uuid.UUID         `json:"campaign_id"`
	Phone             string            `json:"phone"`
	RecipientName     string            `json:"recipient_name,omitempty"`
	Variables         map[string]string `json:"variables,omitempty"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
	Status            DeliveryStatus    `json:"status"`
	ErrorCode         string            `json:"error_code,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	SentAt            *time.Time        `json:"sent_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Terminal reports whether the delivery state can no longer change.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySent || s == DeliveryFailed
}
