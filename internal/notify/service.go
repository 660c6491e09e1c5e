package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/novasend/novasend-platform/internal/campaign"
	"github.com/novasend/novasend-platform/pkg/logging"
)

// CampaignStore retrieves campaign aggregates for notification content.
type CampaignStore interface {
	Get(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error)
}

// Service emails campaign owners when their campaign finishes.
type Service struct {
	email     EmailSender
	campaigns CampaignStore
	logger    *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, campaigns CampaignStore, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, campaigns: campaigns, logger: logger}
}

// CampaignCompleted sends the owner a delivery summary once the last
// recipient reaches a terminal state. A campaign without an owner email is
// skipped silently.
func (s *Service) CampaignCompleted(ctx context.Context, campaignID uuid.UUID) error {
	if s.email == nil || s.campaigns == nil {
		s.logger.Debug("notify: email sender not configured, skipping summary", "campaign_id", campaignID)
		return nil
	}

	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("notify: get campaign: %w", err)
	}
	if c.OwnerEmail == "" {
		s.logger.Debug("notify: campaign has no owner email", "campaign_id", campaignID)
		return nil
	}

	name := c.Name
	if name == "" {
		name = c.ID.String()
	}

	subject := fmt.Sprintf("Campaign finished - %s", name)
	if c.Status == campaign.StatusFailed {
		subject = fmt.Sprintf("Campaign failed - %s", name)
	}

	body := fmt.Sprintf(`Your campaign %q has finished.

Status: %s
Recipients: %d
Delivered: %d
Failed: %d%s%s

— NovaSend`, name, c.Status, c.TotalRecipients, c.Counters.Successful, c.Counters.Failed,
		formatErrorSummary(c.ErrorSummary), formatTiming(c))

	html := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2>Campaign %s</h2>
<p>Your campaign <strong>%s</strong> has finished.</p>
<table style="border-collapse: collapse; margin: 20px 0;">
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Recipients:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%d</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Delivered:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%d</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Failed:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%d</td></tr>
</table>%s
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">— NovaSend</p>
</div>`, c.Status, name, c.TotalRecipients, c.Counters.Successful, c.Counters.Failed,
		formatErrorSummaryHTML(c.ErrorSummary))

	msg := EmailMessage{
		To:      c.OwnerEmail,
		Subject: subject,
		Body:    body,
		HTML:    html,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("notify: failed to send campaign summary", "error", err, "campaign_id", campaignID, "to", c.OwnerEmail)
		return err
	}
	s.logger.Info("notify: campaign summary sent", "campaign_id", campaignID, "to", c.OwnerEmail)
	return nil
}

func formatErrorSummary(summary string) string {
	if summary == "" {
		return ""
	}
	return fmt.Sprintf("\nError: %s", summary)
}

func formatErrorSummaryHTML(summary string) string {
	if summary == "" {
		return ""
	}
	return fmt.Sprintf(`
<p style="background: #fef2f2; padding: 12px; border-radius: 8px; border-left: 4px solid #ef4444;">%s</p>`, summary)
}

func formatTiming(c *campaign.Campaign) string {
	if c.StartedAt == nil || c.CompletedAt == nil {
		return ""
	}
	return fmt.Sprintf("\nDuration: %s", c.CompletedAt.Sub(*c.StartedAt).Round(time.Second))
}
