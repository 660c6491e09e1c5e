package campaign

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/novasend/novasend-platform/internal/dispatch"
	"github.com/novasend/novasend-platform/pkg/logging"
)

type enqueuer interface {
	Enqueue(ctx context.Context, q dispatch.Querier, campaignID, channelID uuid.UUID, recipients []dispatch.Recipient) (int64, error)
}

// RegisterRequest carries everything needed to create a campaign.
type RegisterRequest struct {
	ChannelID    uuid.UUID
	TemplateName string
	TemplateBody string
	Name         string
	OwnerEmail   string
	Rows         []Row
}

// Registrar creates campaigns. The campaign row, its details, and its queue
// items commit in one transaction: a partially registered campaign is never
// observable.
type Registrar struct {
	store     *Store
	validator *Validator
	enqueuer  enqueuer
	logger    *logging.Logger
}

func NewRegistrar(store *Store, validator *Validator, enq enqueuer, logger *logging.Logger) *Registrar {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registrar{store: store, validator: validator, enqueuer: enq, logger: logger}
}

// Register validates the raw rows and creates the campaign atomically.
// Any rejected row fails the whole request with per-row diagnostics.
func (r *Registrar) Register(ctx context.Context, req RegisterRequest) (*Campaign, error) {
	if req.ChannelID == uuid.Nil {
		return nil, fmt.Errorf("campaign: channel id required")
	}
	if strings.TrimSpace(req.TemplateBody) == "" {
		return nil, fmt.Errorf("campaign: template body required")
	}
	if len(req.Rows) == 0 {
		return nil, ErrNoRecipients
	}

	result := r.validator.ValidateBatch(req.Rows)
	if err := result.Err(); err != nil {
		return nil, err
	}

	tx, err := r.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("campaign: begin registration: %w", err)
	}
	defer tx.Rollback(ctx)

	c := &Campaign{
		ChannelID:       req.ChannelID,
		TemplateName:    req.TemplateName,
		TemplateBody:    req.TemplateBody,
		Name:            req.Name,
		OwnerEmail:      req.OwnerEmail,
		TotalRecipients: len(result.Recipients),
	}
	if err := r.store.Insert(ctx, tx, c); err != nil {
		return nil, err
	}
	if err := r.store.InsertDetails(ctx, tx, c.ID, result.Recipients); err != nil {
		return nil, err
	}

	items := make([]dispatch.Recipient, 0, len(result.Recipients))
	for _, rec := range result.Recipients {
		items = append(items, dispatch.Recipient{
			Phone:     rec.Phone,
			Name:      rec.Name,
			Variables: rec.Variables,
			Priority:  rec.Priority,
		})
	}
	if _, err := r.enqueuer.Enqueue(ctx, tx, c.ID, c.ChannelID, items); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("campaign: commit registration: %w", err)
	}

	r.logger.Info("campaign registered",
		"campaign_id", c.ID,
		"channel_id", c.ChannelID,
		"recipients", c.TotalRecipients,
	)
	return c, nil
}
