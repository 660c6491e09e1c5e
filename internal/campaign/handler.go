package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/novasend/novasend-platform/pkg/logging"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type registrarAPI interface {
	Register(ctx context.Context, req RegisterRequest) (*Campaign, error)
}

type statusReader interface {
	Get(ctx context.Context, id uuid.UUID) (*Campaign, error)
}

type detailStore interface {
	ListDetails(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]Detail, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Handler exposes campaign registration, status, details, and cancellation.
type Handler struct {
	registrar registrarAPI
	status    statusReader
	store     detailStore
	cache     *StatusCache
	logger    *logging.Logger
}

func NewHandler(registrar registrarAPI, status statusReader, store detailStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{registrar: registrar, status: status, store: store, logger: logger}
}

// WithCache lets cancellation invalidate the status snapshot immediately.
func (h *Handler) WithCache(cache *StatusCache) *Handler {
	h.cache = cache
	return h
}

// CreateCampaignRequest is the registration payload. Each recipient row is a
// free-form column map; phone is required, name and priority are recognized,
// everything else becomes a template variable.
type CreateCampaignRequest struct {
	ChannelID    uuid.UUID `json:"channel_id"`
	TemplateName string    `json:"template_name"`
	TemplateBody string    `json:"template_body"`
	Name         string    `json:"name"`
	OwnerEmail   string    `json:"owner_email"`
	Recipients   []Row     `json:"recipients"`
}

// CampaignResponse is the wire form of a campaign aggregate.
type CampaignResponse struct {
	ID              uuid.UUID  `json:"id"`
	ChannelID       uuid.UUID  `json:"channel_id"`
	TemplateName    string     `json:"template_name"`
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	TotalRecipients int        `json:"total_recipients"`
	Successful      int        `json:"successful"`
	Failed          int        `json:"failed"`
	Pending         int        `json:"pending"`
	Processing      int        `json:"processing"`
	ErrorSummary    string     `json:"error_summary,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func toCampaignResponse(c *Campaign) CampaignResponse {
	return CampaignResponse{
		ID:              c.ID,
		ChannelID:       c.ChannelID,
		TemplateName:    c.TemplateName,
		Name:            c.Name,
		Status:          string(c.Status),
		TotalRecipients: c.TotalRecipients,
		Successful:      c.Counters.Successful,
		Failed:          c.Counters.Failed,
		Pending:         c.Counters.Pending,
		Processing:      c.Counters.Processing,
		ErrorSummary:    c.ErrorSummary,
		CreatedAt:       c.CreatedAt,
		StartedAt:       c.StartedAt,
		CompletedAt:     c.CompletedAt,
	}
}

// DetailResponse is the wire form of one recipient's delivery record.
type DetailResponse struct {
	ID                uuid.UUID         `json:"id"`
	Phone             string            `json:"phone"`
	RecipientName     string            `json:"recipient_name,omitempty"`
	Variables         map[string]string `json:"variables,omitempty"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
	Status            string            `json:"status"`
	ErrorCode         string            `json:"error_code,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	SentAt            *time.Time        `json:"sent_at,omitempty"`
}

// Create handles POST /campaigns.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.registrar.Register(r.Context(), RegisterRequest{
		ChannelID:    req.ChannelID,
		TemplateName: req.TemplateName,
		TemplateBody: req.TemplateBody,
		Name:         req.Name,
		OwnerEmail:   req.OwnerEmail,
		Rows:         req.Recipients,
	})
	if err != nil {
		var vErr *ValidationError
		switch {
		case errors.As(err, &vErr):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": "validation failed",
				"rows":  vErr.Rows,
			})
		case errors.Is(err, ErrNoRecipients):
			http.Error(w, "recipients required", http.StatusBadRequest)
		default:
			h.logger.Error("campaign registration failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toCampaignResponse(c))
}

// Get handles GET /campaigns/{campaignID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	c, err := h.status.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrCampaignNotFound) {
			http.Error(w, "campaign not found", http.StatusNotFound)
			return
		}
		h.logger.Error("campaign status read failed", "error", err, "campaign_id", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toCampaignResponse(c))
}

// ListDetails handles GET /campaigns/{campaignID}/details.
func (h *Handler) ListDetails(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil && p > 0 {
			page = p
		}
	}
	pageSize := defaultPageSize
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		if ps, err := strconv.Atoi(raw); err == nil && ps > 0 && ps <= maxPageSize {
			pageSize = ps
		}
	}

	details, err := h.store.ListDetails(r.Context(), id, pageSize, (page-1)*pageSize)
	if err != nil {
		h.logger.Error("campaign details read failed", "error", err, "campaign_id", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	items := make([]DetailResponse, 0, len(details))
	for _, d := range details {
		items = append(items, DetailResponse{
			ID:                d.ID,
			Phone:             d.Phone,
			RecipientName:     d.RecipientName,
			Variables:         d.Variables,
			ProviderMessageID: d.ProviderMessageID,
			Status:            string(d.Status),
			ErrorCode:         d.ErrorCode,
			ErrorMessage:      d.ErrorMessage,
			SentAt:            d.SentAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"details":   items,
		"page":      page,
		"page_size": pageSize,
	})
}

// Cancel handles POST /campaigns/{campaignID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	if err := h.store.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrCampaignNotFound):
			http.Error(w, "campaign not found", http.StatusNotFound)
		case errors.Is(err, ErrNotCancellable):
			http.Error(w, "campaign is no longer cancellable", http.StatusConflict)
		default:
			h.logger.Error("campaign cancel failed", "error", err, "campaign_id", id)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	if h.cache != nil {
		h.cache.Invalidate(r.Context(), id)
	}
	w.WriteHeader(http.StatusAccepted)
}
