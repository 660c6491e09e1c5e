package assignment

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/novasend/novasend-platform/internal/identity"
	"github.com/novasend/novasend-platform/pkg/logging"
)

// Handler exposes the assignment mutation endpoint.
type Handler struct {
	coordinator *Coordinator
	logger      *logging.Logger
}

func NewHandler(coordinator *Coordinator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{coordinator: coordinator, logger: logger}
}

// ReassignRequest is the mutation payload. A null assignee_id unassigns.
type ReassignRequest struct {
	AssigneeID      *uuid.UUID `json:"assignee_id"`
	ExpectedVersion int64      `json:"expected_version"`
	Reason          string     `json:"reason"`
}

// ConversationResponse is the wire form of a conversation.
type ConversationResponse struct {
	ID            uuid.UUID  `json:"id"`
	AssigneeID    *uuid.UUID `json:"assignee_id"`
	Status        string     `json:"status"`
	ChatbotActive bool       `json:"chatbot_active"`
	Version       int64      `json:"version"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toResponse(c *Conversation) ConversationResponse {
	return ConversationResponse{
		ID:            c.ID,
		AssigneeID:    c.AssigneeID,
		Status:        string(c.Status),
		ChatbotActive: c.ChatbotActive,
		Version:       c.Version,
		UpdatedAt:     c.UpdatedAt,
	}
}

// Reassign handles PUT /conversations/{conversationID}/assignee.
func (h *Handler) Reassign(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	var req ReassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ExpectedVersion < 0 {
		http.Error(w, "expected_version must be non-negative", http.StatusBadRequest)
		return
	}

	conv, err := h.coordinator.Reassign(r.Context(), actor, conversationID, req.AssigneeID, req.ExpectedVersion, req.Reason)
	if err != nil {
		h.writeError(w, conversationID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toResponse(conv))
}

// Get handles GET /conversations/{conversationID}/assignee.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	conv, err := h.coordinator.Get(r.Context(), conversationID)
	if err != nil {
		h.writeError(w, conversationID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toResponse(conv))
}

func (h *Handler) writeError(w http.ResponseWriter, conversationID uuid.UUID, err error) {
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"error":           "version conflict",
			"current_version": conflict.CurrentVersion,
		})
	case errors.Is(err, ErrNotPermitted):
		http.Error(w, "not permitted", http.StatusForbidden)
	case errors.Is(err, ErrAssigneeNotEligible):
		http.Error(w, "assignee not eligible", http.StatusBadRequest)
	case errors.Is(err, ErrConversationClosed):
		http.Error(w, "conversation is closed", http.StatusBadRequest)
	case errors.Is(err, ErrConversationNotFound):
		http.Error(w, "conversation not found", http.StatusNotFound)
	default:
		h.logger.Error("reassign failed", "error", err, "conversation_id", conversationID)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
