package assignment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/novasend/novasend-platform/internal/identity"
)

func newTestRouter(coord *Coordinator) http.Handler {
	h := NewHandler(coord, nil)
	r := chi.NewRouter()
	r.Put("/conversations/{conversationID}/assignee", h.Reassign)
	r.Get("/conversations/{conversationID}/assignee", h.Get)
	return r
}

func doReassign(t *testing.T, router http.Handler, actor *identity.Actor, conversationID uuid.UUID, body ReassignRequest) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	url := fmt.Sprintf("/conversations/%s/assignee", conversationID)
	req := httptest.NewRequest(http.MethodPut, url, bytes.NewReader(payload))
	if actor != nil {
		req = req.WithContext(identity.WithActor(context.Background(), *actor))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestReassignEndpointSuccess(t *testing.T) {
	store, conversationID, assigneeID := seedStore(t)
	router := newTestRouter(NewCoordinator(store, nil))

	rec := doReassign(t, router, &operator, conversationID, ReassignRequest{
		AssigneeID:      &assigneeID,
		ExpectedVersion: 5,
		Reason:          "escalation",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp ConversationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Version != 6 || resp.AssigneeID == nil || *resp.AssigneeID != assigneeID {
		t.Errorf("response = %+v", resp)
	}
}

func TestReassignEndpointConflictCarriesCurrentVersion(t *testing.T) {
	store, conversationID, assigneeID := seedStore(t)
	router := newTestRouter(NewCoordinator(store, nil))

	rec := doReassign(t, router, &operator, conversationID, ReassignRequest{
		AssigneeID:      &assigneeID,
		ExpectedVersion: 4, // stale
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["current_version"] != float64(5) {
		t.Errorf("current_version = %v, want 5", resp["current_version"])
	}
}

func TestReassignEndpointForbidden(t *testing.T) {
	store, conversationID, assigneeID := seedStore(t)
	router := newTestRouter(NewCoordinator(store, nil))
	viewer := identity.Actor{ID: "v-1", Role: identity.RoleViewer}

	rec := doReassign(t, router, &viewer, conversationID, ReassignRequest{
		AssigneeID:      &assigneeID,
		ExpectedVersion: 5,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestReassignEndpointInvalidAssignee(t *testing.T) {
	store, conversationID, _ := seedStore(t)
	router := newTestRouter(NewCoordinator(store, nil))
	unknown := uuid.New()

	rec := doReassign(t, router, &operator, conversationID, ReassignRequest{
		AssigneeID:      &unknown,
		ExpectedVersion: 5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReassignEndpointNotFound(t *testing.T) {
	store, _, assigneeID := seedStore(t)
	router := newTestRouter(NewCoordinator(store, nil))

	rec := doReassign(t, router, &operator, uuid.New(), ReassignRequest{
		AssigneeID:      &assigneeID,
		ExpectedVersion: 5,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestReassignEndpointUnauthenticated(t *testing.T) {
	store, conversationID, assigneeID := seedStore(t)
	router := newTestRouter(NewCoordinator(store, nil))

	rec := doReassign(t, router, nil, conversationID, ReassignRequest{
		AssigneeID:      &assigneeID,
		ExpectedVersion: 5,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
