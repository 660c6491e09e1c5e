package campaign

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type fakeRegistrar struct {
	campaign *Campaign
	err      error
}

func (f *fakeRegistrar) Register(_ context.Context, _ RegisterRequest) (*Campaign, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.campaign, nil
}

type fakeStatusReader struct {
	campaign *Campaign
}

func (f *fakeStatusReader) Get(_ context.Context, id uuid.UUID) (*Campaign, error) {
	if f.campaign == nil || f.campaign.ID != id {
		return nil, ErrCampaignNotFound
	}
	return f.campaign, nil
}

type fakeDetailStore struct {
	details   []Detail
	cancelErr error
	cancelled []uuid.UUID
	limit     int
	offset    int
}

func (f *fakeDetailStore) ListDetails(_ context.Context, _ uuid.UUID, limit, offset int) ([]Detail, error) {
	f.limit, f.offset = limit, offset
	return f.details, nil
}

func (f *fakeDetailStore) Cancel(_ context.Context, id uuid.UUID) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func newHandlerFixture(reg *fakeRegistrar, status *fakeStatusReader, store *fakeDetailStore) *chi.Mux {
	h := NewHandler(reg, status, store, nil)
	r := chi.NewRouter()
	r.Post("/campaigns", h.Create)
	r.Get("/campaigns/{campaignID}", h.Get)
	r.Get("/campaigns/{campaignID}/details", h.ListDetails)
	r.Post("/campaigns/{campaignID}/cancel", h.Cancel)
	return r
}

func TestCreateCampaignReturnsSnapshot(t *testing.T) {
	created := &Campaign{
		ID:              uuid.New(),
		ChannelID:       uuid.New(),
		Status:          StatusPending,
		TotalRecipients: 3,
		Counters:        Counters{Pending: 3},
		CreatedAt:       time.Now(),
	}
	router := newHandlerFixture(&fakeRegistrar{campaign: created}, &fakeStatusReader{}, &fakeDetailStore{})

	body := `{"channel_id":"` + created.ChannelID.String() + `","template_body":"hi {{.name}}","recipients":[{"phone":"+15551230001"}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp CampaignResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != created.ID || resp.Pending != 3 || resp.Status != "pending" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCreateCampaignReportsPerRowErrors(t *testing.T) {
	reg := &fakeRegistrar{err: &ValidationError{Rows: []RowError{
		{Row: 2, Reasons: []string{"invalid phone format"}},
		{Row: 3, Reasons: []string{"duplicate phone within batch"}},
	}}}
	router := newHandlerFixture(reg, &fakeStatusReader{}, &fakeDetailStore{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/campaigns",
		strings.NewReader(`{"channel_id":"`+uuid.NewString()+`","template_body":"hi","recipients":[{"phone":"x"}]}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		Error string     `json:"error"`
		Rows  []RowError `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Rows) != 2 || resp.Rows[0].Row != 2 {
		t.Errorf("rows = %+v", resp.Rows)
	}
}

func TestCreateCampaignRejectsMalformedBody(t *testing.T) {
	router := newHandlerFixture(&fakeRegistrar{}, &fakeStatusReader{}, &fakeDetailStore{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader("{")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetCampaignNotFound(t *testing.T) {
	router := newHandlerFixture(&fakeRegistrar{}, &fakeStatusReader{}, &fakeDetailStore{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns/"+uuid.NewString(), nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListDetailsPaginates(t *testing.T) {
	store := &fakeDetailStore{details: []Detail{
		{ID: uuid.New(), Phone: "+15551230001", Status: DeliverySent},
	}}
	router := newHandlerFixture(&fakeRegistrar{}, &fakeStatusReader{}, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/campaigns/"+uuid.NewString()+"/details?page=3&page_size=20", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if store.limit != 20 || store.offset != 40 {
		t.Errorf("limit=%d offset=%d, want 20/40", store.limit, store.offset)
	}
	var resp struct {
		Details  []DetailResponse `json:"details"`
		Page     int              `json:"page"`
		PageSize int              `json:"page_size"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Page != 3 || resp.PageSize != 20 || len(resp.Details) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestCancelCampaignAccepted(t *testing.T) {
	store := &fakeDetailStore{}
	router := newHandlerFixture(&fakeRegistrar{}, &fakeStatusReader{}, store)
	id := uuid.New()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/campaigns/"+id.String()+"/cancel", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(store.cancelled) != 1 || store.cancelled[0] != id {
		t.Errorf("cancelled = %v", store.cancelled)
	}
}

func TestCancelFinishedCampaignConflicts(t *testing.T) {
	router := newHandlerFixture(&fakeRegistrar{}, &fakeStatusReader{}, &fakeDetailStore{cancelErr: ErrNotCancellable})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/campaigns/"+uuid.NewString()+"/cancel", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}
