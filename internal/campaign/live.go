package campaign

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/novasend/novasend-platform/pkg/logging"
)

// LiveFeed streams counter snapshots over a WebSocket so the UI can follow a
// running campaign without polling the REST endpoint.
type LiveFeed struct {
	status   statusReader
	logger   *logging.Logger
	interval time.Duration
}

func NewLiveFeed(status statusReader, logger *logging.Logger) *LiveFeed {
	if logger == nil {
		logger = logging.Default()
	}
	return &LiveFeed{status: status, logger: logger, interval: time.Second}
}

func (f *LiveFeed) WithInterval(d time.Duration) *LiveFeed {
	if d > 0 {
		f.interval = d
	}
	return f
}

// LiveUpdate is one frame on the feed.
type LiveUpdate struct {
	Type     string            `json:"type"` // "status" or "error"
	Error    string            `json:"error,omitempty"`
	Campaign *CampaignResponse `json:"campaign,omitempty"`
}

// HandleWebSocket upgrades GET /campaigns/{campaignID}/live.
func (f *LiveFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		f.serve(conn, r)
	}).ServeHTTP(w, r)
}

func (f *LiveFeed) serve(conn *websocket.Conn, r *http.Request) {
	defer conn.Close()

	id, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		_ = websocket.JSON.Send(conn, LiveUpdate{Type: "error", Error: "invalid campaign id"})
		return
	}

	ctx := r.Context()
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var last *CampaignResponse
	for {
		c, err := f.status.Get(ctx, id)
		if err != nil {
			_ = websocket.JSON.Send(conn, LiveUpdate{Type: "error", Error: "campaign not found"})
			return
		}

		resp := toCampaignResponse(c)
		if last == nil || resp.Successful != last.Successful || resp.Failed != last.Failed ||
			resp.Pending != last.Pending || resp.Processing != last.Processing || resp.Status != last.Status {
			if err := websocket.JSON.Send(conn, LiveUpdate{Type: "status", Campaign: &resp}); err != nil {
				// client went away
				return
			}
			last = &resp
		}

		switch c.Status {
		case StatusCompleted, StatusFailed, StatusCancelled:
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
