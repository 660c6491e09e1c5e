package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/novasend/novasend-platform/internal/assignment"
	"github.com/novasend/novasend-platform/internal/campaign"
	httpmiddleware "github.com/novasend/novasend-platform/internal/http/middleware"
	"github.com/novasend/novasend-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger            *logging.Logger
	CampaignHandler   *campaign.Handler
	LiveFeed          *campaign.LiveFeed
	AssignmentHandler *assignment.Handler
	MetricsHandler    http.Handler

	// OperatorAuthSecret enables the operator JWT guard. When empty every
	// operator route answers 401.
	OperatorAuthSecret string
	CORSAllowedOrigins []string

	// RateLimitPerSecond caps requests per client IP; zero disables limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSecond > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	}

	// Public endpoints (health, metrics, live counter feed)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		// Browsers cannot attach Authorization headers to WebSocket
		// upgrades, so the live feed stays outside the JWT guard.
		if cfg.LiveFeed != nil {
			public.Get("/campaigns/{campaignID}/live", cfg.LiveFeed.HandleWebSocket)
		}
	})

	// Operator console routes (protected by JWT)
	r.Group(func(operator chi.Router) {
		operator.Use(httpmiddleware.OperatorJWT(cfg.OperatorAuthSecret))

		if cfg.CampaignHandler != nil {
			operator.Route("/campaigns", func(r chi.Router) {
				r.Post("/", cfg.CampaignHandler.Create)
				r.Route("/{campaignID}", func(r chi.Router) {
					r.Get("/", cfg.CampaignHandler.Get)
					r.Get("/details", cfg.CampaignHandler.ListDetails)
					r.Post("/cancel", cfg.CampaignHandler.Cancel)
				})
			})
		}

		if cfg.AssignmentHandler != nil {
			operator.Route("/conversations/{conversationID}", func(r chi.Router) {
				r.Get("/assignee", cfg.AssignmentHandler.Get)
				r.Put("/assignee", cfg.AssignmentHandler.Reassign)
			})
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
