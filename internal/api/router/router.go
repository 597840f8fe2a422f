package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/salon-sms-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/salon-sms-booking/internal/http/middleware"
	"github.com/wolfman30/salon-sms-booking/internal/messaging"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger               *logging.Logger
	MessagingHandler     *messaging.Handler
	ConversationsHandler *handlers.ConversationsHandler
	HealthHandler        http.Handler
	MetricsHandler       http.Handler
	AdminAuthSecret      string
	// SimulateEnabled exposes POST /conversations/simulate behind the admin
	// token. It has no effect without AdminAuthSecret.
	SimulateEnabled bool
	RateLimitRPS    float64
	RateLimitBurst  int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	health := cfg.HealthHandler
	if health == nil {
		health = handlers.NewHealthHandler(nil, cfg.Logger)
	}
	r.Method(http.MethodGet, "/health", health)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// Twilio retries aggressively on errors, so the webhook sits outside the rate limit.
	if cfg.MessagingHandler != nil {
		r.Post("/webhooks/twilio/sms", cfg.MessagingHandler.TwilioWebhook)
	}

	if cfg.ConversationsHandler == nil || cfg.AdminAuthSecret == "" {
		return r
	}

	// Simulate runs the real engine against the real calendar.
	if cfg.SimulateEnabled {
		r.With(
			httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
			httpmiddleware.AdminJWT(cfg.AdminAuthSecret, cfg.Logger),
		).Post("/conversations/simulate", cfg.ConversationsHandler.Simulate)
	}

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, cfg.Logger))
		admin.Get("/conversations/{phone}", cfg.ConversationsHandler.GetConversation)
		admin.Delete("/conversations/{phone}", cfg.ConversationsHandler.ResetConversation)
		admin.Get("/stats", cfg.ConversationsHandler.Stats)
		admin.Put("/auto-respond", cfg.ConversationsHandler.SetAutoRespond)
	})

	return r
}
