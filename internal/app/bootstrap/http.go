package bootstrap

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/salon-sms-booking/internal/api/router"
	"github.com/wolfman30/salon-sms-booking/internal/http/handlers"
	"github.com/wolfman30/salon-sms-booking/internal/messaging"
)

// HTTPHandler wires the webhook, simulate, admin, health, and metrics routes.
func (a *App) HTTPHandler() http.Handler {
	deps := messaging.HandlerDeps{
		Engine:      a.Engine,
		Deduper:     a.Deduper,
		AutoRespond: a.AutoRespond,
		Metrics:     a.MessagingMetrics,
	}
	if a.Publisher != nil {
		deps.Publisher = a.Publisher
	}
	messagingHandler := messaging.NewHandler(messaging.HandlerConfig{
		AuthToken:     a.Config.TwilioAuthToken,
		SkipSignature: a.Config.TwilioSkipSignature,
		PublicBaseURL: a.Config.PublicBaseURL,
		Mode:          a.Config.SMSReplyMode,
	}, deps, a.Logger)

	return router.New(&router.Config{
		Logger:               a.Logger,
		MessagingHandler:     messagingHandler,
		ConversationsHandler: handlers.NewConversationsHandler(a.Engine, a.AutoRespond, a.Logger),
		HealthHandler:        handlers.NewHealthHandler(a.HealthChecks(), a.Logger),
		MetricsHandler:       promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		AdminAuthSecret:      a.Config.AdminJWTSecret,
		SimulateEnabled:      a.Config.SimulateEnabled,
		RateLimitRPS:         a.Config.RateLimitRPS,
		RateLimitBurst:       a.Config.RateLimitBurst,
	})
}
