package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/salon-sms-booking/internal/config"
	"github.com/wolfman30/salon-sms-booking/internal/conversation"
	"github.com/wolfman30/salon-sms-booking/internal/http/handlers"
	"github.com/wolfman30/salon-sms-booking/internal/messaging"
	"github.com/wolfman30/salon-sms-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-sms-booking/internal/scheduling"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

const adminSecret = "router-secret"

type stubEngine struct {
	calls int
}

func (s *stubEngine) HandleMessage(context.Context, conversation.InboundMessage) (conversation.Reply, error) {
	s.calls++
	return conversation.Reply{Body: "ok"}, nil
}

func (s *stubEngine) State(context.Context, string) (*conversation.ConversationState, error) {
	return nil, nil
}

func (s *stubEngine) Reset(context.Context, string) error { return nil }

func (s *stubEngine) ActiveConversations(context.Context) (int, error) { return 0, nil }

func newTestRouter(t *testing.T, simulate bool) http.Handler {
	t.Helper()

	logger := logging.Default()
	profile, err := conversation.NewBusinessProfile("Glo Head Spa", "UTC", "", "", "09:00", "18:00", []string{"sunday"})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	calendar := scheduling.NewMemoryCalendar(profile, nil)
	engine := conversation.NewEngine(conversation.EngineDeps{
		Store:    conversation.NewMemoryStore(30*time.Minute, nil),
		Catalog:  calendar,
		Slots:    calendar,
		Bookings: calendar,
		Clients:  calendar,
		Composer: conversation.NewComposer(profile),
	})

	reg := prometheus.NewRegistry()
	autoRespond := messaging.NewAutoRespondSwitch(true)
	messagingHandler := messaging.NewHandler(
		messaging.HandlerConfig{SkipSignature: true, Mode: config.ReplyModeTwiML},
		messaging.HandlerDeps{Engine: engine, AutoRespond: autoRespond, Metrics: metrics.NewMessagingMetrics(reg)},
		logger,
	)

	return New(&Config{
		Logger:               logger,
		MessagingHandler:     messagingHandler,
		ConversationsHandler: handlers.NewConversationsHandler(engine, autoRespond, logger),
		MetricsHandler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AdminAuthSecret:      adminSecret,
		SimulateEnabled:      simulate,
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, false)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
}

func TestRouterTwilioWebhookAndMetrics(t *testing.T) {
	router := newTestRouter(t, false)

	form := url.Values{}
	form.Set("MessageSid", "SM1")
	form.Set("From", "+15125550100")
	form.Set("To", "+15125559999")
	form.Set("Body", "hi")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Glo Head Spa") {
		t.Fatalf("expected greeting in twiml, got %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), `salon_messaging_inbound_webhook_total{status="accepted"} 1`) {
		t.Fatalf("expected inbound metric, got %s", rr.Body.String())
	}
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "owner",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(adminSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestRouterAdminRequiresToken(t *testing.T) {
	router := newTestRouter(t, false)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var stats handlers.StatsResponse
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if !stats.AutoRespondEnabled {
		t.Fatalf("expected auto-respond enabled")
	}
}

func TestRouterSimulateRequiresOptInAndToken(t *testing.T) {
	body := `{"from":"+15125550100","body":"hi"}`

	rr := httptest.NewRecorder()
	newTestRouter(t, false).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/conversations/simulate", strings.NewReader(body)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("simulate must be disabled, got %d", rr.Code)
	}

	router := newTestRouter(t, true)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/conversations/simulate", strings.NewReader(body)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/conversations/simulate", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRouterSimulateNeedsAdminSecret(t *testing.T) {
	logger := logging.Default()
	engine := &stubEngine{}
	router := New(&Config{
		Logger:               logger,
		ConversationsHandler: handlers.NewConversationsHandler(engine, nil, logger),
		SimulateEnabled:      true,
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/conversations/simulate", strings.NewReader(`{"from":"+15125550100","body":"hi"}`)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without an admin secret, got %d", rr.Code)
	}
	if engine.calls != 0 {
		t.Fatalf("engine must not run")
	}
}
