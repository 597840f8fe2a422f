package messaging

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-sms-booking/internal/config"
	"github.com/wolfman30/salon-sms-booking/internal/conversation"
	"github.com/wolfman30/salon-sms-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

var twilioTracer = otel.Tracer("salon.internal.messaging.twilio")

const (
	inlineHandleTimeout = 12 * time.Second
	publishTimeout      = 3 * time.Second
)

type conversationHandler interface {
	HandleMessage(ctx context.Context, msg conversation.InboundMessage) (conversation.Reply, error)
}

type conversationPublisher interface {
	EnqueueMessage(ctx context.Context, id string, msg conversation.InboundMessage) error
}

// HandlerConfig controls webhook validation and reply delivery.
type HandlerConfig struct {
	AuthToken     string
	SkipSignature bool
	PublicBaseURL string
	// Mode is config.ReplyModeTwiML or config.ReplyModeAsync.
	Mode string
}

// HandlerDeps are the collaborators of the webhook handler. Engine is required
// in twiml mode and Publisher in async mode.
type HandlerDeps struct {
	Engine      conversationHandler
	Publisher   conversationPublisher
	Deduper     Deduper
	AutoRespond *AutoRespondSwitch
	Metrics     *metrics.MessagingMetrics
}

// Handler handles Twilio SMS webhooks.
type Handler struct {
	cfg         HandlerConfig
	engine      conversationHandler
	publisher   conversationPublisher
	deduper     Deduper
	autoRespond *AutoRespondSwitch
	metrics     *metrics.MessagingMetrics
	logger      *logging.Logger
	now         func() time.Time
}

func NewHandler(cfg HandlerConfig, deps HandlerDeps, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = config.ReplyModeTwiML
	}
	switch cfg.Mode {
	case config.ReplyModeTwiML:
		if deps.Engine == nil {
			panic("messaging: conversation engine required in twiml mode")
		}
	case config.ReplyModeAsync:
		if deps.Publisher == nil {
			panic("messaging: publisher required in async mode")
		}
	default:
		panic("messaging: unknown reply mode " + cfg.Mode)
	}
	if !cfg.SkipSignature && cfg.AuthToken == "" {
		logger.Warn("twilio auth token not set, webhook signatures are not checked")
		cfg.SkipSignature = true
	}
	return &Handler{
		cfg:         cfg,
		engine:      deps.Engine,
		publisher:   deps.Publisher,
		deduper:     deps.Deduper,
		autoRespond: deps.AutoRespond,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// TwilioWebhook handles POST /webhooks/twilio/sms.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := twilioTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()
	started := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(h.cfg.Mode, time.Since(started).Seconds()) }()

	if !h.cfg.SkipSignature {
		if err := ValidateTwilioSignature(r, h.cfg.AuthToken, buildAbsoluteURL(r, h.cfg.PublicBaseURL)); err != nil {
			h.logger.Warn("invalid twilio signature", "error", err)
			h.metrics.ObserveInbound("invalid_signature")
			span.RecordError(err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		h.metrics.ObserveInbound("bad_request")
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	from := NormalizeE164(webhook.From)
	to := NormalizeE164(webhook.To)
	if webhook.MessageSid == "" || from == "" {
		err := errors.New("missing required twilio fields")
		h.logger.Error("invalid twilio payload", "error", err)
		h.metrics.ObserveInbound("bad_request")
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("salon.twilio.message_sid", webhook.MessageSid),
		attribute.String("salon.twilio.from", logging.MaskPhone(from)),
	)
	logger := h.logger.WithPhone(from).With("message_sid", webhook.MessageSid)

	if h.deduper != nil {
		first, err := h.deduper.FirstSeen(ctx, webhook.MessageSid)
		if err != nil {
			logger.Warn("dedupe check failed, processing anyway", "error", err)
		} else if !first {
			logger.Info("duplicate twilio webhook ignored")
			h.metrics.ObserveInbound("duplicate")
			writeTwiML(w, "")
			return
		}
	}

	if ok, reason := h.autoRespond.Allow(from, to, webhook.Body, h.now()); !ok {
		logger.Info("auto-respond skipped, message not processed", "reason", reason)
		h.metrics.ObserveInbound(reason)
		writeTwiML(w, "")
		return
	}

	msg := conversation.InboundMessage{
		From:       from,
		To:         to,
		Body:       strings.TrimSpace(webhook.Body),
		ReceivedAt: h.now().UTC(),
	}

	if h.cfg.Mode == config.ReplyModeAsync {
		publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := h.publisher.EnqueueMessage(publishCtx, webhook.MessageSid, msg); err != nil {
			logger.Error("failed to enqueue conversation message", "error", err)
			h.metrics.ObserveInbound("error")
			span.RecordError(err)
			http.Error(w, "Failed to schedule reply", http.StatusInternalServerError)
			return
		}
		h.metrics.ObserveInbound("accepted")
		logger.Info("twilio webhook queued")
		writeTwiML(w, "")
		return
	}

	handleCtx, cancel := context.WithTimeout(ctx, inlineHandleTimeout)
	defer cancel()
	reply, err := h.engine.HandleMessage(handleCtx, msg)
	if err != nil {
		logger.Error("failed to handle message", "error", err)
		h.metrics.ObserveInbound("error")
		span.RecordError(err)
		http.Error(w, "Failed to handle message", http.StatusInternalServerError)
		return
	}
	h.metrics.ObserveInbound("accepted")
	if reply.Body != "" {
		h.metrics.ObserveOutbound(config.ReplyModeTwiML, "sent")
	}
	span.SetAttributes(attribute.String("salon.conversation.step", string(reply.Step)))
	logger.Info("twilio webhook answered", "step", reply.Step)
	writeTwiML(w, reply.Body)
}
