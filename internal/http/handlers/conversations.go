package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/salon-sms-booking/internal/conversation"
	"github.com/wolfman30/salon-sms-booking/internal/messaging"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

// ConversationEngine is what the conversation endpoints need from the engine.
type ConversationEngine interface {
	HandleMessage(ctx context.Context, msg conversation.InboundMessage) (conversation.Reply, error)
	State(ctx context.Context, phone string) (*conversation.ConversationState, error)
	Reset(ctx context.Context, phone string) error
	ActiveConversations(ctx context.Context) (int, error)
}

// ConversationsHandler serves the simulate endpoint and the admin views of
// conversation state.
type ConversationsHandler struct {
	engine      ConversationEngine
	autoRespond *messaging.AutoRespondSwitch
	logger      *logging.Logger
}

func NewConversationsHandler(engine ConversationEngine, autoRespond *messaging.AutoRespondSwitch, logger *logging.Logger) *ConversationsHandler {
	if engine == nil {
		panic("handlers: conversation engine required")
	}
	if autoRespond == nil {
		autoRespond = messaging.NewAutoRespondSwitch(true)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConversationsHandler{engine: engine, autoRespond: autoRespond, logger: logger}
}

// SimulateRequest is the body of POST /conversations/simulate.
type SimulateRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

// SimulateResponse carries the reply the client would have received.
type SimulateResponse struct {
	Reply string            `json:"reply"`
	Step  conversation.Step `json:"step"`
}

// Simulate runs one message through the engine without Twilio.
func (h *ConversationsHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	from := messaging.NormalizeE164(req.From)
	if from == "" {
		writeError(w, http.StatusBadRequest, "from is required")
		return
	}

	reply, err := h.engine.HandleMessage(r.Context(), conversation.InboundMessage{
		From:       from,
		To:         messaging.NormalizeE164(req.To),
		Body:       strings.TrimSpace(req.Body),
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("simulate failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to handle message")
		return
	}
	writeJSON(w, http.StatusOK, SimulateResponse{Reply: reply.Body, Step: reply.Step})
}

// GetConversation handles GET /admin/conversations/{phone}.
func (h *ConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	phone := messaging.NormalizeE164(chi.URLParam(r, "phone"))
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}
	state, err := h.engine.State(r.Context(), phone)
	if err != nil {
		h.logger.Error("failed to load conversation", "error", err, "phone", logging.MaskPhone(phone))
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	if state == nil {
		writeError(w, http.StatusNotFound, "no active conversation")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ResetConversation handles DELETE /admin/conversations/{phone}.
func (h *ConversationsHandler) ResetConversation(w http.ResponseWriter, r *http.Request) {
	phone := messaging.NormalizeE164(chi.URLParam(r, "phone"))
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}
	if err := h.engine.Reset(r.Context(), phone); err != nil {
		h.logger.Error("failed to reset conversation", "error", err, "phone", logging.MaskPhone(phone))
		writeError(w, http.StatusInternalServerError, "failed to reset conversation")
		return
	}
	h.logger.Info("conversation reset by admin", "phone", logging.MaskPhone(phone))
	w.WriteHeader(http.StatusNoContent)
}

// StatsResponse is returned by GET /admin/stats.
type StatsResponse struct {
	ActiveConversations int  `json:"active_conversations"`
	AutoRespondEnabled  bool `json:"auto_respond_enabled"`
}

func (h *ConversationsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	active, err := h.engine.ActiveConversations(r.Context())
	if err != nil {
		h.logger.Error("failed to count conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		ActiveConversations: active,
		AutoRespondEnabled:  h.autoRespond.Enabled(),
	})
}

// AutoRespondRequest is the body of PUT /admin/auto-respond.
type AutoRespondRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *ConversationsHandler) SetAutoRespond(w http.ResponseWriter, r *http.Request) {
	var req AutoRespondRequest
	if err := decodeJSON(r, &req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	h.autoRespond.Set(*req.Enabled)
	h.logger.Info("auto-respond updated", "enabled", *req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"auto_respond_enabled": *req.Enabled})
}
