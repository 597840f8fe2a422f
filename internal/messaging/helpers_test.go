package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/salon-sms-booking/internal/conversation"
)

const (
	testAuthToken  = "test_token"
	testWebhookURL = "https://salon.example.com/webhooks/twilio/sms"
)

// signTwilio computes X-Twilio-Signature for a form POST.
func signTwilio(token, webhookURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var payload strings.Builder
	payload.WriteString(webhookURL)
	for _, k := range keys {
		payload.WriteString(k)
		payload.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(payload.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// noon is a Wednesday.
var noon = time.Date(2025, time.July, 30, 12, 0, 0, 0, time.UTC)

func smsForm(sid, from, body string) url.Values {
	form := url.Values{}
	form.Set("MessageSid", sid)
	form.Set("AccountSid", "AC123")
	form.Set("From", from)
	form.Set("To", "+15125559999")
	form.Set("Body", body)
	return form
}

func webhookRequest(form url.Values, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, testWebhookURL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set("X-Twilio-Signature", signature)
	}
	return req
}

type stubEngine struct {
	mu       sync.Mutex
	messages []conversation.InboundMessage
	reply    string
	err      error
}

func (s *stubEngine) HandleMessage(_ context.Context, msg conversation.InboundMessage) (conversation.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	if s.err != nil {
		return conversation.Reply{}, s.err
	}
	return conversation.Reply{To: msg.From, From: msg.To, Body: s.reply, Step: conversation.StepAwaitingDate}, nil
}

func (s *stubEngine) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type stubPublisher struct {
	ids      []string
	messages []conversation.InboundMessage
	err      error
}

func (s *stubPublisher) EnqueueMessage(_ context.Context, id string, msg conversation.InboundMessage) error {
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, id)
	s.messages = append(s.messages, msg)
	return nil
}
