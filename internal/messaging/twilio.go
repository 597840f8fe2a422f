package messaging

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	twilioclient "github.com/twilio/twilio-go/client"
)

// ErrInvalidSignature is returned when X-Twilio-Signature does not match.
var ErrInvalidSignature = errors.New("messaging: invalid twilio signature")

const twilioSignatureHeader = "X-Twilio-Signature"

// ValidateTwilioSignature checks that a webhook request was signed by Twilio
// for webhookURL with authToken.
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) error {
	signature := r.Header.Get(twilioSignatureHeader)
	if signature == "" {
		return ErrInvalidSignature
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("messaging: failed to parse form: %w", err)
	}

	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	validator := twilioclient.NewRequestValidator(authToken)
	if !validator.Validate(webhookURL, params, signature) {
		return ErrInvalidSignature
	}
	return nil
}

// TwilioWebhookRequest is an inbound SMS webhook.
type TwilioWebhookRequest struct {
	MessageSid string
	AccountSid string
	From       string
	To         string
	Body       string
	NumMedia   string
}

// ParseTwilioWebhook parses a Twilio webhook request
func ParseTwilioWebhook(r *http.Request) (*TwilioWebhookRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse form: %w", err)
	}

	return &TwilioWebhookRequest{
		MessageSid: strings.TrimSpace(r.FormValue("MessageSid")),
		AccountSid: strings.TrimSpace(r.FormValue("AccountSid")),
		From:       r.FormValue("From"),
		To:         r.FormValue("To"),
		Body:       r.FormValue("Body"),
		NumMedia:   r.FormValue("NumMedia"),
	}, nil
}

// buildAbsoluteURL reconstructs the URL Twilio signed. A configured public
// base URL wins over forwarded headers.
func buildAbsoluteURL(r *http.Request, publicBaseURL string) string {
	if r.URL == nil {
		return ""
	}
	if publicBaseURL != "" {
		return strings.TrimRight(publicBaseURL, "/") + r.URL.RequestURI()
	}
	if r.URL.Scheme != "" && r.URL.Host != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
