package messaging

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.opentelemetry.io/otel"

	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

var twilioSendTracer = otel.Tracer("salon.internal.messaging.twilio_send")

const maxSendAttempts = 3

// messageCreator is the slice of the Twilio REST API the sender uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender posts SMS messages through the Twilio REST API.
type TwilioSender struct {
	api    messageCreator
	from   string
	logger *logging.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewTwilioSender builds a sender with the account credentials. defaultFrom is
// used when a reply carries no sender number.
func NewTwilioSender(accountSID, authToken, defaultFrom string, logger *logging.Logger) (*TwilioSender, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("messaging: twilio credentials missing")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioSender(client.Api, defaultFrom, logger), nil
}

func newTwilioSender(api messageCreator, defaultFrom string, logger *logging.Logger) *TwilioSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioSender{api: api, from: defaultFrom, logger: logger, sleep: sleepContext}
}

// SendSMS dispatches a single SMS, retrying rate limits and server errors.
func (s *TwilioSender) SendSMS(ctx context.Context, to, from, body string) error {
	if to == "" {
		return errors.New("messaging: to required")
	}
	if from == "" {
		from = s.from
	}
	if from == "" {
		return errors.New("messaging: from required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("messaging: body required")
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		msg, err := s.api.CreateMessage(params)
		if err == nil {
			sid := ""
			if msg != nil && msg.Sid != nil {
				sid = *msg.Sid
			}
			s.logger.Info("twilio sms sent", "to", logging.MaskPhone(to), "message_sid", sid, "attempt", attempt)
			return nil
		}
		lastErr = fmt.Errorf("messaging: twilio send failed: %w", err)
		if !retryableTwilioError(err) || attempt == maxSendAttempts {
			break
		}
		backoff := time.Duration(200+rand.Intn(300)) * time.Millisecond
		if err := s.sleep(ctx, backoff); err != nil {
			lastErr = err
			break
		}
	}

	span.RecordError(lastErr)
	s.logger.Warn("twilio sms failed", "to", logging.MaskPhone(to), "error", lastErr)
	return lastErr
}

// retryableTwilioError reports rate limits, 5xx responses, and transport
// failures. Other 4xx errors will not succeed on retry.
func retryableTwilioError(err error) bool {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		return restErr.Status == http.StatusTooManyRequests || restErr.Status >= 500
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
