package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeMessageAPI struct {
	errs   []error
	params []*twilioApi.CreateMessageParams
}

func (f *fakeMessageAPI) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	sid := "SMout"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func newTestSender(api *fakeMessageAPI) *TwilioSender {
	s := newTwilioSender(api, "+15125559999", nil)
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func TestTwilioSenderSends(t *testing.T) {
	api := &fakeMessageAPI{}
	sender := newTestSender(api)

	if err := sender.SendSMS(context.Background(), "+15125550100", "", "You're all set!"); err != nil {
		t.Fatalf("SendSMS: %v", err)
	}
	if len(api.params) != 1 {
		t.Fatalf("expected one call, got %d", len(api.params))
	}
	p := api.params[0]
	if *p.To != "+15125550100" || *p.From != "+15125559999" || *p.Body != "You're all set!" {
		t.Fatalf("unexpected params to=%s from=%s body=%s", *p.To, *p.From, *p.Body)
	}
}

func TestTwilioSenderRetriesTransientErrors(t *testing.T) {
	api := &fakeMessageAPI{errs: []error{
		&twilioclient.TwilioRestError{Status: 503, Message: "unavailable"},
		&twilioclient.TwilioRestError{Status: 429, Message: "slow down"},
	}}
	sender := newTestSender(api)

	if err := sender.SendSMS(context.Background(), "+15125550100", "+15125558888", "hi"); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if len(api.params) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(api.params))
	}
}

func TestTwilioSenderDoesNotRetryClientErrors(t *testing.T) {
	api := &fakeMessageAPI{errs: []error{&twilioclient.TwilioRestError{Status: 400, Code: 21211, Message: "invalid to"}}}
	sender := newTestSender(api)

	err := sender.SendSMS(context.Background(), "+1", "", "hi")
	if err == nil {
		t.Fatalf("expected error")
	}
	var restErr *twilioclient.TwilioRestError
	if !errors.As(err, &restErr) || restErr.Code != 21211 {
		t.Fatalf("expected wrapped twilio error, got %v", err)
	}
	if len(api.params) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(api.params))
	}
}

func TestTwilioSenderGivesUp(t *testing.T) {
	boom := errors.New("connection reset")
	api := &fakeMessageAPI{errs: []error{boom, boom, boom, boom}}
	sender := newTestSender(api)

	if err := sender.SendSMS(context.Background(), "+15125550100", "", "hi"); !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if len(api.params) != maxSendAttempts {
		t.Fatalf("expected %d attempts, got %d", maxSendAttempts, len(api.params))
	}
}

func TestTwilioSenderValidatesInput(t *testing.T) {
	api := &fakeMessageAPI{}
	sender := newTwilioSender(api, "", nil)
	ctx := context.Background()

	if err := sender.SendSMS(ctx, "", "+1", "hi"); err == nil {
		t.Fatalf("expected error without recipient")
	}
	if err := sender.SendSMS(ctx, "+15125550100", "", "hi"); err == nil {
		t.Fatalf("expected error without sender number")
	}
	if err := sender.SendSMS(ctx, "+15125550100", "+15125559999", "   "); err == nil {
		t.Fatalf("expected error for blank body")
	}
	if len(api.params) != 0 {
		t.Fatalf("no api calls expected")
	}
}

func TestNewTwilioSenderRequiresCredentials(t *testing.T) {
	if _, err := NewTwilioSender("", "token", "+1", nil); err == nil {
		t.Fatalf("expected error without account sid")
	}
	if _, err := NewTwilioSender("AC123", "token", "+15125559999", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemoryDeduperExpires(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	now := time.Date(2025, 7, 29, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	if first, _ := d.FirstSeen(ctx, "SM1"); !first {
		t.Fatalf("expected first delivery")
	}
	if first, _ := d.FirstSeen(ctx, "SM1"); first {
		t.Fatalf("expected duplicate")
	}
	now = now.Add(2 * time.Minute)
	if first, _ := d.FirstSeen(ctx, "SM1"); !first {
		t.Fatalf("expected id to expire")
	}
}
