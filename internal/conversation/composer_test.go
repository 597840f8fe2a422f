package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() BusinessProfile {
	return BusinessProfile{
		Name:       "Glo Head Spa",
		Address:    "123 Main St, Austin, TX",
		Phone:      "(512) 555-0100",
		Location:   time.UTC,
		Open:       TimeOfDay{Hour: 9, Exact: true},
		Close:      TimeOfDay{Hour: 18, Exact: true},
		ClosedDays: []time.Weekday{time.Sunday},
	}
}

func slotsOn(date Date, hours ...int) []Slot {
	out := make([]Slot, 0, len(hours))
	for _, h := range hours {
		out = append(out, Slot{Start: date.At(TimeOfDay{Hour: h, Exact: true}, time.UTC), StaffID: 1})
	}
	return out
}

var july30 = Date{Year: 2025, Month: time.July, Day: 30}

func TestComposeOfferSlotsCapsList(t *testing.T) {
	c := NewComposer(testProfile())
	svc := testCatalog[0]
	slots := slotsOn(july30, 9, 10, 11, 12, 13, 14, 15, 16, 17)

	text := c.Compose(context.Background(), Action{Kind: ActionOfferSlots, Service: &svc, Date: &july30, Slots: slots})

	assert.Equal(t, "Available times for Signature Head Spa on Wednesday, July 30: 9:00 AM, 10:00 AM, 11:00 AM, 12:00 PM, 1:00 PM, 2:00 PM (+3 more). Which time works best?", text)
	assert.LessOrEqual(t, utf8.RuneCountInString(text), MaxReplyLength)
}

func TestComposeNeverExceedsLimit(t *testing.T) {
	var catalog []Service
	for i := 0; i < 30; i++ {
		catalog = append(catalog, Service{ID: int64(i + 1), Name: fmt.Sprintf("Extended Botanical Scalp Ritual %d", i+1), PriceCents: 12500, DurationMinutes: 75})
	}
	c := NewComposer(testProfile())
	svc := catalog[0]
	actions := []Action{
		{Kind: ActionAskService, Services: catalog},
		{Kind: ActionAskService, Services: catalog, Greeting: true},
		{Kind: ActionChooseService, Services: catalog},
		{Kind: ActionServiceNotFound, Services: catalog},
		{Kind: ActionAnswerQuestion, Question: QuestionServices, Services: catalog},
		{Kind: ActionAnswerQuestion, Question: QuestionServices, Services: catalog, FollowUp: ActionOfferSlots},
		{Kind: ActionOfferSlots, Service: &svc, Date: &july30, Slots: slotsOn(july30, 9, 10, 11, 12, 13, 14, 15, 16, 17), Greeting: true},
	}
	for _, a := range actions {
		text := c.Compose(context.Background(), a)
		assert.LessOrEqual(t, utf8.RuneCountInString(text), MaxReplyLength, "action %s: %q", a.Kind, text)
		assert.NotEmpty(t, text)
	}
}

func TestComposeAskServiceListsCatalog(t *testing.T) {
	c := NewComposer(testProfile())
	text := c.Compose(context.Background(), Action{Kind: ActionAskService, Services: testCatalog})
	assert.Equal(t, "Which service would you like to book? We offer: Signature Head Spa ($99), Deluxe Head Spa ($160), Platinum Head Spa ($220).", text)
}

func TestComposeGreetingPrefix(t *testing.T) {
	c := NewComposer(testProfile())
	text := c.Compose(context.Background(), Action{Kind: ActionAskService, Services: testCatalog, Greeting: true})
	assert.True(t, strings.HasPrefix(text, "Hi! Which service"), text)
}

func TestComposeBooked(t *testing.T) {
	c := NewComposer(testProfile())
	svc := testCatalog[0]
	slot := slotsOn(july30, 15)[0]
	text := c.Compose(context.Background(), Action{Kind: ActionBooked, Service: &svc, Date: &july30, Slot: &slot})
	assert.Equal(t, "You're all set! Signature Head Spa on Wednesday, July 30 at 3:00 PM. Total: $99. See you at Glo Head Spa!", text)
}

func TestComposeAnswers(t *testing.T) {
	c := NewComposer(testProfile())
	ctx := context.Background()

	hours := c.Compose(ctx, Action{Kind: ActionAnswerQuestion, Question: QuestionHours})
	assert.Equal(t, "We're open Mon-Sat 9:00 AM-6:00 PM, closed Sun.", hours)

	where := c.Compose(ctx, Action{Kind: ActionAnswerQuestion, Question: QuestionLocation})
	assert.Equal(t, "We're located at 123 Main St, Austin, TX.", where)

	deluxe := testCatalog[1]
	price := c.Compose(ctx, Action{Kind: ActionAnswerQuestion, Question: QuestionPricing, Service: &deluxe, Services: testCatalog})
	assert.Equal(t, "Deluxe Head Spa $160 (90 min).", price)

	menu := c.Compose(ctx, Action{Kind: ActionAnswerQuestion, Question: QuestionServices, Services: testCatalog})
	assert.Equal(t, "Our services: Signature Head Spa $99 (60 min); Deluxe Head Spa $160 (90 min); Platinum Head Spa $220 (120 min). Would you like to book?", menu)

	followUp := c.Compose(ctx, Action{Kind: ActionAnswerQuestion, Question: QuestionHours, FollowUp: ActionAskDate})
	assert.Equal(t, "We're open Mon-Sat 9:00 AM-6:00 PM, closed Sun. What date works for you?", followUp)
}

func TestComposeTimeUnavailable(t *testing.T) {
	c := NewComposer(testProfile())
	requested := TimeOfDay{Hour: 17, Exact: true}
	text := c.Compose(context.Background(), Action{
		Kind:          ActionTimeUnavailable,
		Date:          &july30,
		Slots:         slotsOn(july30, 14, 15, 16),
		RequestedTime: &requested,
	})
	assert.Equal(t, "5:00 PM isn't available on Wednesday, July 30. Open times: 2:00 PM, 3:00 PM, 4:00 PM. Which works best?", text)
}

type stubPhraser struct {
	out   string
	err   error
	calls int
	facts []string
}

func (s *stubPhraser) Phrase(_ context.Context, _ string, facts []string) (string, error) {
	s.calls++
	s.facts = facts
	return s.out, s.err
}

func TestComposeUsesAcceptedPhrasing(t *testing.T) {
	phraser := &stubPhraser{out: "Booked! Your Signature Head Spa is Wednesday, July 30 at 3:00 PM, $99 total. See you soon!"}
	c := NewComposer(testProfile(), WithPhraser(phraser, time.Second))
	svc := testCatalog[0]
	slot := slotsOn(july30, 15)[0]

	text := c.Compose(context.Background(), Action{Kind: ActionBooked, Service: &svc, Date: &july30, Slot: &slot})
	assert.Equal(t, phraser.out, text)
	assert.Contains(t, phraser.facts, "3:00 PM")
}

func TestComposeRejectsPhrasingThatChangesFacts(t *testing.T) {
	svc := testCatalog[0]
	slot := slotsOn(july30, 15)[0]
	action := Action{Kind: ActionBooked, Service: &svc, Date: &july30, Slot: &slot}
	template := NewComposer(testProfile()).Compose(context.Background(), action)

	cases := map[string]*stubPhraser{
		"wrong time":    {out: "Booked! Signature Head Spa on Wednesday, July 30 at 4:00 PM. Total: $99."},
		"dropped price": {out: "Booked! Signature Head Spa on Wednesday, July 30 at 3:00 PM."},
		"extra day":     {out: "Booked! Signature Head Spa on Wednesday, July 30 at 3:00 PM. Total: $99. Or Friday!"},
		"too long":      {out: strings.Repeat("x", MaxReplyLength+1)},
		"error":         {err: errors.New("model unavailable")},
	}
	for name, phraser := range cases {
		t.Run(name, func(t *testing.T) {
			c := NewComposer(testProfile(), WithPhraser(phraser, time.Second))
			text := c.Compose(context.Background(), action)
			require.Equal(t, 1, phraser.calls)
			assert.Equal(t, template, text)
		})
	}
}

func TestComposeSkipsPhrasingForFailures(t *testing.T) {
	phraser := &stubPhraser{out: "anything"}
	c := NewComposer(testProfile(), WithPhraser(phraser, time.Second))
	text := c.Compose(context.Background(), Action{Kind: ActionTemporaryFailure})
	assert.Equal(t, temporaryFailureReply, text)
	assert.Zero(t, phraser.calls)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "$99", formatPrice(9900))
	assert.Equal(t, "$99.50", formatPrice(9950))
	assert.Equal(t, "$0", formatPrice(0))
}

func TestHoursSummary(t *testing.T) {
	p := testProfile()
	p.ClosedDays = []time.Weekday{time.Monday, time.Sunday}
	assert.Equal(t, "Tue-Sat 9:00 AM-6:00 PM, closed Mon, Sun", p.HoursSummary())

	profile, err := NewBusinessProfile("Glo", "UTC", "", "", "10:00", "19:30", []string{"Sunday", "wed"})
	require.NoError(t, err)
	assert.Equal(t, "Mon-Tue, Thu-Sat 10:00 AM-7:30 PM, closed Wed, Sun", profile.HoursSummary())

	_, err = NewBusinessProfile("Glo", "UTC", "", "", "late", "19:30", nil)
	assert.Error(t, err)
	_, err = NewBusinessProfile("Glo", "UTC", "", "", "09:00", "18:00", []string{"funday"})
	assert.Error(t, err)
}

func TestIsOpenAt(t *testing.T) {
	p := testProfile()
	wednesday := func(h, m int) time.Time { return time.Date(2025, time.July, 30, h, m, 0, 0, time.UTC) }
	assert.True(t, p.IsOpenAt(wednesday(9, 0)))
	assert.True(t, p.IsOpenAt(wednesday(17, 59)))
	assert.False(t, p.IsOpenAt(wednesday(8, 59)))
	assert.False(t, p.IsOpenAt(wednesday(18, 0)))
	assert.False(t, p.IsOpenAt(time.Date(2025, time.July, 27, 12, 0, 0, 0, time.UTC)), "closed on Sunday")

	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	p.Location = chicago
	// 15:00 UTC is 10:00 in Chicago during daylight time.
	assert.True(t, p.IsOpenAt(wednesday(15, 0)))
	assert.False(t, p.IsOpenAt(wednesday(23, 30)))
}

func bookedAt(id string, svc Service, date Date, hour int) BookedAppointment {
	start := date.At(TimeOfDay{Hour: hour, Exact: true}, time.UTC)
	return BookedAppointment{ID: id, Service: svc, StaffID: 1, Start: start, End: start.Add(svc.Duration())}
}

func TestComposeAppointmentManagement(t *testing.T) {
	c := NewComposer(testProfile())
	aug1 := Date{Year: 2025, Month: time.August, Day: 1}
	first := bookedAt("a1", testCatalog[0], july30, 15)
	second := bookedAt("a2", testCatalog[1], aug1, 10)

	text := c.Compose(context.Background(), Action{Kind: ActionChooseAppointment, ManageMode: ManageCancel, Appointments: []BookedAppointment{first, second}})
	assert.Equal(t, "I found 2 upcoming appointments. Which one would you like to cancel? 1) Signature Head Spa on Wednesday, July 30 at 3:00 PM; 2) Deluxe Head Spa on Friday, August 1 at 10:00 AM", text)

	text = c.Compose(context.Background(), Action{Kind: ActionChooseAppointment, ManageMode: ManageReschedule, Appointments: []BookedAppointment{first, second}})
	assert.Contains(t, text, "Which one would you like to reschedule?")

	text = c.Compose(context.Background(), Action{Kind: ActionAppointmentCancelled, Appointment: &first})
	assert.Equal(t, "Done! I've cancelled your Signature Head Spa on Wednesday, July 30 at 3:00 PM. Text us anytime to book again.", text)

	text = c.Compose(context.Background(), Action{Kind: ActionAskRescheduleDate, Appointment: &first})
	assert.Equal(t, "Sure! Your Signature Head Spa on Wednesday, July 30 at 3:00 PM is booked. What date would you like to move it to?", text)

	svc := testCatalog[0]
	slot := slotsOn(aug1, 14)[0]
	text = c.Compose(context.Background(), Action{Kind: ActionRescheduled, Appointment: &first, Service: &svc, Date: &aug1, Slot: &slot})
	assert.Equal(t, "All set! Your Signature Head Spa has moved to Friday, August 1 at 2:00 PM. See you at Glo Head Spa!", text)

	text = c.Compose(context.Background(), Action{Kind: ActionCancelled, ManageMode: ManageCancel})
	assert.Equal(t, "No problem, your appointment stays as booked.", text)
}
