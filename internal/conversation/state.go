package conversation

import (
	"fmt"
	"strings"
	"time"
)

// Step is the stage of a booking conversation.
type Step string

const (
	StepIdle            Step = "idle"
	StepAwaitingService Step = "awaiting_service"
	StepAwaitingDate    Step = "awaiting_date"
	StepAwaitingTime    Step = "awaiting_time"
	StepReadyToBook     Step = "ready_to_book"
	// StepChoosingAppointment waits for the client to pick one of several
	// upcoming appointments to cancel or move.
	StepChoosingAppointment Step = "choosing_appointment"
)

// ManageMode is what the client asked to do with an existing appointment.
type ManageMode string

const (
	ManageCancel     ManageMode = "cancel"
	ManageReschedule ManageMode = "reschedule"
)

// DefaultTTL is the inactivity window after which a conversation resets to Idle.
const DefaultTTL = 30 * time.Minute

// Clock returns the current time. Tests inject fixed clocks.
type Clock func() time.Time

// Service is a bookable catalog entry.
type Service struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	PriceCents      int64  `json:"price_cents"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Duration returns the appointment length of the service.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Slot is a bookable start time for one staff member.
type Slot struct {
	Start   time.Time `json:"start"`
	StaffID int64     `json:"staff_id"`
}

// TimeOfDay returns the slot start as a time of day in the slot's location.
func (s Slot) TimeOfDay() TimeOfDay {
	return TimeOfDay{Hour: s.Start.Hour(), Minute: s.Start.Minute(), Exact: true}
}

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("conversation: invalid date %q: %w", value, err)
	}
	return DateOf(t), nil
}

// In returns midnight of the date in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At returns the instant of the given time of day on d in loc.
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, tod.Hour, tod.Minute, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n))
}

func (d Date) Weekday() time.Weekday {
	return d.In(time.UTC).Weekday()
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) Before(other Date) bool {
	return d.In(time.UTC).Before(other.In(time.UTC))
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a clock time. Exact is false for a bare hour such as "3"
// whose half of the day is unknown.
type TimeOfDay struct {
	Hour   int  `json:"hour"`
	Minute int  `json:"minute"`
	Exact  bool `json:"exact"`
}

// String renders the normalized HH:MM form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Matches reports whether the slot starts at this time of day. An inexact
// time matches either half of the day.
func (t TimeOfDay) Matches(slot Slot) bool {
	h, m := slot.Start.Hour(), slot.Start.Minute()
	if m != t.Minute {
		return false
	}
	if t.Exact {
		return h == t.Hour
	}
	return h%12 == t.Hour%12
}

// BookedAppointment is a confirmed upcoming appointment.
type BookedAppointment struct {
	ID      string    `json:"id"`
	Service Service   `json:"service"`
	StaffID int64     `json:"staff_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// ConversationState is the in-progress booking attempt for one phone number.
// Rescheduling is set while a new time is being found for an existing
// appointment; booking then moves that appointment instead of creating one.
type ConversationState struct {
	Phone              string              `json:"phone"`
	Step               Step                `json:"step"`
	SelectedService    *Service            `json:"selected_service,omitempty"`
	SelectedDate       *Date               `json:"selected_date,omitempty"`
	SelectedTime       *Slot               `json:"selected_time,omitempty"`
	CandidateSlots     []Slot              `json:"candidate_slots,omitempty"`
	RequestedTime      *TimeOfDay          `json:"requested_time,omitempty"`
	ManageMode         ManageMode          `json:"manage_mode,omitempty"`
	AppointmentChoices []BookedAppointment `json:"appointment_choices,omitempty"`
	Rescheduling       *BookedAppointment  `json:"rescheduling,omitempty"`
	LastActivityAt     time.Time           `json:"last_activity_at"`
}

// NewState returns an Idle conversation for phone.
func NewState(phone string, now time.Time) *ConversationState {
	return &ConversationState{Phone: phone, Step: StepIdle, LastActivityAt: now}
}

// Reset clears every selection and returns to Idle.
func (s *ConversationState) Reset() {
	s.Step = StepIdle
	s.SelectedService = nil
	s.SelectedDate = nil
	s.SelectedTime = nil
	s.CandidateSlots = nil
	s.RequestedTime = nil
	s.ManageMode = ""
	s.AppointmentChoices = nil
	s.Rescheduling = nil
}

// Expired reports whether the conversation has been inactive longer than ttl.
func (s *ConversationState) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || s.LastActivityAt.IsZero() {
		return false
	}
	return now.Sub(s.LastActivityAt) > ttl
}

// IsBlank reports whether the state carries nothing worth persisting.
func (s *ConversationState) IsBlank() bool {
	return s.Step == StepIdle && s.SelectedService == nil && s.SelectedDate == nil &&
		s.SelectedTime == nil && len(s.CandidateSlots) == 0 && s.RequestedTime == nil &&
		s.ManageMode == "" && len(s.AppointmentChoices) == 0 && s.Rescheduling == nil
}

// Clone returns a deep copy so a failed cycle can be discarded.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	if s.SelectedService != nil {
		svc := *s.SelectedService
		out.SelectedService = &svc
	}
	if s.SelectedDate != nil {
		d := *s.SelectedDate
		out.SelectedDate = &d
	}
	if s.SelectedTime != nil {
		slot := *s.SelectedTime
		out.SelectedTime = &slot
	}
	if s.RequestedTime != nil {
		t := *s.RequestedTime
		out.RequestedTime = &t
	}
	if s.CandidateSlots != nil {
		out.CandidateSlots = append([]Slot(nil), s.CandidateSlots...)
	}
	if s.AppointmentChoices != nil {
		out.AppointmentChoices = append([]BookedAppointment(nil), s.AppointmentChoices...)
	}
	if s.Rescheduling != nil {
		appt := *s.Rescheduling
		out.Rescheduling = &appt
	}
	return &out
}

// InboundMessage is one text received from a client.
type InboundMessage struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Reply is the text sent back to the sender.
type Reply struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
	Step Step   `json:"step"`
}
