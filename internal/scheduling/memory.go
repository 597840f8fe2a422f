package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-sms-booking/internal/conversation"
)

// DefaultServices is the catalog a MemoryCalendar starts with.
var DefaultServices = []conversation.Service{
	{ID: 1, Name: "Signature Head Spa", Description: "Scalp analysis, double cleanse, and massage", PriceCents: 9900, DurationMinutes: 60},
	{ID: 2, Name: "Deluxe Head Spa", Description: "Signature treatment with a hair mask and steam", PriceCents: 16000, DurationMinutes: 90},
	{ID: 3, Name: "Platinum Head Spa", Description: "Deluxe treatment with a face and shoulder massage", PriceCents: 22000, DurationMinutes: 120},
}

// Appointment is a booking held by a MemoryCalendar.
type Appointment struct {
	ID         string
	ClientID   string
	ServiceID  int64
	StaffID    int64
	Start      time.Time
	End        time.Time
	PriceCents int64
	Cancelled  bool
}

// MemoryCalendar implements the catalog, slot finder, booking writer, client
// directory, and appointment manager in process. Every staff member works the business hours
// and performs every service.
type MemoryCalendar struct {
	mu           sync.Mutex
	profile      conversation.BusinessProfile
	services     []conversation.Service
	staff        []int64
	clients      map[string]string
	appointments []Appointment
	step         time.Duration
	now          conversation.Clock
}

// NewMemoryCalendar seeds DefaultServices and two staff members.
func NewMemoryCalendar(profile conversation.BusinessProfile, clock conversation.Clock) *MemoryCalendar {
	if clock == nil {
		clock = time.Now
	}
	if profile.Location == nil {
		profile.Location = time.UTC
	}
	return &MemoryCalendar{
		profile:  profile,
		services: append([]conversation.Service(nil), DefaultServices...),
		staff:    []int64{1, 2},
		clients:  make(map[string]string),
		step:     DefaultSlotStep,
		now:      clock,
	}
}

// SetServices replaces the catalog.
func (m *MemoryCalendar) SetServices(services []conversation.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append([]conversation.Service(nil), services...)
}

func (m *MemoryCalendar) ListActiveServices(context.Context) ([]conversation.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]conversation.Service(nil), m.services...)
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (m *MemoryCalendar) FindAvailableSlots(_ context.Context, serviceID int64, date conversation.Date) ([]conversation.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc, ok := m.service(serviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrServiceNotFound, serviceID)
	}
	if !m.profile.IsOpenOn(date.Weekday()) {
		return nil, nil
	}

	loc := m.profile.Location
	opening, closing := date.At(m.profile.Open, loc), date.At(m.profile.Close, loc)
	shifts := make([]Shift, 0, len(m.staff))
	for _, staffID := range m.staff {
		shifts = append(shifts, Shift{StaffID: staffID, Start: opening, End: closing})
	}
	busy := make([]Busy, 0, len(m.appointments))
	for _, appt := range m.appointments {
		if appt.Cancelled {
			continue
		}
		busy = append(busy, Busy{StaffID: appt.StaffID, Start: appt.Start, End: appt.End})
	}
	return BuildSlots(shifts, busy, svc.Duration(), m.step, m.now()), nil
}

func (m *MemoryCalendar) CreateAppointment(_ context.Context, req conversation.AppointmentRequest) (conversation.BookingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.overlaps("", req) {
		return conversation.BookingResult{Status: conversation.BookingConflict}, nil
	}
	appt := Appointment{
		ID:         uuid.NewString(),
		ClientID:   req.ClientID,
		ServiceID:  req.ServiceID,
		StaffID:    req.StaffID,
		Start:      req.Start,
		End:        req.End,
		PriceCents: req.PriceCents,
	}
	m.appointments = append(m.appointments, appt)
	return conversation.BookingResult{Status: conversation.BookingBooked, AppointmentID: appt.ID}, nil
}

func (m *MemoryCalendar) FindOrCreateClientByPhone(_ context.Context, phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("scheduling: phone is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.clients[phone]; ok {
		return id, nil
	}
	id := uuid.NewString()
	m.clients[phone] = id
	return id, nil
}

func (m *MemoryCalendar) UpcomingAppointments(_ context.Context, phone string, from time.Time) ([]conversation.BookedAppointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clientID, ok := m.clients[strings.TrimSpace(phone)]
	if !ok {
		return nil, nil
	}
	var out []conversation.BookedAppointment
	for _, appt := range m.appointments {
		if appt.ClientID != clientID || appt.Cancelled || !appt.Start.After(from) {
			continue
		}
		svc, _ := m.service(appt.ServiceID)
		out = append(out, conversation.BookedAppointment{ID: appt.ID, Service: svc, StaffID: appt.StaffID, Start: appt.Start, End: appt.End})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *MemoryCalendar) CancelAppointment(_ context.Context, appointmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.confirmed(appointmentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAppointmentNotFound, appointmentID)
	}
	m.appointments[i].Cancelled = true
	return nil
}

func (m *MemoryCalendar) RescheduleAppointment(_ context.Context, appointmentID string, req conversation.AppointmentRequest) (conversation.BookingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.confirmed(appointmentID)
	if !ok {
		return conversation.BookingResult{}, fmt.Errorf("%w: %s", ErrAppointmentNotFound, appointmentID)
	}
	if m.overlaps(appointmentID, req) {
		return conversation.BookingResult{Status: conversation.BookingConflict}, nil
	}
	appt := &m.appointments[i]
	appt.ServiceID, appt.StaffID = req.ServiceID, req.StaffID
	appt.Start, appt.End, appt.PriceCents = req.Start, req.End, req.PriceCents
	return conversation.BookingResult{Status: conversation.BookingBooked, AppointmentID: appointmentID}, nil
}

// Appointments returns a copy of the booked appointments.
func (m *MemoryCalendar) Appointments() []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Appointment(nil), m.appointments...)
}

func (m *MemoryCalendar) confirmed(id string) (int, bool) {
	for i, appt := range m.appointments {
		if appt.ID == id && !appt.Cancelled {
			return i, true
		}
	}
	return 0, false
}

// overlaps reports whether req collides with a live appointment other than skipID.
func (m *MemoryCalendar) overlaps(skipID string, req conversation.AppointmentRequest) bool {
	for _, appt := range m.appointments {
		if appt.Cancelled || appt.ID == skipID || appt.StaffID != req.StaffID {
			continue
		}
		if req.Start.Before(appt.End) && req.End.After(appt.Start) {
			return true
		}
	}
	return false
}

func (m *MemoryCalendar) service(id int64) (conversation.Service, bool) {
	for _, svc := range m.services {
		if svc.ID == id {
			return svc, true
		}
	}
	return conversation.Service{}, false
}
