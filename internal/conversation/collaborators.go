package conversation

import (
	"context"
	"time"
)

// SlotFinder returns ordered bookable start times for a service on a date.
// An empty result is a normal outcome.
type SlotFinder interface {
	FindAvailableSlots(ctx context.Context, serviceID int64, date Date) ([]Slot, error)
}

// AppointmentRequest describes one confirmed booking.
type AppointmentRequest struct {
	ClientID   string
	ServiceID  int64
	StaffID    int64
	Start      time.Time
	End        time.Time
	PriceCents int64
}

// BookingStatus is the outcome of a booking write.
type BookingStatus string

const (
	BookingBooked   BookingStatus = "booked"
	BookingConflict BookingStatus = "conflict"
)

// BookingResult is returned by BookingWriter. A conflict is a normal result, not an error.
type BookingResult struct {
	Status        BookingStatus
	AppointmentID string
}

// BookingWriter persists appointments and reports conflicts.
type BookingWriter interface {
	CreateAppointment(ctx context.Context, req AppointmentRequest) (BookingResult, error)
}

// AppointmentManager finds and changes a client's existing appointments.
// UpcomingAppointments returns confirmed appointments starting after from,
// earliest first. RescheduleAppointment reports BookingConflict when the new
// time was taken.
type AppointmentManager interface {
	UpcomingAppointments(ctx context.Context, phone string, from time.Time) ([]BookedAppointment, error)
	CancelAppointment(ctx context.Context, appointmentID string) error
	RescheduleAppointment(ctx context.Context, appointmentID string, req AppointmentRequest) (BookingResult, error)
}

// ClientDirectory resolves the client behind a phone number, creating it on first contact.
type ClientDirectory interface {
	FindOrCreateClientByPhone(ctx context.Context, phone string) (string, error)
}

// ServiceCatalog lists the services currently offered.
type ServiceCatalog interface {
	ListActiveServices(ctx context.Context) ([]Service, error)
}

// Transcript records inbound and outbound texts.
type Transcript interface {
	Append(ctx context.Context, rec MessageRecord) error
}
