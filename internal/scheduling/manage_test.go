package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/salon-sms-booking/internal/conversation"
)

func TestAppointmentManagerListsUpcoming(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock: %v", err)
	}
	defer mock.Close()

	from := at(9, 0)
	first, second := uuid.New(), uuid.New()
	mock.ExpectQuery("FROM appointments a").
		WithArgs("+15125550100", from, maxUpcomingAppointments).
		WillReturnRows(pgxmock.NewRows([]string{"id", "staff_id", "start_time", "end_time", "service_id", "name", "description", "price_cents", "duration_minutes"}).
			AddRow(first, int64(1), at(14, 0), at(15, 0), int64(1), "Signature Head Spa", "", int64(9900), 60).
			AddRow(second, int64(2), at(16, 0), at(17, 30), int64(2), "Deluxe Head Spa", "Steam", int64(16000), 90))

	appts, err := NewAppointmentManager(mock, nil).UpcomingAppointments(context.Background(), " +15125550100 ", from)
	if err != nil {
		t.Fatalf("UpcomingAppointments: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(appts))
	}
	if appts[0].ID != first.String() || appts[0].Service.Name != "Signature Head Spa" || !appts[0].Start.Equal(at(14, 0)) {
		t.Fatalf("unexpected first appointment %+v", appts[0])
	}
	if appts[1].StaffID != 2 || appts[1].Service.DurationMinutes != 90 || appts[1].Service.Description != "Steam" {
		t.Fatalf("unexpected second appointment %+v", appts[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentManagerRequiresPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock: %v", err)
	}
	defer mock.Close()

	if _, err := NewAppointmentManager(mock, nil).UpcomingAppointments(context.Background(), " ", time.Now()); err == nil {
		t.Fatalf("expected error for blank phone")
	}
}

func TestAppointmentManagerCancels(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE appointments").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := NewAppointmentManager(mock, nil).CancelAppointment(context.Background(), id.String()); err != nil {
		t.Fatalf("CancelAppointment: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentManagerCancelMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE appointments").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	manager := NewAppointmentManager(mock, nil)
	if err := manager.CancelAppointment(context.Background(), id.String()); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
	if err := manager.CancelAppointment(context.Background(), "not-a-uuid"); err == nil {
		t.Fatalf("expected error for invalid id")
	}
}

func TestAppointmentManagerReschedules(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	req := appointmentRequest()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM appointments").
		WithArgs(req.StaffID, req.Start, req.End, id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, req.StaffID, req.ServiceID, req.Start, req.End, req.PriceCents).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	result, err := NewAppointmentManager(mock, nil).RescheduleAppointment(context.Background(), id.String(), req)
	if err != nil {
		t.Fatalf("RescheduleAppointment: %v", err)
	}
	if result.Status != conversation.BookingBooked || result.AppointmentID != id.String() {
		t.Fatalf("unexpected result %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentManagerRescheduleOverlapIsConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	req := appointmentRequest()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM appointments").
		WithArgs(req.StaffID, req.Start, req.End, id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectRollback()

	result, err := NewAppointmentManager(mock, nil).RescheduleAppointment(context.Background(), id.String(), req)
	if err != nil {
		t.Fatalf("conflict must not be an error: %v", err)
	}
	if result.Status != conversation.BookingConflict {
		t.Fatalf("expected conflict, got %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentManagerRescheduleExclusionViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	req := appointmentRequest()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM appointments").
		WithArgs(req.StaffID, req.Start, req.End, id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, req.StaffID, req.ServiceID, req.Start, req.End, req.PriceCents).
		WillReturnError(&pgconn.PgError{Code: sqlStateExclusionViolation})
	mock.ExpectRollback()

	result, err := NewAppointmentManager(mock, nil).RescheduleAppointment(context.Background(), id.String(), req)
	if err != nil {
		t.Fatalf("conflict must not be an error: %v", err)
	}
	if result.Status != conversation.BookingConflict {
		t.Fatalf("expected conflict, got %+v", result)
	}
}

func TestAppointmentManagerRescheduleMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	req := appointmentRequest()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM appointments").
		WithArgs(req.StaffID, req.Start, req.End, id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, req.StaffID, req.ServiceID, req.Start, req.End, req.PriceCents).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err = NewAppointmentManager(mock, nil).RescheduleAppointment(context.Background(), id.String(), req)
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}
