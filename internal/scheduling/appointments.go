package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-sms-booking/internal/conversation"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

const (
	statusConfirmed = "confirmed"
	bookingMethod   = "sms"
)

// AppointmentWriter inserts confirmed appointments, reporting a conflict when
// the staff member's time was taken first.
type AppointmentWriter struct {
	pool   PgxPool
	logger *logging.Logger
}

func NewAppointmentWriter(pool PgxPool, logger *logging.Logger) *AppointmentWriter {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentWriter{pool: pool, logger: logger}
}

func (w *AppointmentWriter) CreateAppointment(ctx context.Context, req conversation.AppointmentRequest) (conversation.BookingResult, error) {
	ctx, span := tracer.Start(ctx, "scheduling.create_appointment")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("salon.service_id", req.ServiceID),
		attribute.Int64("salon.staff_id", req.StaffID),
	)

	if req.ClientID == "" || !req.End.After(req.Start) {
		return conversation.BookingResult{}, errors.New("scheduling: appointment request is incomplete")
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return conversation.BookingResult{}, fmt.Errorf("scheduling: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM appointments
		WHERE staff_id = $1
		  AND status <> 'cancelled'
		  AND start_time < $3
		  AND end_time > $2
		FOR UPDATE
	`, req.StaffID, req.Start, req.End)
	if err != nil {
		span.RecordError(err)
		return conversation.BookingResult{}, fmt.Errorf("scheduling: failed to check overlaps: %w", err)
	}
	overlapping := 0
	for rows.Next() {
		overlapping++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return conversation.BookingResult{}, fmt.Errorf("scheduling: failed to check overlaps: %w", err)
	}
	if overlapping > 0 {
		w.logger.Info("appointment slot already taken", "staff_id", req.StaffID, "start", req.Start)
		return conversation.BookingResult{Status: conversation.BookingConflict}, nil
	}

	id := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (id, client_id, staff_id, service_id, start_time, end_time, status, total_cents, booking_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, id, req.ClientID, req.StaffID, req.ServiceID, req.Start, req.End, statusConfirmed, req.PriceCents, bookingMethod)
	if err != nil {
		if isBookingConflict(err) {
			return conversation.BookingResult{Status: conversation.BookingConflict}, nil
		}
		span.RecordError(err)
		return conversation.BookingResult{}, fmt.Errorf("scheduling: failed to insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isBookingConflict(err) {
			return conversation.BookingResult{Status: conversation.BookingConflict}, nil
		}
		span.RecordError(err)
		return conversation.BookingResult{}, fmt.Errorf("scheduling: commit appointment: %w", err)
	}

	return conversation.BookingResult{Status: conversation.BookingBooked, AppointmentID: id.String()}, nil
}
