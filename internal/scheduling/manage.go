package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-sms-booking/internal/conversation"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

const maxUpcomingAppointments = 10

// AppointmentManager lists, cancels, and moves a client's confirmed
// appointments.
type AppointmentManager struct {
	pool   PgxPool
	logger *logging.Logger
}

func NewAppointmentManager(pool PgxPool, logger *logging.Logger) *AppointmentManager {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentManager{pool: pool, logger: logger}
}

// UpcomingAppointments returns confirmed appointments for phone starting after
// from, earliest first.
func (m *AppointmentManager) UpcomingAppointments(ctx context.Context, phone string, from time.Time) ([]conversation.BookedAppointment, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("scheduling: phone is required")
	}
	ctx, span := tracer.Start(ctx, "scheduling.upcoming_appointments")
	defer span.End()

	rows, err := m.pool.Query(ctx, `
		SELECT a.id, a.staff_id, a.start_time, a.end_time,
		       s.id, s.name, COALESCE(s.description, ''), s.price_cents, s.duration_minutes
		FROM appointments a
		JOIN clients c ON c.id = a.client_id
		JOIN services s ON s.id = a.service_id
		WHERE c.phone = $1
		  AND a.status = 'confirmed'
		  AND a.start_time > $2
		ORDER BY a.start_time
		LIMIT $3
	`, phone, from, maxUpcomingAppointments)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("scheduling: failed to list upcoming appointments: %w", err)
	}
	defer rows.Close()

	var out []conversation.BookedAppointment
	for rows.Next() {
		var (
			id   uuid.UUID
			appt conversation.BookedAppointment
		)
		if err := rows.Scan(&id, &appt.StaffID, &appt.Start, &appt.End,
			&appt.Service.ID, &appt.Service.Name, &appt.Service.Description, &appt.Service.PriceCents, &appt.Service.DurationMinutes); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scheduling: failed to scan appointment: %w", err)
		}
		appt.ID = id.String()
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("scheduling: failed to read appointments: %w", err)
	}
	span.SetAttributes(attribute.Int("salon.appointments", len(out)))
	return out, nil
}

func (m *AppointmentManager) CancelAppointment(ctx context.Context, appointmentID string) error {
	id, err := uuid.Parse(appointmentID)
	if err != nil {
		return fmt.Errorf("scheduling: invalid appointment id %q: %w", appointmentID, err)
	}
	ctx, span := tracer.Start(ctx, "scheduling.cancel_appointment")
	defer span.End()

	tag, err := m.pool.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed'
	`, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("scheduling: failed to cancel appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAppointmentNotFound, appointmentID)
	}
	m.logger.Info("appointment cancelled", "appointment_id", appointmentID)
	return nil
}

// RescheduleAppointment moves a confirmed appointment to req's staff and
// time. The appointment's own current time never counts as an overlap.
func (m *AppointmentManager) RescheduleAppointment(ctx context.Context, appointmentID string, req conversation.AppointmentRequest) (conversation.BookingResult, error) {
	id, err := uuid.Parse(appointmentID)
	if err != nil {
		return conversation.BookingResult{}, fmt.Errorf("scheduling: invalid appointment id %q: %w", appointmentID, err)
	}
	if !req.End.After(req.Start) {
		return conversation.BookingResult{}, fmt.Errorf("scheduling: reschedule request is incomplete")
	}
	ctx, span := tracer.Start(ctx, "scheduling.reschedule_appointment")
	defer span.End()
	span.SetAttributes(attribute.Int64("salon.staff_id", req.StaffID))

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return conversation.BookingResult{}, fmt.Errorf("scheduling: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM appointments
		WHERE staff_id = $1
		  AND id <> $4
		  AND status <> 'cancelled'
		  AND start_time < $3
		  AND end_time > $2
		FOR UPDATE
	`, req.StaffID, req.Start, req.End, id)
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
		return conversation.BookingResult{Status: conversation.BookingConflict}, nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET staff_id = $2, service_id = $3, start_time = $4, end_time = $5, total_cents = $6, updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed'
	`, id, req.StaffID, req.ServiceID, req.Start, req.End, req.PriceCents)
	if err != nil {
		if isBookingConflict(err) {
			return conversation.BookingResult{Status: conversation.BookingConflict}, nil
		}
		span.RecordError(err)
		return conversation.BookingResult{}, fmt.Errorf("scheduling: failed to move appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return conversation.BookingResult{}, fmt.Errorf("%w: %s", ErrAppointmentNotFound, appointmentID)
	}

	if err := tx.Commit(ctx); err != nil {
		if isBookingConflict(err) {
			return conversation.BookingResult{Status: conversation.BookingConflict}, nil
		}
		span.RecordError(err)
		return conversation.BookingResult{}, fmt.Errorf("scheduling: commit reschedule: %w", err)
	}
	m.logger.Info("appointment rescheduled", "appointment_id", appointmentID, "start", req.Start)
	return conversation.BookingResult{Status: conversation.BookingBooked, AppointmentID: appointmentID}, nil
}
