package scheduling

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("salon.internal.scheduling")

// ErrServiceNotFound is returned when a service is missing or inactive.
var ErrServiceNotFound = errors.New("scheduling: service not found")

// ErrAppointmentNotFound is returned when an appointment is missing or no
// longer confirmed.
var ErrAppointmentNotFound = errors.New("scheduling: appointment not found")

// PgxPool is the subset of *pgxpool.Pool the repositories use.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	sqlStateExclusionViolation = "23P01"
	sqlStateUniqueViolation    = "23505"
)

// isBookingConflict reports whether err is a constraint violation raised by a
// concurrent writer taking the same staff time.
func isBookingConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateExclusionViolation || pgErr.Code == sqlStateUniqueViolation
}
