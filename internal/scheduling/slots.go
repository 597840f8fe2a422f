package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-sms-booking/internal/conversation"
)

// DefaultSlotStep is the spacing between offered start times.
const DefaultSlotStep = 30 * time.Minute

// Shift is one staff member's working window (or blocked window) on a date.
type Shift struct {
	StaffID int64
	Start   time.Time
	End     time.Time
	Blocked bool
}

// Busy is a time range a staff member cannot be booked in.
type Busy struct {
	StaffID int64
	Start   time.Time
	End     time.Time
}

func (b Busy) overlaps(start, end time.Time) bool {
	return start.Before(b.End) && end.After(b.Start)
}

// BuildSlots walks every unblocked shift in step increments and keeps starts
// whose appointment fits the shift, misses every busy range for that staff
// member, and is not before notBefore. Blocked shifts count as busy. When two
// staff share a start time the first shift listed wins.
func BuildSlots(shifts []Shift, busy []Busy, duration, step time.Duration, notBefore time.Time) []conversation.Slot {
	if duration <= 0 {
		return nil
	}
	if step <= 0 {
		step = DefaultSlotStep
	}

	blocked := make(map[int64][]Busy)
	for _, b := range busy {
		blocked[b.StaffID] = append(blocked[b.StaffID], b)
	}
	for _, s := range shifts {
		if s.Blocked {
			blocked[s.StaffID] = append(blocked[s.StaffID], Busy{StaffID: s.StaffID, Start: s.Start, End: s.End})
		}
	}

	seen := make(map[int64]struct{})
	var slots []conversation.Slot
	for _, s := range shifts {
		if s.Blocked {
			continue
		}
		for start := s.Start; !start.Add(duration).After(s.End); start = start.Add(step) {
			if start.Before(notBefore) {
				continue
			}
			end := start.Add(duration)
			free := true
			for _, b := range blocked[s.StaffID] {
				if b.overlaps(start, end) {
					free = false
					break
				}
			}
			if !free {
				continue
			}
			key := start.Unix()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			slots = append(slots, conversation.Slot{Start: start, StaffID: s.StaffID})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots
}

// SlotFinder computes availability from staff schedules and existing appointments.
type SlotFinder struct {
	pool PgxPool
	loc  *time.Location
	step time.Duration
	now  conversation.Clock
}

// SlotFinderOption customizes a SlotFinder.
type SlotFinderOption func(*SlotFinder)

func WithSlotStep(step time.Duration) SlotFinderOption {
	return func(f *SlotFinder) {
		if step > 0 {
			f.step = step
		}
	}
}

func WithSlotClock(clock conversation.Clock) SlotFinderOption {
	return func(f *SlotFinder) {
		if clock != nil {
			f.now = clock
		}
	}
}

// NewSlotFinder builds a finder that interprets schedule times in loc.
func NewSlotFinder(pool PgxPool, loc *time.Location, opts ...SlotFinderOption) *SlotFinder {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	if loc == nil {
		loc = time.UTC
	}
	f := &SlotFinder{pool: pool, loc: loc, step: DefaultSlotStep, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *SlotFinder) FindAvailableSlots(ctx context.Context, serviceID int64, date conversation.Date) ([]conversation.Slot, error) {
	ctx, span := tracer.Start(ctx, "scheduling.find_slots")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("salon.service_id", serviceID),
		attribute.String("salon.date", date.String()),
	)

	var durationMinutes int
	err := f.pool.QueryRow(ctx, `
		SELECT duration_minutes FROM services
		WHERE id = $1 AND is_active AND deleted_at IS NULL
	`, serviceID).Scan(&durationMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrServiceNotFound, serviceID)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("scheduling: failed to load service: %w", err)
	}

	shifts, err := f.loadShifts(ctx, serviceID, date)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(shifts) == 0 {
		return nil, nil
	}

	busy, err := f.loadBusy(ctx, shifts, date)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	slots := BuildSlots(shifts, busy, time.Duration(durationMinutes)*time.Minute, f.step, f.now())
	span.SetAttributes(attribute.Int("salon.slots", len(slots)))
	return slots, nil
}

// loadShifts returns schedule rows for staff qualified for the service whose
// weekday and effective date range cover date. Times are seconds after midnight.
func (f *SlotFinder) loadShifts(ctx context.Context, serviceID int64, date conversation.Date) ([]Shift, error) {
	day := date.In(time.UTC)
	rows, err := f.pool.Query(ctx, `
		SELECT ss.staff_id,
		       EXTRACT(EPOCH FROM ss.start_time)::int,
		       EXTRACT(EPOCH FROM ss.end_time)::int,
		       ss.is_blocked
		FROM staff_schedules ss
		JOIN staff s ON s.id = ss.staff_id AND s.is_active
		JOIN staff_services sv ON sv.staff_id = ss.staff_id AND sv.service_id = $1
		WHERE ss.day_of_week = $2
		  AND (ss.start_date IS NULL OR ss.start_date <= $3)
		  AND (ss.end_date IS NULL OR ss.end_date >= $3)
		ORDER BY ss.staff_id, ss.start_time
	`, serviceID, int(date.Weekday()), day)
	if err != nil {
		return nil, fmt.Errorf("scheduling: failed to load schedules: %w", err)
	}
	defer rows.Close()

	midnight := date.In(f.loc)
	var shifts []Shift
	for rows.Next() {
		var staffID int64
		var startSecs, endSecs int
		var blocked bool
		if err := rows.Scan(&staffID, &startSecs, &endSecs, &blocked); err != nil {
			return nil, fmt.Errorf("scheduling: failed to scan schedule: %w", err)
		}
		shifts = append(shifts, Shift{
			StaffID: staffID,
			Start:   atSeconds(midnight, startSecs),
			End:     atSeconds(midnight, endSecs),
			Blocked: blocked,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: failed to read schedules: %w", err)
	}
	return shifts, nil
}

func (f *SlotFinder) loadBusy(ctx context.Context, shifts []Shift, date conversation.Date) ([]Busy, error) {
	staffIDs := make([]int64, 0, len(shifts))
	seen := make(map[int64]struct{})
	for _, s := range shifts {
		if _, ok := seen[s.StaffID]; ok {
			continue
		}
		seen[s.StaffID] = struct{}{}
		staffIDs = append(staffIDs, s.StaffID)
	}

	dayStart := date.In(f.loc)
	dayEnd := date.AddDays(1).In(f.loc)
	rows, err := f.pool.Query(ctx, `
		SELECT staff_id, start_time, end_time
		FROM appointments
		WHERE staff_id = ANY($1)
		  AND status <> 'cancelled'
		  AND start_time < $3
		  AND end_time > $2
	`, staffIDs, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("scheduling: failed to load appointments: %w", err)
	}
	defer rows.Close()

	var busy []Busy
	for rows.Next() {
		var b Busy
		if err := rows.Scan(&b.StaffID, &b.Start, &b.End); err != nil {
			return nil, fmt.Errorf("scheduling: failed to scan appointment: %w", err)
		}
		busy = append(busy, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: failed to read appointments: %w", err)
	}
	return busy, nil
}

// atSeconds is wall-clock midnight plus secs, so DST days keep their labels.
func atSeconds(midnight time.Time, secs int) time.Time {
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), secs/3600, (secs%3600)/60, secs%60, 0, midnight.Location())
}
