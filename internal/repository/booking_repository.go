package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `
	id, student_id, tutor_id, class_id, created_by, date, start_time, end_time,
	duration_minutes, status, payment_status, payment_reference, notes,
	cancellation_reason, confirmed_at, cancelled_at, completed_at, created_at, updated_at`

type BookingRepository struct {
	*base.Repository
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{Repository: base.NewRepository(pool)}
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b          model.Booking
		date       pgtype.Date
		start, end pgtype.Time
	)
	err := row.Scan(
		&b.ID,
		&b.StudentID,
		&b.TutorID,
		&b.ClassID,
		&b.CreatedBy,
		&date,
		&start,
		&end,
		&b.DurationMinutes,
		&b.Status,
		&b.PaymentStatus,
		&b.PaymentReference,
		&b.Notes,
		&b.CancellationReason,
		&b.ConfirmedAt,
		&b.CancelledAt,
		&b.CompletedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Date = base.DateFrom(date)
	b.StartTime = base.TimeFrom(start)
	b.EndTime = base.TimeFrom(end)
	return &b, nil
}

// Create inserts the booking and fills in its timestamps.
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (
			id, student_id, tutor_id, class_id, created_by, date, start_time, end_time,
			duration_minutes, status, payment_status, payment_reference, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		booking.ID,
		booking.StudentID,
		booking.TutorID,
		booking.ClassID,
		booking.CreatedBy,
		base.DateValue(booking.Date),
		base.TimeValue(booking.StartTime),
		base.TimeValue(booking.EndTime),
		booking.DurationMinutes,
		booking.Status,
		booking.PaymentStatus,
		booking.PaymentReference,
		booking.Notes,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// GetByID returns the booking or nil if absent
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

// Transition applies the change only while the status is still one of from.
func (r *BookingRepository) Transition(ctx context.Context, id uuid.UUID, from []model.BookingStatus, t model.BookingTransition) (*model.Booking, error) {
	query := `
		UPDATE bookings
		SET status = $3,
		    confirmed_at = CASE WHEN $3 = 'confirmed' THEN $4::timestamptz ELSE confirmed_at END,
		    cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4::timestamptz ELSE cancelled_at END,
		    completed_at = CASE WHEN $3 = 'completed' THEN $4::timestamptz ELSE completed_at END,
		    cancellation_reason = CASE WHEN $3 = 'cancelled' THEN $5 ELSE cancellation_reason END,
		    updated_at = $4
		WHERE id = $1
		  AND status = ANY($2)
		RETURNING` + bookingColumns

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	booking, err := scanBooking(r.QueryRow(ctx, query, id, statuses, string(t.To), t.At, t.Reason))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	return booking, nil
}

// UpdatePayment sets the payment fields of a booking
func (r *BookingRepository) UpdatePayment(ctx context.Context, id uuid.UUID, status, reference string) (*model.Booking, error) {
	query := `
		UPDATE bookings
		SET payment_status = $2,
		    payment_reference = $3,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING` + bookingColumns

	booking, err := scanBooking(r.QueryRow(ctx, query, id, status, reference))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("update booking payment: %w", err)
	}

	return booking, nil
}

// HasConflict looks for an active booking of the tutor overlapping the
// half-open window.
func (r *BookingRepository) HasConflict(ctx context.Context, q model.ConflictQuery) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM bookings
			WHERE tutor_id = $1
			  AND date = $2
			  AND status IN ('pending', 'confirmed')
			  AND start_time < $4
			  AND end_time > $3
			  AND ($5::uuid IS NULL OR id <> $5)
		)
	`

	var exists bool
	err := r.QueryRow(
		ctx, query,
		q.TutorID,
		base.DateValue(q.Window.Date),
		base.TimeValue(q.Window.Start),
		base.TimeValue(q.Window.End),
		q.ExcludeBookingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check booking conflict: %w", err)
	}

	return exists, nil
}

// LockTutorDay takes a transaction-scoped advisory lock on (tutor, day). It
// must run inside a transaction.
func (r *BookingRepository) LockTutorDay(ctx context.Context, tutorID uuid.UUID, day model.Date) error {
	query := `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	if _, err := r.ExecAffected(ctx, query, "tutor-day:"+tutorID.String()+":"+day.String()); err != nil {
		return fmt.Errorf("lock tutor day: %w", err)
	}

	return nil
}

// ListActiveByClass returns pending and confirmed bookings of a class
func (r *BookingRepository) ListActiveByClass(ctx context.Context, classID uuid.UUID) ([]*model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE class_id = $1
		  AND status IN ('pending', 'confirmed')
		ORDER BY created_at
	`

	return r.list(ctx, query, classID)
}

// ListByStudent returns the student's bookings, newest first
func (r *BookingRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE student_id = $1
		ORDER BY date DESC, start_time DESC, created_at DESC
	`

	return r.list(ctx, query, studentID)
}

// ListByTutor returns the tutor's bookings, newest first
func (r *BookingRepository) ListByTutor(ctx context.Context, tutorID uuid.UUID) ([]*model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE tutor_id = $1
		ORDER BY date DESC, start_time DESC, created_at DESC
	`

	return r.list(ctx, query, tutorID)
}

// ListConfirmedEndedBy returns confirmed bookings whose window has ended
func (r *BookingRepository) ListConfirmedEndedBy(ctx context.Context, day model.Date, at model.TimeOfDay) ([]*model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE status = 'confirmed'
		  AND (date < $1 OR (date = $1 AND end_time <= $2))
		ORDER BY date, end_time
	`

	return r.list(ctx, query, base.DateValue(day), base.TimeValue(at))
}

func (r *BookingRepository) list(ctx context.Context, query string, args ...any) ([]*model.Booking, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	bookings := []*model.Booking{}
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	return bookings, nil
}
