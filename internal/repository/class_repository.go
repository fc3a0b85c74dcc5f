package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const classColumns = `
	id, tutor_id, title, description, date, start_time, end_time,
	capacity, occupied, is_full, status, meeting_link,
	recurrence_pattern, recurrence_end_date,
	cancellation_reason, cancelled_at, created_at, updated_at`

type ClassRepository struct {
	*base.Repository
}

// NewClassRepository creates a new class repository
func NewClassRepository(pool *pgxpool.Pool) *ClassRepository {
	return &ClassRepository{Repository: base.NewRepository(pool)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClass(row rowScanner) (*model.ClassInstance, error) {
	var (
		c                   model.ClassInstance
		date, recurrenceEnd pgtype.Date
		start, end          pgtype.Time
		recurrencePattern   *string
	)
	err := row.Scan(
		&c.ID,
		&c.TutorID,
		&c.Title,
		&c.Description,
		&date,
		&start,
		&end,
		&c.Capacity,
		&c.Occupied,
		&c.IsFull,
		&c.Status,
		&c.MeetingLink,
		&recurrencePattern,
		&recurrenceEnd,
		&c.CancellationReason,
		&c.CancelledAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Date = base.DateFrom(date)
	c.StartTime = base.TimeFrom(start)
	c.EndTime = base.TimeFrom(end)
	if recurrencePattern != nil {
		c.Recurrence = &model.Recurrence{Pattern: model.RecurrencePattern(*recurrencePattern)}
		if recurrenceEnd.Valid {
			d := base.DateFrom(recurrenceEnd)
			c.Recurrence.EndDate = &d
		}
	}
	return &c, nil
}

func recurrenceValues(r *model.Recurrence) (*string, pgtype.Date) {
	if r == nil {
		return nil, pgtype.Date{}
	}
	pattern := string(r.Pattern)
	if r.EndDate == nil {
		return &pattern, pgtype.Date{}
	}
	return &pattern, base.DateValue(*r.EndDate)
}

// Create inserts the class and fills in its timestamps.
func (r *ClassRepository) Create(ctx context.Context, class *model.ClassInstance) error {
	query := `
		INSERT INTO class_instances (
			id, tutor_id, title, description, date, start_time, end_time,
			capacity, occupied, is_full, status, meeting_link,
			recurrence_pattern, recurrence_end_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	pattern, recurrenceEnd := recurrenceValues(class.Recurrence)
	err := r.QueryRow(
		ctx, query,
		class.ID,
		class.TutorID,
		class.Title,
		class.Description,
		base.DateValue(class.Date),
		base.TimeValue(class.StartTime),
		base.TimeValue(class.EndTime),
		class.Capacity,
		class.Occupied,
		class.IsFull,
		class.Status,
		class.MeetingLink,
		pattern,
		recurrenceEnd,
	).Scan(&class.CreatedAt, &class.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create class: %w", err)
	}

	return nil
}

// GetByID returns the class or nil if absent
func (r *ClassRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ClassInstance, error) {
	query := `SELECT` + classColumns + ` FROM class_instances WHERE id = $1`

	class, err := scanClass(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get class by id: %w", err)
	}

	return class, nil
}

// Update writes the editable fields under the same preconditions the service
// checks, so a seat taken in between cannot be truncated.
func (r *ClassRepository) Update(ctx context.Context, class *model.ClassInstance) (*model.ClassInstance, error) {
	query := `
		UPDATE class_instances
		SET title = $2,
		    description = $3,
		    date = $4,
		    start_time = $5,
		    end_time = $6,
		    capacity = $7,
		    is_full = occupied >= $7,
		    meeting_link = $8,
		    recurrence_pattern = $9,
		    recurrence_end_date = $10,
		    updated_at = NOW()
		WHERE id = $1
		  AND status IN ('scheduled', 'in_progress')
		  AND occupied <= $7
		  AND (occupied = 0 OR (date = $4 AND start_time = $5 AND end_time = $6))
		RETURNING` + classColumns

	pattern, recurrenceEnd := recurrenceValues(class.Recurrence)
	updated, err := scanClass(r.QueryRow(
		ctx, query,
		class.ID,
		class.Title,
		class.Description,
		base.DateValue(class.Date),
		base.TimeValue(class.StartTime),
		base.TimeValue(class.EndTime),
		class.Capacity,
		class.MeetingLink,
		pattern,
		recurrenceEnd,
	))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("update class: %w", err)
	}

	return updated, nil
}

// Delete removes the class only while no seat is occupied.
func (r *ClassRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `DELETE FROM class_instances WHERE id = $1 AND occupied = 0`

	affected, err := r.ExecAffected(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete class: %w", err)
	}

	return affected > 0, nil
}

// ReserveSeat is the single conditional increment the capacity invariant relies on.
func (r *ClassRepository) ReserveSeat(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE class_instances
		SET occupied = occupied + 1,
		    is_full = occupied + 1 >= capacity,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'scheduled'
		  AND occupied < capacity
	`

	affected, err := r.ExecAffected(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("reserve seat: %w", err)
	}

	return affected > 0, nil
}

// ReleaseSeat frees one seat, never going below zero
func (r *ClassRepository) ReleaseSeat(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE class_instances
		SET occupied = GREATEST(occupied - 1, 0),
		    is_full = GREATEST(occupied - 1, 0) >= capacity,
		    updated_at = NOW()
		WHERE id = $1
	`

	affected, err := r.ExecAffected(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("release seat: %w", err)
	}

	return affected > 0, nil
}

// Transition changes the status only while it is still one of from
func (r *ClassRepository) Transition(ctx context.Context, id uuid.UUID, from []model.ClassStatus, to model.ClassStatus, at time.Time, reason string) (*model.ClassInstance, error) {
	query := `
		UPDATE class_instances
		SET status = $3,
		    cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4::timestamptz ELSE cancelled_at END,
		    cancellation_reason = CASE WHEN $3 = 'cancelled' THEN $5 ELSE cancellation_reason END,
		    updated_at = $4
		WHERE id = $1
		  AND status = ANY($2)
		RETURNING` + classColumns

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	class, err := scanClass(r.QueryRow(ctx, query, id, statuses, string(to), at, reason))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("update class status: %w", err)
	}

	return class, nil
}

// ListAvailable returns non-terminal classes ordered by date, start time and id.
func (r *ClassRepository) ListAvailable(ctx context.Context, filter model.ClassFilter) ([]*model.ClassInstance, error) {
	filter = filter.Normalized()

	from, to := pgtype.Date{}, pgtype.Date{}
	if filter.From != nil {
		from = base.DateValue(*filter.From)
	}
	if filter.To != nil {
		to = base.DateValue(*filter.To)
	}

	query := `SELECT` + classColumns + `
		FROM class_instances
		WHERE status IN ('scheduled', 'in_progress')
		  AND ($1::uuid IS NULL OR tutor_id = $1)
		  AND ($2::date IS NULL OR date >= $2)
		  AND ($3::date IS NULL OR date <= $3)
		  AND (NOT $4 OR (status = 'scheduled' AND occupied < capacity))
		ORDER BY date, start_time, id
		LIMIT $5 OFFSET $6
	`

	return r.list(ctx, query, filter.TutorID, from, to, filter.OnlyBookable, filter.Limit, filter.Offset)
}

// ListStartingBy returns scheduled classes whose start has passed
func (r *ClassRepository) ListStartingBy(ctx context.Context, day model.Date, at model.TimeOfDay) ([]*model.ClassInstance, error) {
	query := `SELECT` + classColumns + `
		FROM class_instances
		WHERE status = 'scheduled'
		  AND (date < $1 OR (date = $1 AND start_time <= $2))
		ORDER BY date, start_time, id
	`

	return r.list(ctx, query, base.DateValue(day), base.TimeValue(at))
}

// ListEndedBy returns classes in status whose end has passed
func (r *ClassRepository) ListEndedBy(ctx context.Context, status model.ClassStatus, day model.Date, at model.TimeOfDay) ([]*model.ClassInstance, error) {
	query := `SELECT` + classColumns + `
		FROM class_instances
		WHERE status = $1
		  AND (date < $2 OR (date = $2 AND end_time <= $3))
		ORDER BY date, start_time, id
	`

	return r.list(ctx, query, string(status), base.DateValue(day), base.TimeValue(at))
}

func (r *ClassRepository) list(ctx context.Context, query string, args ...any) ([]*model.ClassInstance, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	classes := []*model.ClassInstance{}
	for rows.Next() {
		class, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, class)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}

	return classes, nil
}
