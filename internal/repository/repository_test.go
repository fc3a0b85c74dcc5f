package repository_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/app"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/repository"
	"github.com/Freeeeeet/tutorbook/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Set TUTORBOOK_TEST_DB_DSN to a disposable Postgres to run these. Each test
// migrates into its own schema and drops it afterwards.
const dsnEnv = "TUTORBOOK_TEST_DB_DSN"

var day = model.Date{Year: 2030, Month: time.March, Day: 4}

type repos struct {
	ctx      context.Context
	tx       *base.TxManager
	users    *repository.UserRepository
	classes  *repository.ClassRepository
	bookings *repository.BookingRepository
}

func setup(t *testing.T) *repos {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(admin.Close)

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	cfg.MaxConns = 16
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrator, err := app.NewMigrator(pool, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Run(ctx))

	return &repos{
		ctx:      ctx,
		tx:       base.NewTxManager(pool),
		users:    repository.NewUserRepository(pool),
		classes:  repository.NewClassRepository(pool),
		bookings: repository.NewBookingRepository(pool),
	}
}

func (r *repos) user(t *testing.T, role model.Role) *model.User {
	t.Helper()
	u := &model.User{ID: uuid.New(), Name: string(role), Role: role}
	require.NoError(t, r.users.Create(r.ctx, u))
	return u
}

func (r *repos) class(t *testing.T, tutorID uuid.UUID, capacity int) *model.ClassInstance {
	t.Helper()
	c := &model.ClassInstance{
		ID:        uuid.New(),
		TutorID:   tutorID,
		Title:     "Algebra",
		Date:      day,
		StartTime: model.NewTimeOfDay(10, 0),
		EndTime:   model.NewTimeOfDay(11, 0),
		Capacity:  capacity,
		Status:    model.ClassStatusScheduled,
	}
	require.NoError(t, r.classes.Create(r.ctx, c))
	return c
}

func (r *repos) booking(t *testing.T, studentID, tutorID uuid.UUID, startH, endH int) *model.Booking {
	t.Helper()
	b := &model.Booking{
		ID:              uuid.New(),
		StudentID:       studentID,
		TutorID:         &tutorID,
		CreatedBy:       studentID,
		Date:            day,
		StartTime:       model.NewTimeOfDay(startH, 0),
		EndTime:         model.NewTimeOfDay(endH, 0),
		DurationMinutes: (endH - startH) * 60,
		Status:          model.BookingStatusPending,
		PaymentStatus:   model.PaymentStatusPending,
	}
	require.NoError(t, r.bookings.Create(r.ctx, b))
	return b
}

func TestClassRepository_ReserveSeatNeverOvercommits(t *testing.T) {
	r := setup(t)
	tutor := r.user(t, model.RoleTutor)
	class := r.class(t, tutor.ID, 3)

	const workers = 16
	var (
		wg       sync.WaitGroup
		reserved atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.classes.ReserveSeat(r.ctx, class.ID)
			if assert.NoError(t, err) && ok {
				reserved.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 3, reserved.Load())
	got, err := r.classes.GetByID(r.ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Occupied)
	assert.True(t, got.IsFull)

	ok, err := r.classes.ReleaseSeat(r.ctx, class.ID)
	require.NoError(t, err)
	require.True(t, ok)
	got, err = r.classes.GetByID(r.ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Occupied)
	assert.False(t, got.IsFull)
}

func TestClassRepository_TransitionAndDeletePreconditions(t *testing.T) {
	r := setup(t)
	tutor := r.user(t, model.RoleTutor)
	class := r.class(t, tutor.ID, 2)

	ok, err := r.classes.ReserveSeat(r.ctx, class.ID)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := r.classes.Delete(r.ctx, class.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "occupied classes stay")

	now := time.Now().UTC()
	cancelled, err := r.classes.Transition(r.ctx, class.ID, []model.ClassStatus{model.ClassStatusScheduled}, model.ClassStatusCancelled, now, "ill")
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, model.ClassStatusCancelled, cancelled.Status)
	assert.Equal(t, "ill", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledAt)

	again, err := r.classes.Transition(r.ctx, class.ID, []model.ClassStatus{model.ClassStatusScheduled}, model.ClassStatusInProgress, now, "")
	require.NoError(t, err)
	assert.Nil(t, again, "precondition no longer holds")

	ok, err = r.classes.ReserveSeat(r.ctx, class.ID)
	require.NoError(t, err)
	assert.False(t, ok, "cancelled classes take no seats")

	empty := r.class(t, tutor.ID, 1)
	deleted, err = r.classes.Delete(r.ctx, empty.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	got, err := r.classes.GetByID(r.ctx, empty.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBookingRepository_HasConflictIsHalfOpen(t *testing.T) {
	r := setup(t)
	tutor := r.user(t, model.RoleTutor)
	student := r.user(t, model.RoleStudent)
	existing := r.booking(t, student.ID, tutor.ID, 10, 11)

	tests := []struct {
		name       string
		start, end int
		want       bool
	}{
		{"identical", 10, 11, true},
		{"covers", 9, 12, true},
		{"back to back after", 11, 12, false},
		{"back to back before", 9, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := model.ConflictQuery{
				TutorID: tutor.ID,
				Window:  model.Window{Date: day, Start: model.NewTimeOfDay(tt.start, 0), End: model.NewTimeOfDay(tt.end, 0)},
			}
			got, err := r.bookings.HasConflict(r.ctx, q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	q := model.ConflictQuery{TutorID: tutor.ID, Window: existing.Window(), ExcludeBookingID: &existing.ID}
	got, err := r.bookings.HasConflict(r.ctx, q)
	require.NoError(t, err)
	assert.False(t, got, "excluded booking")

	cancelled, err := r.bookings.Transition(r.ctx, existing.ID, model.ActiveBookingStatuses, model.BookingTransition{
		To: model.BookingStatusCancelled, At: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotNil(t, cancelled)

	again, err := r.bookings.Transition(r.ctx, existing.ID, model.ActiveBookingStatuses, model.BookingTransition{
		To: model.BookingStatusCancelled, At: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Nil(t, again, "a booking is cancelled once")

	got, err = r.bookings.HasConflict(r.ctx, model.ConflictQuery{TutorID: tutor.ID, Window: existing.Window()})
	require.NoError(t, err)
	assert.False(t, got, "cancelled bookings never conflict")
}

func TestBookingRepository_LockTutorDaySerializes(t *testing.T) {
	r := setup(t)
	tutor := r.user(t, model.RoleTutor)

	const workers = 8
	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < workers; i++ {
		student := r.user(t, model.RoleStudent)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.tx.WithinTx(r.ctx, func(ctx context.Context) error {
				if err := r.bookings.LockTutorDay(ctx, tutor.ID, day); err != nil {
					return err
				}
				w := model.Window{Date: day, Start: model.NewTimeOfDay(10, 0), End: model.NewTimeOfDay(11, 0)}
				conflict, err := r.bookings.HasConflict(ctx, model.ConflictQuery{TutorID: tutor.ID, Window: w})
				if err != nil || conflict {
					return err
				}
				tutorID := tutor.ID
				b := &model.Booking{
					ID: uuid.New(), StudentID: student.ID, TutorID: &tutorID, CreatedBy: student.ID,
					Date: day, StartTime: w.Start, EndTime: w.End, DurationMinutes: 60,
					Status: model.BookingStatusPending, PaymentStatus: model.PaymentStatusPending,
				}
				if err := r.bookings.Create(ctx, b); err != nil {
					return err
				}
				created.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	list, err := r.bookings.ListByTutor(r.ctx, tutor.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	r := setup(t)

	first := &model.User{ID: uuid.New(), Name: "Ann", Email: "ann@example.com", Role: model.RoleStudent}
	require.NoError(t, r.users.Create(r.ctx, first))

	second := &model.User{ID: uuid.New(), Name: "Ann", Email: "ann@example.com", Role: model.RoleTutor}
	err := r.users.Create(r.ctx, second)
	require.ErrorIs(t, err, model.ErrDuplicateEmail)

	got, err := r.users.GetByID(r.ctx, second.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Emails are optional; empty ones never collide.
	for i := 0; i < 2; i++ {
		require.NoError(t, r.users.Create(r.ctx, &model.User{ID: uuid.New(), Name: fmt.Sprint("anon", i), Role: model.RoleStudent}))
	}
}
