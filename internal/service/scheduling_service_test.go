package service

import (
	"testing"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_SingleSeatClassChangesHands(t *testing.T) {
	f := newFixture(t)
	studentA := f.student
	studentB := f.addUser(t, model.RoleStudent)

	class := f.createClass(t, 1, at(10, 0), at(11, 0))

	bookingA, err := f.enroll(studentA, class.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, bookingA.Status)

	view := model.NewClassAvailability(f.class(t, class.ID))
	assert.Equal(t, 1, view.Occupied)
	assert.False(t, view.IsBookable)

	_, err = f.enroll(studentB, class.ID)
	require.ErrorIs(t, err, ErrClassFull)

	_, err = f.svc.CancelBooking(f.ctx, studentA, bookingA.ID, "")
	require.NoError(t, err)

	view = model.NewClassAvailability(f.class(t, class.ID))
	assert.Equal(t, 0, view.Occupied)
	assert.True(t, view.IsBookable)

	bookingB, err := f.enroll(studentB, class.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, bookingB.Status)
	assert.Equal(t, 1, f.class(t, class.ID).Occupied)
}

func TestScenario_TutorConflictPreflight(t *testing.T) {
	f := newFixture(t)
	b := f.directBooking(t, at(10, 0), at(11, 0))
	_, err := f.svc.ConfirmBooking(f.ctx, f.tutor, b.ID)
	require.NoError(t, err)

	overlapping := model.Window{Date: testDay, Start: at(10, 30), End: at(11, 30)}
	conflict, err := f.svc.CheckConflict(f.ctx, f.tutor.ID, overlapping, nil)
	require.NoError(t, err)
	assert.True(t, conflict)

	adjacent := model.Window{Date: testDay, Start: at(11, 0), End: at(12, 0)}
	conflict, err = f.svc.CheckConflict(f.ctx, f.tutor.ID, adjacent, nil)
	require.NoError(t, err)
	assert.False(t, conflict)
}

func TestUserService_LinkTelegram(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Users.LinkTelegram(f.ctx, f.student.ID, 4242))
	u, err := f.svc.Users.GetByID(f.ctx, f.student.ID)
	require.NoError(t, err)
	require.NotNil(t, u.TelegramChatID)
	assert.EqualValues(t, 4242, *u.TelegramChatID)

	require.ErrorIs(t, f.svc.Users.LinkTelegram(f.ctx, f.student.ID, 0), ErrValidation)
	require.ErrorIs(t, f.svc.Users.LinkTelegram(f.ctx, model.SystemActor.ID, 1), ErrUserNotFound)
}

func TestUserService_Register(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Users.Register(f.ctx, f.student, RegisterUserInput{Name: "Eve", Role: model.RoleAdmin})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Users.Register(f.ctx, f.admin, RegisterUserInput{Name: "Eve", Role: model.RoleSystem})
	require.ErrorIs(t, err, ErrValidation)

	u, err := f.svc.Users.Register(f.ctx, f.admin, RegisterUserInput{Name: " Ann ", Email: "Ann@Example.com", Role: model.RoleTutor})
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.Name)
	assert.Equal(t, "ann@example.com", u.Email)

	got, err := f.svc.Users.GetByID(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleTutor, got.Role)

	_, err = f.svc.Users.Register(f.ctx, f.admin, RegisterUserInput{Name: "Ann B", Email: "ANN@example.com", Role: model.RoleStudent})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email", ve.Field)
}
