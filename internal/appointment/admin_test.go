package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	doctorCols = []string{"id", "name", "department", "specialization", "consultation_hours", "active"}
	deptCols   = []string{"id", "name", "description", "icon", "display_order", "active"}
	slotCols   = []string{"id", "doctor_id", "start_time", "end_time", "is_booked"}
)

func TestListDoctorsFiltersByDepartment(t *testing.T) {
	mock, repo := newMockRepo(t)
	spec := "Interventional Cardiology"

	mock.ExpectQuery("FROM doctors").
		WithArgs("cardio", true).
		WillReturnRows(pgxmock.NewRows(doctorCols).
			AddRow(uuid.New(), "Dr. Sarah Johnson", "Cardiology", &spec, nil, true))

	doctors, err := repo.ListDoctors(context.Background(), DoctorFilter{Department: "cardio", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	assert.Equal(t, "Dr. Sarah Johnson", doctors[0].Name)
	assert.Equal(t, spec, *doctors[0].Specialization)
	assert.Nil(t, doctors[0].ConsultationHours)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDoctorTogglesActive(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()
	inactive := false

	mock.ExpectQuery("UPDATE doctors").
		WithArgs(id, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), &inactive).
		WillReturnRows(pgxmock.NewRows(doctorCols).
			AddRow(id, "Dr. Kevin Taylor", "ENT", nil, nil, false))

	d, err := repo.UpdateDoctor(context.Background(), id, DoctorPatch{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, d.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDoctorNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("UPDATE doctors").
		WithArgs(id, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	name := "Dr. Nobody"
	_, err := repo.UpdateDoctor(context.Background(), id, DoctorPatch{Name: &name})
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDepartmentDuplicateName(t *testing.T) {
	mock, repo := newMockRepo(t)
	in := NewDepartment{Name: "Cardiology", Description: "Heart care", Icon: "❤️", DisplayOrder: 1}

	mock.ExpectQuery("INSERT INTO departments").
		WithArgs(pgxmock.AnyArg(), in.Name, in.Description, in.Icon, in.DisplayOrder).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	_, err := repo.CreateDepartment(context.Background(), in)
	assert.ErrorIs(t, err, ErrDepartmentExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDepartmentsIncludesInactive(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("FROM departments").
		WillReturnRows(pgxmock.NewRows(deptCols).
			AddRow(uuid.New(), "Cardiology", "Heart care", "❤️", 1, true).
			AddRow(uuid.New(), "ENT", "Ear, Nose, and Throat", "👂", 7, false))

	depts, err := repo.ListDepartments(context.Background())
	require.NoError(t, err)
	require.Len(t, depts, 2)
	assert.False(t, depts[1].Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDepartmentNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("UPDATE departments").
		WithArgs(id, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateDepartment(context.Background(), id, DepartmentPatch{})
	assert.ErrorIs(t, err, ErrDepartmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSlotMapsConstraintViolations(t *testing.T) {
	start := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	in := NewSlot{DoctorID: uuid.New(), StartTime: start, EndTime: start.Add(30 * time.Minute)}

	cases := map[string]error{
		uniqueViolation:     ErrSlotExists,
		foreignKeyViolation: ErrDoctorNotFound,
	}
	for code, want := range cases {
		t.Run(code, func(t *testing.T) {
			mock, repo := newMockRepo(t)
			mock.ExpectQuery("INSERT INTO availability").
				WithArgs(pgxmock.AnyArg(), in.DoctorID, in.StartTime, in.EndTime).
				WillReturnError(&pgconn.PgError{Code: code})

			_, err := repo.CreateSlot(context.Background(), in)
			assert.ErrorIs(t, err, want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteSlotRefusesBookedSlot(t *testing.T) {
	mock, repo := newMockRepo(t)
	id, doctorID := uuid.New(), uuid.New()
	start := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("DELETE FROM availability").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("FROM availability").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(slotCols).AddRow(id, doctorID, start, start.Add(30*time.Minute), true))

	err := repo.DeleteSlot(context.Background(), id)
	assert.ErrorIs(t, err, ErrSlotInUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSlotUnknown(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM availability").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("FROM availability").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	err := repo.DeleteSlot(context.Background(), id)
	assert.ErrorIs(t, err, ErrSlotNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSlotWithAppointmentHistory(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM availability").
		WithArgs(id).
		WillReturnError(&pgconn.PgError{Code: foreignKeyViolation})

	err := repo.DeleteSlot(context.Background(), id)
	assert.ErrorIs(t, err, ErrSlotInUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAppointmentsJoinsDoctorAndSlot(t *testing.T) {
	mock, repo := newMockRepo(t)
	apptID, doctorID, slotID := uuid.New(), uuid.New(), uuid.New()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	start := now.Add(24 * time.Hour)

	cols := append(append(append([]string{}, appointmentCols...), doctorCols...), slotCols...)
	mock.ExpectQuery("FROM appointments a").
		WithArgs("BOOKED", pgxmock.AnyArg(), adminListLimit).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			apptID, doctorID, slotID, "Rahul", 34, "919800000001", StatusBooked, nil, now, now,
			doctorID, "Dr. Anil", "General Medicine", nil, nil, true,
			slotID, doctorID, start, start.Add(30*time.Minute), true,
		))

	list, err := repo.ListAppointments(context.Background(), AppointmentFilter{Status: StatusBooked})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Dr. Anil", list[0].Doctor.Name)
	assert.Equal(t, start, list[0].Slot.StartTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminCreateSlotRejectsBackwardsWindow(t *testing.T) {
	mock, repo := newMockRepo(t)
	admin := NewAdmin(repo, newTestService(t, newMemRepo()), nil)
	start := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

	_, err := admin.CreateSlot(context.Background(), NewSlot{DoctorID: uuid.New(), StartTime: start, EndTime: start})
	assert.ErrorIs(t, err, ErrInvalidSlot)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminDoctorsByDepartmentAttachesNextSlot(t *testing.T) {
	mock, repo := newMockRepo(t)
	bookings := newMemRepo()
	admin := NewAdmin(repo, newTestService(t, bookings), nil)

	busy, free := uuid.New(), uuid.New()
	next := bookings.addSlot(busy, time.Now().Add(2*time.Hour))

	mock.ExpectQuery("FROM doctors").
		WithArgs("Cardiology", true).
		WillReturnRows(pgxmock.NewRows(doctorCols).
			AddRow(busy, "Dr. Sarah Johnson", "Cardiology", nil, nil, true).
			AddRow(free, "Dr. Michael Chen", "Cardiology", nil, nil, true))

	got, err := admin.DoctorsByDepartment(context.Background(), " Cardiology ")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].NextSlot)
	assert.Equal(t, next.ID, got[0].NextSlot.ID)
	assert.Nil(t, got[1].NextSlot)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminCancelGoesThroughBookingService(t *testing.T) {
	_, repo := newMockRepo(t)
	bookings := newMemRepo()
	svc := newTestService(t, bookings)
	admin := NewAdmin(repo, svc, nil)

	doctorID := uuid.New()
	slot := bookings.addSlot(doctorID, time.Now().Add(time.Hour))
	appt, err := svc.Book(context.Background(), BookingRequest{
		DoctorID: doctorID, AvailabilityID: slot.ID, PatientName: "A", PatientAge: 40, PatientPhone: "1",
	})
	require.NoError(t, err)

	cancelled, err := admin.CancelAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, EventAppointmentCancelled, bookings.events[len(bookings.events)-1].EventType)

	_, err = admin.CancelAppointment(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}
