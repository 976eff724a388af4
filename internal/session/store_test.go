package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeKeepsVariantFields(t *testing.T) {
	doc := DoctorRef{ID: uuid.New(), Name: "Dr. Anil"}
	slot := OfferedSlot{ID: uuid.New(), Start: time.Date(2026, 3, 11, 16, 0, 0, 0, time.UTC)}

	state, data, err := Encode(ConfirmBooking{Doctor: doc, Slot: slot, PatientName: "Rahul", PatientAge: 34})
	require.NoError(t, err)
	assert.Equal(t, StateConfirmBooking, state)

	step, err := Decode(state, data)
	require.NoError(t, err)
	confirm, ok := step.(ConfirmBooking)
	require.True(t, ok)
	assert.Equal(t, doc, confirm.Doctor)
	assert.True(t, slot.Start.Equal(confirm.Slot.Start))
	assert.Equal(t, 34, confirm.PatientAge)
}

func TestDecodeStatelessVariantsIgnorePayload(t *testing.T) {
	step, err := Decode(StateChat, []byte(`{"doctorId":"stale"}`))
	require.NoError(t, err)
	assert.Equal(t, Chat{}, step)

	step, err = Decode(StateReminderReply, nil)
	require.NoError(t, err)
	assert.Nil(t, step.(ReminderReply).AppointmentID)
}

func TestDecodeRejectsUnknownState(t *testing.T) {
	_, err := Decode("MAIN_MENU", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownState)

	_, err = Decode(StateCollectAge, []byte(`not json`))
	assert.ErrorIs(t, err, ErrCorruptStep)
}

func TestInBookingFlow(t *testing.T) {
	assert.False(t, InBookingFlow(nil))
	assert.False(t, InBookingFlow(LanguageSelection{}))
	assert.False(t, InBookingFlow(Chat{}))
	assert.False(t, InBookingFlow(ReminderReply{}))

	assert.True(t, InBookingFlow(DepartmentSelection{}))
	assert.True(t, InBookingFlow(CollectName{}))
	assert.True(t, InBookingFlow(ConfirmBooking{PatientName: "Rahul"}))
}

func TestPgStoreGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM sessions").WithArgs("9199").WillReturnError(pgx.ErrNoRows)

	_, err = NewPgStore(mock).Get(context.Background(), "9199")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreGetDecodesStep(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"phone", "state", "data", "language", "version", "updated_at"}).
		AddRow("9199", StateCollectAge, []byte(`{"doctor":{"name":"Dr. Meera"},"patient_name":"Asha"}`), "malayalam", 3, now)
	mock.ExpectQuery("FROM sessions").WithArgs("9199").WillReturnRows(rows)

	s, err := NewPgStore(mock).Get(context.Background(), "9199")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Version)
	assert.Equal(t, LanguageMalayalam, s.Language)
	age, ok := s.Step.(CollectAge)
	require.True(t, ok)
	assert.Equal(t, "Asha", age.PatientName)
	assert.Equal(t, "Dr. Meera", age.Doctor.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStorePutInsertsThenUpdatesWithVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPgStore(mock)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s := &Session{Phone: "9199", Step: Chat{}}

	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs("9199", "CHAT", []byte(`{}`), "english").
		WillReturnRows(pgxmock.NewRows([]string{"version", "updated_at"}).AddRow(1, now))
	require.NoError(t, store.Put(context.Background(), s))
	assert.Equal(t, 1, s.Version)

	s.Step = DepartmentSelection{}
	mock.ExpectQuery("UPDATE sessions").
		WithArgs("9199", "DEPARTMENT_SELECTION", []byte(`{}`), "english", 1).
		WillReturnRows(pgxmock.NewRows([]string{"version", "updated_at"}).AddRow(2, now))
	require.NoError(t, store.Put(context.Background(), s))
	assert.Equal(t, 2, s.Version)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStorePutStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := &Session{Phone: "9199", Step: Chat{}, Language: LanguageEnglish, Version: 4}
	mock.ExpectQuery("UPDATE sessions").
		WithArgs("9199", "CHAT", []byte(`{}`), "english", 4).
		WillReturnError(pgx.ErrNoRows)

	err = NewPgStore(mock).Put(context.Background(), s)
	assert.ErrorIs(t, err, ErrStaleSession)
	assert.Equal(t, 4, s.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM sessions").WithArgs("9199").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, NewPgStore(mock).Delete(context.Background(), "9199"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStoreVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFound)

	a := &Session{Phone: "1", Step: Chat{}}
	require.NoError(t, store.Put(ctx, a))
	assert.Equal(t, 1, a.Version)

	b, err := store.Get(ctx, "1")
	require.NoError(t, err)

	a.Step = DepartmentSelection{}
	require.NoError(t, store.Put(ctx, a))
	assert.Equal(t, 2, a.Version)

	b.Step = LanguageSelection{}
	assert.ErrorIs(t, store.Put(ctx, b), ErrStaleSession)

	got, err := store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, StateDepartmentSelection, got.Step.State())

	require.NoError(t, store.Delete(ctx, "1"))
	_, err = store.Get(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFound)
}
