package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgDueAndMarkSent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	id := uuid.New()

	mock.ExpectQuery("FROM scheduled_reminders").
		WithArgs(now, 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "phone", "send_at", "type", "status", "created_at"}).
			AddRow(id, "919800000001", now.Add(-time.Minute), "DEMO", StatusPending, now.Add(-time.Hour)))

	due, err := repo.Due(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "DEMO", due[0].Type)

	mock.ExpectExec("UPDATE scheduled_reminders").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.MarkSent(ctx, id))

	mock.ExpectExec("UPDATE scheduled_reminders").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.MarkSent(ctx, id), ErrReminderNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
