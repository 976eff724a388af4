package support

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ticketCols = []string{"id", "phone", "query", "status", "created_at", "updated_at"}

func TestPgCreateTicketUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO support_tickets").
		WithArgs(pgxmock.AnyArg(), "919800000001", "help").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err = NewPgRepository(mock).CreateTicket(context.Background(), "919800000001", "help")
	assert.ErrorIs(t, err, ErrTicketExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListOpenAttachesMessages(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery("FROM support_tickets").
		WillReturnRows(pgxmock.NewRows(ticketCols).
			AddRow(a, "111", "q1", StatusOpen, now.Add(time.Minute), now).
			AddRow(b, "222", "q2", StatusOpen, now, now))
	mock.ExpectQuery("FROM ticket_messages").
		WithArgs([]uuid.UUID{a, b}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "ticket_id", "sender", "body", "created_at"}).
			AddRow(uuid.New(), b, SenderUser, "q2", now).
			AddRow(uuid.New(), a, SenderUser, "q1", now).
			AddRow(uuid.New(), a, SenderAdmin, "answer", now.Add(time.Minute)))

	tickets, err := NewPgRepository(mock).ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, a, tickets[0].ID)
	assert.Len(t, tickets[0].Messages, 2)
	assert.Len(t, tickets[1].Messages, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgResolveMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE support_tickets").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, NewPgRepository(mock).Resolve(context.Background(), id), ErrTicketNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
