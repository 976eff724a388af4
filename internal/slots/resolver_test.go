package slots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
)

type stubSource struct {
	slots []appointment.Slot
	err   error
}

func (s *stubSource) ListOpenSlots(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.Slot, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []appointment.Slot
	for _, sl := range s.slots {
		if sl.DoctorID != doctorID || sl.IsBooked || sl.StartTime.Before(from) {
			continue
		}
		if !to.IsZero() && !sl.StartTime.Before(to) {
			continue
		}
		out = append(out, sl)
	}
	return out, nil
}

var (
	doctorID = uuid.New()
	now      = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
)

func slotAt(day, hour, min int) appointment.Slot {
	start := time.Date(2026, 3, day, hour, min, 0, 0, time.UTC)
	return appointment.Slot{ID: uuid.New(), DoctorID: doctorID, StartTime: start, EndTime: start.Add(30 * time.Minute)}
}

func newResolver(slots ...appointment.Slot) *Resolver {
	r := NewResolver(&stubSource{slots: slots}, time.UTC)
	r.now = func() time.Time { return now }
	return r
}

func TestExactMatchSuppressesAlternatives(t *testing.T) {
	exact := slotAt(11, 16, 0)
	r := newResolver(slotAt(11, 15, 0), exact, slotAt(11, 16, 30), slotAt(12, 9, 0))

	matches, err := r.FindBestSlots(context.Background(), doctorID, time.Date(2026, 3, 11, 16, 10, 0, 0, time.UTC), 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, MatchExact, matches[0].Type)
	assert.Equal(t, exact.ID, matches[0].Slot.ID)
	assert.Equal(t, -10, matches[0].MinutesOffset)
	assert.Equal(t, "Available at your requested time", matches[0].Reason)
}

func TestExactWindowBoundary(t *testing.T) {
	s := slotAt(11, 16, 15)
	r := newResolver(s)

	matches, err := r.FindBestSlots(context.Background(), doctorID, time.Date(2026, 3, 11, 16, 0, 0, 0, time.UTC), 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, MatchExact, matches[0].Type)
	assert.Equal(t, 15, matches[0].MinutesOffset)
}

func TestSameDaySortedByDistance(t *testing.T) {
	r := newResolver(
		slotAt(11, 9, 0),
		slotAt(11, 11, 0),
		slotAt(11, 14, 0),
		slotAt(11, 17, 0),
		slotAt(12, 12, 0),
	)

	requested := time.Date(2026, 3, 11, 12, 30, 0, 0, time.UTC)
	matches, err := r.FindBestSlots(context.Background(), doctorID, requested, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	for _, m := range matches {
		assert.Equal(t, MatchNearby, m.Type)
		assert.Equal(t, 11, m.Slot.StartTime.Day())
	}
	assert.Equal(t, []int{90, 90, 210}, []int{matches[0].MinutesOffset, matches[1].MinutesOffset, matches[2].MinutesOffset})
	assert.Equal(t, 11, matches[0].Slot.StartTime.Hour())
	assert.Equal(t, 14, matches[1].Slot.StartTime.Hour())
}

func TestBackfillWithEarliestOtherDays(t *testing.T) {
	r := newResolver(
		slotAt(10, 7, 0), // before now
		slotAt(11, 10, 0),
		slotAt(12, 9, 0),
		slotAt(12, 9, 30),
		slotAt(13, 9, 0),
	)

	requested := time.Date(2026, 3, 11, 16, 0, 0, 0, time.UTC)
	matches, err := r.FindBestSlots(context.Background(), doctorID, requested, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, MatchNearby, matches[0].Type)
	assert.Equal(t, 360, matches[0].MinutesOffset)
	assert.Equal(t, MatchAlternative, matches[1].Type)
	assert.Equal(t, "Next available slot", matches[1].Reason)
	assert.Equal(t, time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC), matches[1].Slot.StartTime)
	assert.Equal(t, time.Date(2026, 3, 12, 9, 30, 0, 0, time.UTC), matches[2].Slot.StartTime)
}

func TestBookedSlotsNeverReturned(t *testing.T) {
	booked := slotAt(11, 16, 0)
	booked.IsBooked = true
	r := newResolver(booked, slotAt(11, 17, 0))

	matches, err := r.FindBestSlots(context.Background(), doctorID, booked.StartTime, 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.NotEqual(t, booked.ID, matches[0].Slot.ID)
	assert.Equal(t, MatchNearby, matches[0].Type)
}

func TestNoSlots(t *testing.T) {
	r := newResolver()
	matches, err := r.FindBestSlots(context.Background(), doctorID, now, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)

	next, err := r.FindNextAvailableSlot(context.Background(), doctorID)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestSourceErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	r := NewResolver(&stubSource{err: boom}, time.UTC)
	_, err := r.FindBestSlots(context.Background(), doctorID, now, 3)
	assert.ErrorIs(t, err, boom)
}

func TestFindNextAvailableSlotAndDates(t *testing.T) {
	r := newResolver(slotAt(12, 9, 0), slotAt(11, 14, 0), slotAt(11, 9, 0), slotAt(9, 9, 0))

	next, err := r.FindNextAvailableSlot(context.Background(), doctorID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), next.StartTime)

	dates, err := r.UpcomingDates(context.Background(), doctorID)
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.Equal(t, 11, dates[0].Day())
	assert.Equal(t, 12, dates[1].Day())

	day, err := r.SlotsOnDay(context.Background(), doctorID, time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, 9, day[0].StartTime.Hour())
}

func TestFormatSlotMatches(t *testing.T) {
	assert.Equal(t, "No available slots found.", FormatSlotMatches(nil, time.UTC))

	out := FormatSlotMatches([]Match{
		{Slot: slotAt(11, 15, 4), Reason: "Available on the same day"},
		{Slot: slotAt(12, 9, 0)},
	}, time.UTC)
	assert.Equal(t, "1. Wed, Mar 11 at 3:04 PM (Available on the same day)\n2. Thu, Mar 12 at 9:00 AM", out)
}
