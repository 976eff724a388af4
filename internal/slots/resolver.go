// Package slots reconciles a requested instant with a doctor's open slots.
package slots

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
	"github.com/hackgods/whatsapp-hospital-bot/internal/timeparse"
)

type MatchType string

const (
	MatchExact       MatchType = "exact"
	MatchNearby      MatchType = "nearby"
	MatchAlternative MatchType = "alternative"
)

const (
	// ExactWindow is how far a slot may start from the requested instant and still count as exact.
	ExactWindow = 15 * time.Minute

	DefaultMaxAlternatives = 3
)

const (
	reasonExact       = "Available at your requested time"
	reasonNearby      = "Available on the same day"
	reasonAlternative = "Next available slot"
)

// Source lists unbooked slots for a doctor starting in [from, to). A zero to
// means no upper bound.
type Source interface {
	ListOpenSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.Slot, error)
}

// Match is one candidate slot. MinutesOffset is signed for exact matches and
// absolute otherwise.
type Match struct {
	Slot          appointment.Slot
	Type          MatchType
	MinutesOffset int
	Reason        string
}

type Resolver struct {
	src Source
	loc *time.Location
	now func() time.Time
}

func NewResolver(src Source, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{src: src, loc: loc, now: time.Now}
}

// WithClock replaces the resolver's notion of now.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// FindBestSlots returns a single exact match when one exists. Otherwise it
// returns same-day slots nearest to requested first, then backfills with the
// earliest slots on other days, up to max entries.
func (r *Resolver) FindBestSlots(ctx context.Context, doctorID uuid.UUID, requested time.Time, max int) ([]Match, error) {
	if max <= 0 {
		max = DefaultMaxAlternatives
	}

	open, err := r.futureSlots(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	for _, s := range open {
		diff := s.StartTime.Sub(requested)
		if diff.Abs() <= ExactWindow {
			return []Match{{
				Slot:          s,
				Type:          MatchExact,
				MinutesOffset: int(diff / time.Minute),
				Reason:        reasonExact,
			}}, nil
		}
	}

	dayStart := timeparse.StartOfDay(requested.In(r.loc))
	dayEnd := dayStart.AddDate(0, 0, 1)

	var sameDay []Match
	taken := make(map[uuid.UUID]bool)
	for _, s := range open {
		if s.StartTime.Before(dayStart) || !s.StartTime.Before(dayEnd) {
			continue
		}
		taken[s.ID] = true
		sameDay = append(sameDay, Match{
			Slot:          s,
			Type:          MatchNearby,
			MinutesOffset: absMinutes(s.StartTime.Sub(requested)),
			Reason:        reasonNearby,
		})
	}
	sort.SliceStable(sameDay, func(i, j int) bool {
		return sameDay[i].MinutesOffset < sameDay[j].MinutesOffset
	})

	matches := sameDay
	if len(matches) > max {
		matches = matches[:max]
	}

	for _, s := range open {
		if len(matches) >= max {
			break
		}
		if taken[s.ID] {
			continue
		}
		matches = append(matches, Match{
			Slot:          s,
			Type:          MatchAlternative,
			MinutesOffset: absMinutes(s.StartTime.Sub(requested)),
			Reason:        reasonAlternative,
		})
	}

	return matches, nil
}

// FindNextAvailableSlot returns the doctor's earliest future open slot, or nil.
func (r *Resolver) FindNextAvailableSlot(ctx context.Context, doctorID uuid.UUID) (*appointment.Slot, error) {
	open, err := r.futureSlots(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	s := open[0]
	return &s, nil
}

// SlotsOnDay returns the doctor's future open slots on the calendar day of day.
func (r *Resolver) SlotsOnDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]appointment.Slot, error) {
	from := timeparse.StartOfDay(day.In(r.loc))
	to := from.AddDate(0, 0, 1)
	if now := r.now(); from.Before(now) {
		from = now
	}
	if !from.Before(to) {
		return nil, nil
	}
	slots, err := r.src.ListOpenSlots(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots on day: %w", err)
	}
	sortByStart(slots)
	return slots, nil
}

// UpcomingDates lists the distinct calendar days, in order, on which the
// doctor has future open slots.
func (r *Resolver) UpcomingDates(ctx context.Context, doctorID uuid.UUID) ([]time.Time, error) {
	open, err := r.futureSlots(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	var dates []time.Time
	seen := make(map[string]bool)
	for _, s := range open {
		day := timeparse.StartOfDay(s.StartTime.In(r.loc))
		key := day.Format(time.DateOnly)
		if seen[key] {
			continue
		}
		seen[key] = true
		dates = append(dates, day)
	}
	return dates, nil
}

func (r *Resolver) futureSlots(ctx context.Context, doctorID uuid.UUID) ([]appointment.Slot, error) {
	now := r.now()
	slots, err := r.src.ListOpenSlots(ctx, doctorID, now, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list open slots: %w", err)
	}

	out := make([]appointment.Slot, 0, len(slots))
	for _, s := range slots {
		if !s.IsBooked && s.StartTime.After(now) {
			out = append(out, s)
		}
	}
	sortByStart(out)
	return out, nil
}

// FormatSlotMatches renders matches as a numbered list with their reasons.
func FormatSlotMatches(matches []Match, loc *time.Location) string {
	if len(matches) == 0 {
		return "No available slots found."
	}

	lines := make([]string, 0, len(matches))
	for i, m := range matches {
		line := fmt.Sprintf("%d. %s", i+1, timeparse.FormatAppointmentTime(m.Slot.StartTime, loc))
		if m.Reason != "" {
			line += " (" + m.Reason + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func sortByStart(slots []appointment.Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
}

func absMinutes(d time.Duration) int {
	return int(d.Abs() / time.Minute)
}
