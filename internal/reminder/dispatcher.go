// Package reminder sends day-before appointment reminders and queued
// one-off reminders, then arms the recipient's session to read the reply.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
	"github.com/hackgods/whatsapp-hospital-bot/internal/messaging"
	"github.com/hackgods/whatsapp-hospital-bot/internal/observability/metrics"
	redisclient "github.com/hackgods/whatsapp-hospital-bot/internal/redis"
	"github.com/hackgods/whatsapp-hospital-bot/internal/session"
	"github.com/hackgods/whatsapp-hospital-bot/internal/timeparse"
)

const (
	kindDayBefore = "day_before"
	kindScheduled = "scheduled"

	dueBatchSize = 100
)

// AppointmentSource is the slice of the appointment service the dispatcher uses.
type AppointmentSource interface {
	ListUnremindedBetween(ctx context.Context, from, to time.Time) ([]appointment.AppointmentDetail, error)
	MarkReminded(ctx context.Context, id uuid.UUID) error
}

// Result counts one dispatch run. Deferred reminders stay pending and are
// retried on the next run.
type Result struct {
	Sent     int
	Failed   int
	Deferred int
}

func (r *Result) add(o outcome) {
	switch o {
	case outcomeSent:
		r.Sent++
	case outcomeFailed:
		r.Failed++
	case outcomeDeferred:
		r.Deferred++
	}
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeDeferred
)

var outcomeLabels = map[outcome]string{
	outcomeSent:     "sent",
	outcomeFailed:   "failed",
	outcomeDeferred: "deferred",
}

type Dispatcher struct {
	appointments AppointmentSource
	reminders    Repository
	sessions     session.Store
	sender       messaging.Sender
	locker       redisclient.Locker
	lockWait     time.Duration
	loc          *time.Location
	logger       *zap.Logger
	metrics      *metrics.BotMetrics
	now          func() time.Time
}

// Options configures a Dispatcher. Locker should be the same per-phone locker
// the dialogue engine uses; without one, sends are not serialized with
// conversation turns.
type Options struct {
	Location      *time.Location
	Locker        redisclient.Locker
	PhoneLockWait time.Duration
	Logger        *zap.Logger
	Metrics       *metrics.BotMetrics
}

func NewDispatcher(appts AppointmentSource, reminders Repository, sessions session.Store, sender messaging.Sender, opts Options) *Dispatcher {
	d := &Dispatcher{
		appointments: appts,
		reminders:    reminders,
		sessions:     sessions,
		sender:       sender,
		locker:       opts.Locker,
		lockWait:     opts.PhoneLockWait,
		loc:          opts.Location,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		now:          time.Now,
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.lockWait <= 0 {
		d.lockWait = 2 * time.Second
	}
	return d
}

// RunOnce sends every reminder that is due now. A failed send is logged and
// skipped so one bad number does not block the rest of the batch.
func (d *Dispatcher) RunOnce(ctx context.Context) (Result, error) {
	var total Result

	r, err := d.sendDayBefore(ctx)
	total.Sent += r.Sent
	total.Failed += r.Failed
	total.Deferred += r.Deferred
	if err != nil {
		return total, err
	}

	r, err = d.sendScheduled(ctx)
	total.Sent += r.Sent
	total.Failed += r.Failed
	total.Deferred += r.Deferred
	return total, err
}

func (d *Dispatcher) sendDayBefore(ctx context.Context) (Result, error) {
	var res Result

	today := timeparse.StartOfDay(d.now().In(d.loc))
	from := today.AddDate(0, 0, 1)
	to := today.AddDate(0, 0, 2)

	appts, err := d.appointments.ListUnremindedBetween(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("load tomorrow's appointments: %w", err)
	}

	for _, a := range appts {
		id := a.ID
		body := fmt.Sprintf("Hi 👍 Reminder for your appointment tomorrow at %s.\nReply 1 to confirm or 2 to reschedule.",
			a.Slot.StartTime.In(d.loc).Format("3:04 PM"))

		o, err := d.deliver(ctx, NormalizePhone(a.PatientPhone), body, &id, zap.String("appointment_id", id.String()),
			func(ctx context.Context) error {
				if err := d.appointments.MarkReminded(ctx, id); err != nil {
					return fmt.Errorf("mark reminded %s: %w", id, err)
				}
				return nil
			})
		if err != nil {
			return res, err
		}
		d.metrics.ObserveReminder(kindDayBefore, outcomeLabels[o])
		res.add(o)
	}
	return res, nil
}

func (d *Dispatcher) sendScheduled(ctx context.Context) (Result, error) {
	var res Result

	due, err := d.reminders.Due(ctx, d.now(), dueBatchSize)
	if err != nil {
		return res, err
	}

	for _, r := range due {
		id := r.ID
		o, err := d.deliver(ctx, NormalizePhone(r.Phone),
			"Hi 👍 Reminder for your demo appointment. Reply 1 to confirm or 2 to reschedule.",
			nil, zap.String("reminder_id", id.String()),
			func(ctx context.Context) error {
				if err := d.reminders.MarkSent(ctx, id); err != nil && !errors.Is(err, ErrReminderNotFound) {
					return err
				}
				return nil
			})
		if err != nil {
			return res, err
		}
		d.metrics.ObserveReminder(kindScheduled, outcomeLabels[o])
		res.add(o)
	}
	return res, nil
}

// deliver sends one reminder while holding the phone's conversation lock,
// marks it done and arms the session to read the reply. A phone that is busy
// or partway through a booking is deferred untouched.
func (d *Dispatcher) deliver(ctx context.Context, phone, body string, appointmentID *uuid.UUID, ref zap.Field, markDone func(context.Context) error) (outcome, error) {
	result := outcomeSent

	run := func(ctx context.Context) error {
		cur, err := d.sessions.Get(ctx, phone)
		switch {
		case errors.Is(err, session.ErrNotFound):
		case err != nil:
			d.logger.Warn("reading session before reminder", ref, zap.String("phone", phone), zap.Error(err))
			result = outcomeDeferred
			return nil
		case session.InBookingFlow(cur.Step):
			d.logger.Info("phone is mid-booking, deferring reminder", ref, zap.String("phone", phone),
				zap.String("state", string(cur.Step.State())))
			result = outcomeDeferred
			return nil
		}

		if err := d.sender.SendText(ctx, phone, body); err != nil {
			d.logger.Warn("reminder send failed", ref, zap.String("phone", phone), zap.Error(err))
			result = outcomeFailed
			return nil
		}
		if err := markDone(ctx); err != nil {
			return err
		}
		return d.armReply(ctx, phone, cur, appointmentID)
	}

	if d.locker == nil {
		return result, run(ctx)
	}
	err := d.locker.WithLockWait(ctx, redisclient.PhoneKey(phone), d.lockWait, run)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		d.logger.Info("phone is busy, deferring reminder", ref, zap.String("phone", phone))
		return outcomeDeferred, nil
	}
	return result, err
}

// armReply moves the phone's session into REMINDER_REPLY, keeping its
// language. An existing session is updated at its current version.
func (d *Dispatcher) armReply(ctx context.Context, phone string, cur *session.Session, appointmentID *uuid.UUID) error {
	s := &session.Session{Phone: phone, Language: session.LanguageEnglish}
	if cur != nil {
		s = cur
	}
	s.Step = session.ReminderReply{AppointmentID: appointmentID}
	if err := d.sessions.Put(ctx, s); err != nil {
		return fmt.Errorf("arm reminder reply for %s: %w", phone, err)
	}
	return nil
}

// NormalizePhone keeps digits only and drops a single leading 0.
func NormalizePhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	return strings.TrimPrefix(digits, "0")
}
