// Package dialogue runs the per-phone booking conversation.
//
// Every inbound message goes through the same fixed order: open support
// ticket routing, reset keywords, new-session bootstrap, the doctor-name
// shortcut, and finally the handler for the session's current state. A turn
// is persisted before any reply is sent.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
	"github.com/hackgods/whatsapp-hospital-bot/internal/knowledge"
	"github.com/hackgods/whatsapp-hospital-bot/internal/matcher"
	"github.com/hackgods/whatsapp-hospital-bot/internal/messaging"
	"github.com/hackgods/whatsapp-hospital-bot/internal/observability/metrics"
	redisclient "github.com/hackgods/whatsapp-hospital-bot/internal/redis"
	"github.com/hackgods/whatsapp-hospital-bot/internal/session"
	"github.com/hackgods/whatsapp-hospital-bot/internal/slots"
	"github.com/hackgods/whatsapp-hospital-bot/internal/support"
	"github.com/hackgods/whatsapp-hospital-bot/internal/timeparse"
)

// ErrBusy means another message from the same phone held the lock for longer
// than the configured wait.
var ErrBusy = errors.New("dialogue: phone is busy with another message")

// shortcutMinLen is the shortest text scanned for a doctor name outside the
// booking menus.
const shortcutMinLen = 4

// Appointments is the booking surface the engine needs.
type Appointments interface {
	Book(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*appointment.Slot, error)
	ListOpenSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.Slot, error)
	ListDoctorsWithOpenSlots(ctx context.Context, from, to time.Time) ([]appointment.Doctor, error)
}

// Catalog serves the active doctor and department lists.
type Catalog interface {
	Doctors(ctx context.Context) ([]appointment.Doctor, error)
	Departments(ctx context.Context) ([]appointment.Department, error)
	DoctorsInDepartment(ctx context.Context, dept string) ([]appointment.Doctor, error)
}

// Tickets is the escalation surface.
type Tickets interface {
	ActiveTicket(ctx context.Context, phone string) (*support.Ticket, error)
	Open(ctx context.Context, phone, query string) (*support.Ticket, error)
	AppendUser(ctx context.Context, ticketID uuid.UUID, body string) error
	Resolve(ctx context.Context, ticketID uuid.UUID) error
}

type Options struct {
	Location         *time.Location
	HospitalName     string
	HospitalContact  string
	HospitalLocation string
	PhoneLockWait    time.Duration
	Logger           *zap.Logger
	Metrics          *metrics.BotMetrics
	Now              func() time.Time
}

type Engine struct {
	appts    Appointments
	catalog  Catalog
	tickets  Tickets
	answerer knowledge.Answerer
	sessions session.Store
	sender   messaging.Sender
	locker   redisclient.Locker

	resolver *slots.Resolver
	parser   *timeparse.Parser

	loc      *time.Location
	hospital string
	contact  string
	address  string
	lockWait time.Duration
	logger   *zap.Logger
	metrics  *metrics.BotMetrics
	now      func() time.Time
}

type Deps struct {
	Appointments Appointments
	Catalog      Catalog
	Tickets      Tickets
	Answerer     knowledge.Answerer
	Sessions     session.Store
	Sender       messaging.Sender
	Locker       redisclient.Locker
}

func New(deps Deps, opts Options) *Engine {
	e := &Engine{
		appts:    deps.Appointments,
		catalog:  deps.Catalog,
		tickets:  deps.Tickets,
		answerer: deps.Answerer,
		sessions: deps.Sessions,
		sender:   deps.Sender,
		locker:   deps.Locker,
		parser:   timeparse.New(),
		loc:      opts.Location,
		hospital: opts.HospitalName,
		contact:  opts.HospitalContact,
		address:  opts.HospitalLocation,
		lockWait: opts.PhoneLockWait,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.hospital == "" {
		e.hospital = "ABC Hospital"
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.lockWait <= 0 {
		e.lockWait = 3 * time.Second
	}
	e.resolver = slots.NewResolver(deps.Appointments, e.loc).WithClock(e.now)
	return e
}

// Handle processes one inbound message while holding the phone's lock.
func (e *Engine) Handle(ctx context.Context, in messaging.Inbound) error {
	if strings.TrimSpace(in.From) == "" {
		return fmt.Errorf("dialogue: inbound message without sender")
	}

	err := e.locker.WithLockWait(ctx, redisclient.PhoneKey(in.From), e.lockWait, func(ctx context.Context) error {
		return e.handle(ctx, in)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrBusy
	}
	return err
}

func (e *Engine) handle(ctx context.Context, in messaging.Inbound) error {
	start := e.now()
	log := e.logger.With(zap.String("phone", in.From), zap.String("message_id", in.MessageID))
	text := strings.TrimSpace(in.Body())

	handled, err := e.routeToTicket(ctx, in, text)
	if err != nil || handled {
		return err
	}

	if isResetKeyword(text) {
		if err := e.sessions.Delete(ctx, in.From); err != nil {
			return err
		}
		log.Debug("session reset")
		return e.bootstrap(ctx, in.From)
	}

	sess, err := e.sessions.Get(ctx, in.From)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return e.bootstrap(ctx, in.From)
	case errors.Is(err, session.ErrUnknownState), errors.Is(err, session.ErrCorruptStep):
		log.Warn("discarding unreadable session", zap.Error(err))
		if err := e.sessions.Delete(ctx, in.From); err != nil {
			return err
		}
		return e.bootstrap(ctx, in.From)
	case err != nil:
		return err
	}

	from := sess.Step.State()
	t := newTurn(sess)

	if err := e.dispatch(ctx, t, in, text); err != nil {
		return err
	}
	if err := e.commit(ctx, t); err != nil {
		return err
	}

	to := from
	if t.clear {
		to = session.StateLanguageSelection
	} else if t.next != nil {
		to = t.next.State()
	}
	e.metrics.ObserveTransition(string(from), string(to))
	e.metrics.ObserveTurnLatency(string(from), e.now().Sub(start).Seconds())
	log.Debug("turn complete", zap.String("state", string(from)), zap.String("next", string(to)))

	return t.flush(ctx, e.sender, in.From)
}

// routeToTicket appends the message to the phone's open ticket. Tapping
// Book Appointment closes the ticket and starts booking from scratch.
func (e *Engine) routeToTicket(ctx context.Context, in messaging.Inbound, text string) (bool, error) {
	ticket, err := e.tickets.ActiveTicket(ctx, in.From)
	if errors.Is(err, support.ErrTicketNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load active ticket: %w", err)
	}

	if !isBookAction(in, text) {
		return true, e.tickets.AppendUser(ctx, ticket.ID, text)
	}

	if err := e.tickets.Resolve(ctx, ticket.ID); err != nil && !errors.Is(err, support.ErrTicketNotFound) {
		return true, err
	}
	if err := e.sessions.Delete(ctx, in.From); err != nil {
		return true, err
	}

	t := newTurn(&session.Session{Phone: in.From, Step: session.Chat{}, Language: session.LanguageEnglish})
	t.goTo(session.Chat{})
	if err := e.startBooking(ctx, t); err != nil {
		return true, err
	}
	if err := e.commit(ctx, t); err != nil {
		return true, err
	}
	return true, t.flush(ctx, e.sender, in.From)
}

// bootstrap starts a fresh session at language selection.
func (e *Engine) bootstrap(ctx context.Context, phone string) error {
	t := newTurn(&session.Session{Phone: phone, Language: session.LanguageEnglish})
	t.goTo(session.LanguageSelection{})
	t.buttons(msgChooseLanguage, messaging.Buttons(langEnglish, langMalayalam))
	if err := e.commit(ctx, t); err != nil {
		return err
	}
	e.metrics.ObserveTransition("", string(session.StateLanguageSelection))
	return t.flush(ctx, e.sender, phone)
}

func (e *Engine) dispatch(ctx context.Context, t *turn, in messaging.Inbound, text string) error {
	if e.shortcutApplies(t.sess.Step, in, text) {
		doctors, err := e.catalog.Doctors(ctx)
		if err != nil {
			return err
		}
		if doc, ok := matcher.FindMentionedDoctor(text, doctors); ok {
			prefilled := ""
			if shown, ok := t.sess.Step.(session.AvailabilityShown); ok {
				prefilled = shown.Date
			}
			return e.selectDoctor(ctx, t, doc, in, text, prefilled)
		}
	}

	switch step := t.sess.Step.(type) {
	case session.LanguageSelection:
		return e.handleLanguage(t, text)
	case session.Chat:
		return e.handleChat(ctx, t, in, text)
	case session.AvailabilityShown:
		return e.handleAvailabilityShown(ctx, t, in, text, step)
	case session.DepartmentSelection:
		return e.handleDepartment(ctx, t, in, text)
	case session.DoctorSelection:
		return e.handleDoctor(ctx, t, in, text, step)
	case session.DateSelection:
		return e.handleDate(ctx, t, in, text, step)
	case session.TimeOfDay:
		return e.handleTimeOfDay(ctx, t, in, text, step)
	case session.TimeSelection:
		return e.handleSlotChoice(ctx, t, in, text, step.Doctor, step.Slots)
	case session.AlternativeSelection:
		return e.handleSlotChoice(ctx, t, in, text, step.Doctor, step.Slots)
	case session.CollectName:
		return e.handleName(t, in, text, step)
	case session.CollectAge:
		return e.handleAge(t, in, text, step)
	case session.ConfirmBooking:
		return e.handleConfirm(ctx, t, in, text, step)
	case session.ReminderReply:
		return e.handleReminderReply(ctx, t, text, step)
	default:
		return fmt.Errorf("dispatch %T: %w", step, session.ErrUnknownState)
	}
}

// shortcutApplies reports whether a typed message should be scanned for a
// doctor name. Name and age collection take raw text.
func (e *Engine) shortcutApplies(step session.Step, in messaging.Inbound, text string) bool {
	if in.IsInteractive() || utf8.RuneCountInString(text) < shortcutMinLen {
		return false
	}
	switch step.(type) {
	case session.CollectName, session.CollectAge:
		return false
	}
	return true
}

// commit persists the turn's outcome before anything is sent.
func (e *Engine) commit(ctx context.Context, t *turn) error {
	switch {
	case t.clear:
		return e.sessions.Delete(ctx, t.sess.Phone)
	case t.next != nil:
		t.sess.Step = t.next
		return e.sessions.Put(ctx, t.sess)
	}
	return nil
}

func (e *Engine) formatDay(t time.Time) string {
	return t.In(e.loc).Format("Mon, Jan 2")
}

func (e *Engine) formatClock(t time.Time) string {
	return t.In(e.loc).Format("3:04 PM")
}
