package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
	"github.com/hackgods/whatsapp-hospital-bot/internal/knowledge"
	"github.com/hackgods/whatsapp-hospital-bot/internal/matcher"
	"github.com/hackgods/whatsapp-hospital-bot/internal/messaging"
	"github.com/hackgods/whatsapp-hospital-bot/internal/session"
	"github.com/hackgods/whatsapp-hospital-bot/internal/timeparse"
)

func (e *Engine) handleLanguage(t *turn, text string) error {
	lang := session.LanguageEnglish
	if text == langMalayalam || strings.Contains(clean(text), "malayalam") {
		lang = session.LanguageMalayalam
	}
	t.sess.Language = lang
	t.goTo(session.Chat{})
	t.buttons(welcome(lang, e.hospital), mainMenu())
	return nil
}

// handleChat is the free-text loop: menu actions, greetings, day
// availability, booking intent, and everything else goes to the knowledge
// answerer.
func (e *Engine) handleChat(ctx context.Context, t *turn, in messaging.Inbound, text string) error {
	lower := clean(text)

	if id, ok := replyUUID(in, prefixDoctor); ok {
		return e.selectDoctorByID(ctx, t, in, id, "")
	}
	if id, ok := replyUUID(in, prefixDepartment); ok {
		return e.selectDepartmentByID(ctx, t, id)
	}

	switch {
	case isBookAction(in, text):
		return e.startBooking(ctx, t)
	case in.ReplyID == idMenuContact || lower == strings.ToLower(menuContact):
		t.say(e.contactText())
		return nil
	case in.ReplyID == idMenuLocation || lower == strings.ToLower(menuLocation):
		t.say(e.locationText())
		return nil
	case greetingRe.MatchString(lower):
		t.buttons(msgGreeting, mainMenu())
		return nil
	case availabilityRe.MatchString(text) && relativeDayRe.MatchString(text):
		return e.showAvailability(ctx, t, text)
	case bookingIntentRe.MatchString(text):
		return e.routeBookingIntent(ctx, t, text)
	}

	return e.askKnowledge(ctx, t, text)
}

// handleAvailabilityShown lets the patient pick one of the doctors listed for
// a day. Anything else is treated as a fresh chat message.
func (e *Engine) handleAvailabilityShown(ctx context.Context, t *turn, in messaging.Inbound, text string, step session.AvailabilityShown) error {
	if id, ok := replyUUID(in, prefixDoctor); ok {
		return e.selectDoctorByID(ctx, t, in, id, step.Date)
	}
	t.goTo(session.Chat{})
	return e.handleChat(ctx, t, in, text)
}

func (e *Engine) startBooking(ctx context.Context, t *turn) error {
	departments, err := e.catalog.Departments(ctx)
	if err != nil {
		return err
	}
	if len(departments) == 0 {
		t.goTo(session.Chat{})
		t.say("Sorry, online booking is not available right now. " + e.contactText())
		return nil
	}
	t.goTo(session.DepartmentSelection{})
	t.list(departmentList(msgChooseDepartment, departments))
	return nil
}

// routeBookingIntent skips ahead when the message already names a department.
func (e *Engine) routeBookingIntent(ctx context.Context, t *turn, text string) error {
	departments, err := e.catalog.Departments(ctx)
	if err != nil {
		return err
	}
	if dept, ok := matcher.FindMentionedDepartment(text, departments); ok {
		return e.selectDepartment(ctx, t, dept)
	}
	return e.startBooking(ctx, t)
}

func (e *Engine) showAvailability(ctx context.Context, t *turn, text string) error {
	day, ok := timeparse.ParseRelative(text, e.now().In(e.loc))
	if !ok {
		return e.askKnowledge(ctx, t, text)
	}
	day = timeparse.StartOfDay(day)

	doctors, err := e.appts.ListDoctorsWithOpenSlots(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	if len(doctors) == 0 {
		t.goTo(session.Chat{})
		t.buttons(fmt.Sprintf("Sorry, no doctors have free slots on %s.", e.formatDay(day)), mainMenu())
		return nil
	}

	t.goTo(session.AvailabilityShown{Date: day.Format(time.DateOnly)})
	t.list(doctorList(fmt.Sprintf("Doctors available on %s 👇", e.formatDay(day)), doctors))
	return nil
}

// askKnowledge relays the answerer's reply. Either sentinel opens a support
// ticket; an answerer failure degrades to an apology.
func (e *Engine) askKnowledge(ctx context.Context, t *turn, text string) error {
	if e.answerer == nil {
		t.say(msgTroubleConnecting)
		return nil
	}

	answer, err := e.answerer.Answer(ctx, text, string(t.sess.Language))
	if err != nil {
		e.logger.Warn("knowledge answer failed", zap.String("phone", t.sess.Phone), zap.Error(err))
		t.say(msgTroubleConnecting)
		return nil
	}

	if answer == knowledge.UnknownQuery || answer == knowledge.HumanHandoff {
		if _, err := e.tickets.Open(ctx, t.sess.Phone, text); err != nil {
			return fmt.Errorf("open support ticket: %w", err)
		}
		t.say(msgHandoff)
		return nil
	}

	if suggestsBooking.MatchString(text) {
		t.buttons(answer, []messaging.Button{{ID: idMenuBook, Title: menuBook}})
		return nil
	}
	t.say(answer)
	return nil
}

// handleReminderReply reads the answer to a reminder: 1 keeps the
// appointment, 2 cancels it and frees the slot.
func (e *Engine) handleReminderReply(ctx context.Context, t *turn, text string, step session.ReminderReply) error {
	switch clean(text) {
	case "1":
		t.goTo(session.Chat{})
		t.say(msgReminderConfirmed)
		return nil
	case "2":
		msg := msgReminderNothingToCancel
		if step.AppointmentID != nil {
			_, err := e.appts.Cancel(ctx, *step.AppointmentID)
			switch {
			case err == nil:
				e.metrics.ObserveBooking("cancelled")
				msg = msgReminderCancelled
			case errors.Is(err, appointment.ErrAppointmentNotFound), errors.Is(err, appointment.ErrInvalidStatusTransition):
			default:
				return err
			}
		}
		t.goTo(session.Chat{})
		t.buttons(msg, []messaging.Button{{ID: idMenuBook, Title: menuBook}})
		return nil
	}
	t.say(msgReminderPrompt)
	return nil
}

func (e *Engine) contactText() string {
	if e.contact == "" {
		return "Please call the hospital reception."
	}
	return "You can reach " + e.hospital + " at " + e.contact
}

func (e *Engine) locationText() string {
	if e.address == "" {
		return e.hospital
	}
	return e.hospital + "\n" + e.address
}

func departmentList(body string, departments []appointment.Department) messaging.List {
	rows := make([]messaging.ListRow, 0, len(departments))
	for _, d := range departments {
		title := d.Name
		if d.Icon != "" {
			title = d.Icon + " " + d.Name
		}
		rows = append(rows, messaging.ListRow{ID: prefixDepartment + d.ID.String(), Title: title, Description: d.Description})
	}
	return messaging.List{
		Body:        body,
		ButtonLabel: "Select Department",
		Sections:    []messaging.ListSection{{Title: "Departments", Rows: rows}},
	}
}

func doctorList(body string, doctors []appointment.Doctor) messaging.List {
	rows := make([]messaging.ListRow, 0, len(doctors))
	for _, d := range doctors {
		rows = append(rows, messaging.ListRow{ID: prefixDoctor + d.ID.String(), Title: d.Name, Description: d.Department})
	}
	return messaging.List{
		Body:        body,
		ButtonLabel: "Select Doctor",
		Sections:    []messaging.ListSection{{Title: "Available Doctors", Rows: rows}},
	}
}
