package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
	"github.com/hackgods/whatsapp-hospital-bot/internal/matcher"
	"github.com/hackgods/whatsapp-hospital-bot/internal/messaging"
	"github.com/hackgods/whatsapp-hospital-bot/internal/session"
	"github.com/hackgods/whatsapp-hospital-bot/internal/slots"
	"github.com/hackgods/whatsapp-hospital-bot/internal/timeparse"
)

const maxListed = messaging.MaxListRows

func (e *Engine) handleDepartment(ctx context.Context, t *turn, in messaging.Inbound, text string) error {
	departments, err := e.catalog.Departments(ctx)
	if err != nil {
		return err
	}

	var (
		dept  appointment.Department
		found bool
	)
	if id, ok := replyUUID(in, prefixDepartment); ok {
		dept, found = departmentByID(departments, id)
	} else {
		dept, found = matcher.FindMentionedDepartment(text, departments)
	}
	if !found {
		t.list(departmentList("Sorry, I couldn't find that department. "+msgChooseDepartment, departments))
		return nil
	}
	return e.selectDepartment(ctx, t, dept)
}

func (e *Engine) selectDepartmentByID(ctx context.Context, t *turn, id uuid.UUID) error {
	departments, err := e.catalog.Departments(ctx)
	if err != nil {
		return err
	}
	dept, ok := departmentByID(departments, id)
	if !ok {
		return e.startBooking(ctx, t)
	}
	return e.selectDepartment(ctx, t, dept)
}

// selectDepartment lists the department's doctors. A department with a
// single doctor goes straight to the morning/evening choice for that
// doctor's next open day.
func (e *Engine) selectDepartment(ctx context.Context, t *turn, dept appointment.Department) error {
	doctors, err := e.catalog.DoctorsInDepartment(ctx, dept.Name)
	if err != nil {
		return err
	}

	switch len(doctors) {
	case 0:
		departments, err := e.catalog.Departments(ctx)
		if err != nil {
			return err
		}
		t.goTo(session.DepartmentSelection{})
		t.list(departmentList(fmt.Sprintf("Sorry, no doctors are available in %s right now. %s", dept.Name, msgChooseDepartment), departments))
		return nil

	case 1:
		doc := doctors[0]
		next, err := e.resolver.FindNextAvailableSlot(ctx, doc.ID)
		if err != nil {
			return err
		}
		if next == nil {
			e.noSlots(t, doc.Name)
			return nil
		}
		day := timeparse.StartOfDay(next.StartTime.In(e.loc))
		t.goTo(session.TimeOfDay{Doctor: doctorRef(doc), Date: day.Format(time.DateOnly)})
		t.buttons(fmt.Sprintf("%s (%s) is available on %s.\n%s", doc.Name, dept.Name, e.formatDay(day), msgMorningOrEvening), timeOfDayButtons())
		return nil
	}

	ids := make([]uuid.UUID, 0, len(doctors))
	for _, d := range doctors {
		ids = append(ids, d.ID)
	}
	t.goTo(session.DoctorSelection{Department: dept.Name, DoctorIDs: ids})
	t.list(doctorList(msgChooseDoctor, doctors))
	return nil
}

func (e *Engine) handleDoctor(ctx context.Context, t *turn, in messaging.Inbound, text string, step session.DoctorSelection) error {
	doctors, err := e.catalog.Doctors(ctx)
	if err != nil {
		return err
	}

	if id, ok := replyUUID(in, prefixDoctor); ok {
		if doc, found := doctorByID(doctors, id); found {
			return e.selectDoctor(ctx, t, doc, in, text, "")
		}
	}

	offered := make([]appointment.Doctor, 0, len(step.DoctorIDs))
	for _, id := range step.DoctorIDs {
		if doc, ok := doctorByID(doctors, id); ok {
			offered = append(offered, doc)
		}
	}
	if doc, ok := matcher.FindMentionedDoctor(text, offered); ok && !in.IsInteractive() {
		return e.selectDoctor(ctx, t, doc, in, text, "")
	}

	if len(offered) == 0 {
		return e.startBooking(ctx, t)
	}
	t.list(doctorList("Sorry, I couldn't find that doctor. "+msgChooseDoctor, offered))
	return nil
}

func (e *Engine) selectDoctorByID(ctx context.Context, t *turn, in messaging.Inbound, id uuid.UUID, prefilled string) error {
	doctors, err := e.catalog.Doctors(ctx)
	if err != nil {
		return err
	}
	doc, ok := doctorByID(doctors, id)
	if !ok {
		t.say("Sorry, that doctor is not taking appointments right now.")
		return e.startBooking(ctx, t)
	}
	return e.selectDoctor(ctx, t, doc, in, in.Body(), prefilled)
}

// selectDoctor is shared by list selection and the doctor-name shortcut. It
// uses whatever the message says about time to skip as many menus as it can.
func (e *Engine) selectDoctor(ctx context.Context, t *turn, doc appointment.Doctor, in messaging.Inbound, text, prefilled string) error {
	ref := doctorRef(doc)

	next, err := e.resolver.FindNextAvailableSlot(ctx, doc.ID)
	if err != nil {
		return err
	}
	if next == nil {
		e.noSlots(t, doc.Name)
		return nil
	}

	var (
		parsed  timeparse.Result
		hasTime bool
	)
	if !in.IsInteractive() && timeparse.ContainsTimeRequest(text) {
		parsed, hasTime = e.parser.Parse(text, e.now().In(e.loc))
	}

	intro := ""
	switch {
	case !hasTime && prefilled != "":
		if day, err := time.ParseInLocation(time.DateOnly, prefilled, e.loc); err == nil {
			open, err := e.resolver.SlotsOnDay(ctx, doc.ID, day)
			if err != nil {
				return err
			}
			if len(open) > 0 {
				e.presentTimes(t, ref, day, open)
				return nil
			}
			intro = fmt.Sprintf("%s has no free slots left on %s.", doc.Name, e.formatDay(day))
		}

	case hasTime && !parsed.IsTimeCertain:
		open, err := e.resolver.SlotsOnDay(ctx, doc.ID, parsed.Instant)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			e.presentTimes(t, ref, parsed.Instant, open)
			return nil
		}
		intro = fmt.Sprintf("%s has no free slots on %s.", doc.Name, e.formatDay(parsed.Instant))

	case hasTime:
		matches, err := e.resolver.FindBestSlots(ctx, doc.ID, parsed.Instant, slots.DefaultMaxAlternatives)
		if err != nil {
			return err
		}
		if len(matches) > 0 && matches[0].Type == slots.MatchExact {
			chosen := offeredSlot(matches[0].Slot, matches[0].Type)
			t.goTo(session.CollectName{Doctor: ref, Slot: chosen})
			t.say(fmt.Sprintf("✅ %s with %s is available.\n%s", timeparse.FormatAppointmentTime(chosen.Start, e.loc), doc.Name, msgAskName))
			return nil
		}
		if len(matches) > 0 {
			offered := make([]session.OfferedSlot, 0, len(matches))
			rows := make([]messaging.ListRow, 0, len(matches))
			for _, m := range matches {
				offered = append(offered, offeredSlot(m.Slot, m.Type))
				rows = append(rows, messaging.ListRow{
					ID:          prefixSlot + m.Slot.ID.String(),
					Title:       timeparse.FormatAppointmentTime(m.Slot.StartTime, e.loc),
					Description: m.Reason,
				})
			}
			t.goTo(session.AlternativeSelection{Doctor: ref, Slots: offered})
			t.list(messaging.List{
				Body: fmt.Sprintf("%s is not available at %s. Here are the closest options 👇\n\n%s",
					doc.Name, timeparse.FormatAppointmentTime(parsed.Instant, e.loc), slots.FormatSlotMatches(matches, e.loc)),
				ButtonLabel: "Select Time",
				Sections:    []messaging.ListSection{{Title: "Closest Slots", Rows: rows}},
			})
			return nil
		}
	}

	return e.offerDates(ctx, t, ref, intro)
}

// offerDates lists the doctor's upcoming open days.
func (e *Engine) offerDates(ctx context.Context, t *turn, ref session.DoctorRef, intro string) error {
	dates, err := e.resolver.UpcomingDates(ctx, ref.ID)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		e.noSlots(t, ref.Name)
		return nil
	}
	if len(dates) > maxListed {
		dates = dates[:maxListed]
	}

	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, d.Format(time.DateOnly))
	}

	body := fmt.Sprintf("%s is available on these dates. %s", ref.Name, msgChooseDate)
	if intro != "" {
		body = intro + "\n\n" + body
	}
	t.goTo(session.DateSelection{Doctor: ref, Dates: keys})
	t.list(e.dateList(body, keys))
	return nil
}

func (e *Engine) handleDate(ctx context.Context, t *turn, in messaging.Inbound, text string, step session.DateSelection) error {
	chosen := ""
	switch {
	case strings.HasPrefix(in.ReplyID, prefixDate):
		chosen = strings.TrimSpace(strings.TrimPrefix(in.ReplyID, prefixDate))
	case digitsRe.MatchString(clean(text)):
		if n, err := strconv.Atoi(clean(text)); err == nil && n >= 1 && n <= len(step.Dates) {
			chosen = step.Dates[n-1]
		}
	default:
		if r, ok := e.parser.Parse(text, e.now().In(e.loc)); ok {
			chosen = r.Instant.In(e.loc).Format(time.DateOnly)
		}
	}

	if !containsString(step.Dates, chosen) {
		t.list(e.dateList("Please pick one of these dates 👇", step.Dates))
		return nil
	}

	day, err := time.ParseInLocation(time.DateOnly, chosen, e.loc)
	if err != nil {
		return e.offerDates(ctx, t, step.Doctor, "")
	}
	t.goTo(session.TimeOfDay{Doctor: step.Doctor, Date: chosen})
	t.buttons(fmt.Sprintf("%s on %s.\n%s", step.Doctor.Name, e.formatDay(day), msgMorningOrEvening), timeOfDayButtons())
	return nil
}

func (e *Engine) handleTimeOfDay(ctx context.Context, t *turn, in messaging.Inbound, text string, step session.TimeOfDay) error {
	var morning, evening bool
	switch in.ReplyID {
	case idMorning:
		morning = true
	case idEvening:
		evening = true
	default:
		morning = morningRe.MatchString(text)
		evening = !morning && eveningRe.MatchString(text)
	}
	if !morning && !evening {
		t.buttons(msgMorningOrEvening, timeOfDayButtons())
		return nil
	}

	day, err := time.ParseInLocation(time.DateOnly, step.Date, e.loc)
	if err != nil {
		return e.offerDates(ctx, t, step.Doctor, "")
	}
	open, err := e.resolver.SlotsOnDay(ctx, step.Doctor.ID, day)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return e.offerDates(ctx, t, step.Doctor, fmt.Sprintf("Sorry, %s has no free slots left on %s.", step.Doctor.Name, e.formatDay(day)))
	}

	filtered := make([]appointment.Slot, 0, len(open))
	for _, s := range open {
		if (s.StartTime.In(e.loc).Hour() < 12) == morning {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		label := "evening"
		if morning {
			label = "morning"
		}
		t.buttons(fmt.Sprintf("No %s slots are left on %s. Please choose the other time of day.", label, e.formatDay(day)), timeOfDayButtons())
		return nil
	}

	e.presentTimes(t, step.Doctor, day, filtered)
	return nil
}

func (e *Engine) presentTimes(t *turn, ref session.DoctorRef, day time.Time, open []appointment.Slot) {
	if len(open) > maxListed {
		open = open[:maxListed]
	}
	offered := make([]session.OfferedSlot, 0, len(open))
	for _, s := range open {
		offered = append(offered, offeredSlot(s, ""))
	}
	t.goTo(session.TimeSelection{Doctor: ref, Slots: offered})
	t.list(e.slotList(fmt.Sprintf("Available times for %s on %s 👇", ref.Name, e.formatDay(day)), offered))
}

// handleSlotChoice resolves a pick from the offered times by row id, list
// position or a typed time, and re-checks the slot is still open.
func (e *Engine) handleSlotChoice(ctx context.Context, t *turn, in messaging.Inbound, text string, ref session.DoctorRef, offered []session.OfferedSlot) error {
	chosen, ok := e.pickOffered(in, text, offered)
	if !ok {
		t.list(e.slotList("Please choose one of these times 👇", offered))
		return nil
	}

	live, err := e.appts.GetSlot(ctx, chosen.ID)
	if err != nil && !errors.Is(err, appointment.ErrSlotNotFound) {
		return err
	}
	if live == nil || live.IsBooked || !live.StartTime.After(e.now()) {
		return e.offerDates(ctx, t, ref, "Sorry, that slot was just taken.")
	}

	t.goTo(session.CollectName{Doctor: ref, Slot: chosen})
	t.say(fmt.Sprintf("You picked %s with %s.\n%s", timeparse.FormatAppointmentTime(chosen.Start, e.loc), ref.Name, msgAskName))
	return nil
}

func (e *Engine) pickOffered(in messaging.Inbound, text string, offered []session.OfferedSlot) (session.OfferedSlot, bool) {
	if id, ok := replyUUID(in, prefixSlot); ok {
		for _, s := range offered {
			if s.ID == id {
				return s, true
			}
		}
		return session.OfferedSlot{}, false
	}
	if in.IsInteractive() {
		return session.OfferedSlot{}, false
	}

	if c := clean(text); digitsRe.MatchString(c) {
		if n, err := strconv.Atoi(c); err == nil && n >= 1 && n <= len(offered) {
			return offered[n-1], true
		}
	}

	r, ok := e.parser.Parse(text, e.now().In(e.loc))
	if !ok || !r.IsTimeCertain {
		return session.OfferedSlot{}, false
	}
	for _, s := range offered {
		if s.Start.Sub(r.Instant).Abs() <= slots.ExactWindow {
			return s, true
		}
	}
	// a bare clock time rolls to tomorrow once it has passed; match on clock alone
	want := r.Instant.In(e.loc).Format("15:04")
	for _, s := range offered {
		if s.Start.In(e.loc).Format("15:04") == want {
			return s, true
		}
	}
	return session.OfferedSlot{}, false
}

func (e *Engine) handleName(t *turn, in messaging.Inbound, text string, step session.CollectName) error {
	if in.IsInteractive() || utf8.RuneCountInString(text) < 2 {
		t.say(msgNameTooShort)
		return nil
	}
	t.goTo(session.CollectAge{Doctor: step.Doctor, Slot: step.Slot, PatientName: text})
	t.say(fmt.Sprintf("Got it. What is %s's age?", text))
	return nil
}

func (e *Engine) handleAge(t *turn, in messaging.Inbound, text string, step session.CollectAge) error {
	if in.IsInteractive() {
		t.say(msgAgeNotTyped)
		return nil
	}
	if !digitsRe.MatchString(text) {
		t.say(msgAgeInvalid)
		return nil
	}
	age, err := strconv.Atoi(text)
	if err != nil || age < 1 || age > 99 {
		t.say(msgAgeInvalid)
		return nil
	}

	next := session.ConfirmBooking{Doctor: step.Doctor, Slot: step.Slot, PatientName: step.PatientName, PatientAge: age}
	t.goTo(next)
	t.buttons(e.summary(next), confirmButtons())
	return nil
}

// handleConfirm commits the booking. The session is deleted on success, so
// a repeated confirmation finds no session and cannot book twice.
func (e *Engine) handleConfirm(ctx context.Context, t *turn, in messaging.Inbound, text string, step session.ConfirmBooking) error {
	c := clean(text)
	switch {
	case in.ReplyID == idCancel || cancelRe.MatchString(c):
		t.end()
		t.say(msgBookingCancelled)
		return nil

	case in.ReplyID == idConfirm || confirmRe.MatchString(c):
		_, err := e.appts.Book(ctx, appointment.BookingRequest{
			DoctorID:       step.Doctor.ID,
			AvailabilityID: step.Slot.ID,
			PatientName:    step.PatientName,
			PatientAge:     step.PatientAge,
			PatientPhone:   t.sess.Phone,
		})
		switch {
		case errors.Is(err, appointment.ErrSlotAlreadyBooked), errors.Is(err, appointment.ErrSlotBeingBooked):
			e.metrics.ObserveBooking("conflict")
			return e.offerDates(ctx, t, step.Doctor, msgSlotTaken)
		case err != nil:
			e.metrics.ObserveBooking("error")
			return err
		}
		e.metrics.ObserveBooking("booked")
		t.end()
		t.say(fmt.Sprintf("✅ Appointment Confirmed!\n\nDoctor: %s\nDate: %s\nTime: %s\nPatient: %s\n\nOur team will contact you shortly.",
			step.Doctor.Name, e.formatDay(step.Slot.Start), e.formatClock(step.Slot.Start), step.PatientName))
		return nil
	}

	t.buttons(e.summary(step), confirmButtons())
	return nil
}

func (e *Engine) summary(step session.ConfirmBooking) string {
	return fmt.Sprintf("Please confirm your appointment 👇\n\nDoctor: %s\nDate: %s\nTime: %s\nPatient: %s\nAge: %d",
		step.Doctor.Name, e.formatDay(step.Slot.Start), e.formatClock(step.Slot.Start), step.PatientName, step.PatientAge)
}

func (e *Engine) noSlots(t *turn, doctorName string) {
	t.goTo(session.Chat{})
	t.say(fmt.Sprintf("Sorry, %s has no available slots at the moment. Please try another doctor or check back later.", doctorName))
}

func (e *Engine) dateList(body string, dates []string) messaging.List {
	rows := make([]messaging.ListRow, 0, len(dates))
	for _, key := range dates {
		title := key
		if d, err := time.ParseInLocation(time.DateOnly, key, e.loc); err == nil {
			title = e.formatDay(d)
		}
		rows = append(rows, messaging.ListRow{ID: prefixDate + key, Title: title})
	}
	return messaging.List{
		Body:        body,
		ButtonLabel: "Select Date",
		Sections:    []messaging.ListSection{{Title: "Available Dates", Rows: rows}},
	}
}

func (e *Engine) slotList(body string, offered []session.OfferedSlot) messaging.List {
	rows := make([]messaging.ListRow, 0, len(offered))
	for _, s := range offered {
		rows = append(rows, messaging.ListRow{
			ID:          prefixSlot + s.ID.String(),
			Title:       e.formatClock(s.Start),
			Description: e.formatDay(s.Start),
		})
	}
	return messaging.List{
		Body:        body,
		ButtonLabel: "Select Time",
		Sections:    []messaging.ListSection{{Title: "Time Slots", Rows: rows}},
	}
}

func timeOfDayButtons() []messaging.Button {
	return []messaging.Button{{ID: idMorning, Title: labelMorning}, {ID: idEvening, Title: labelEvening}}
}

func confirmButtons() []messaging.Button {
	return []messaging.Button{{ID: idConfirm, Title: actionConfirm}, {ID: idCancel, Title: actionCancel}}
}

func doctorRef(d appointment.Doctor) session.DoctorRef {
	return session.DoctorRef{ID: d.ID, Name: d.Name}
}

func offeredSlot(s appointment.Slot, mt slots.MatchType) session.OfferedSlot {
	return session.OfferedSlot{ID: s.ID, Start: s.StartTime, MatchType: string(mt)}
}

// replyUUID extracts the id from an interactive reply like doc_<uuid>.
func replyUUID(in messaging.Inbound, prefix string) (uuid.UUID, bool) {
	if !strings.HasPrefix(in.ReplyID, prefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(strings.TrimPrefix(in.ReplyID, prefix)))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func departmentByID(departments []appointment.Department, id uuid.UUID) (appointment.Department, bool) {
	for _, d := range departments {
		if d.ID == id {
			return d, true
		}
	}
	return appointment.Department{}, false
}

func doctorByID(doctors []appointment.Doctor, id uuid.UUID) (appointment.Doctor, bool) {
	for _, d := range doctors {
		if d.ID == id {
			return d, true
		}
	}
	return appointment.Doctor{}, false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
