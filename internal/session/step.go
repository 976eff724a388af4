// Package session holds the per-phone dialogue state.
//
// Each state has its own Step type carrying only the fields that state's
// handler reads. A session is persisted as its state tag plus the JSON
// encoding of exactly one Step.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateLanguageSelection    State = "LANGUAGE_SELECTION"
	StateChat                 State = "CHAT"
	StateAvailabilityShown    State = "AVAILABILITY_SHOWN"
	StateDepartmentSelection  State = "DEPARTMENT_SELECTION"
	StateDoctorSelection      State = "DOCTOR_SELECTION"
	StateDateSelection        State = "DATE_SELECTION"
	StateTimeOfDay            State = "TIME_OF_DAY"
	StateTimeSelection        State = "TIME_SELECTION"
	StateAlternativeSelection State = "ALTERNATIVE_SELECTION"
	StateCollectName          State = "COLLECT_NAME"
	StateCollectAge           State = "COLLECT_AGE"
	StateConfirmBooking       State = "CONFIRM_BOOKING"
	StateReminderReply        State = "REMINDER_REPLY"
)

type Language string

const (
	LanguageEnglish   Language = "english"
	LanguageMalayalam Language = "malayalam"
)

var (
	ErrUnknownState = errors.New("unknown session state")
	ErrCorruptStep  = errors.New("session payload does not match its state")
)

// Step is the state-specific payload of a session.
type Step interface {
	State() State
}

// DoctorRef identifies the doctor a booking flow is about.
type DoctorRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// OfferedSlot is a slot the patient was shown, in the order shown.
type OfferedSlot struct {
	ID        uuid.UUID `json:"id"`
	Start     time.Time `json:"start"`
	MatchType string    `json:"match_type,omitempty"`
}

type LanguageSelection struct{}

type Chat struct{}

// AvailabilityShown follows a "who is free tomorrow" answer; Date pre-fills
// the next doctor selection.
type AvailabilityShown struct {
	Date string `json:"date"`
}

type DepartmentSelection struct{}

type DoctorSelection struct {
	Department string      `json:"department"`
	DoctorIDs  []uuid.UUID `json:"doctor_ids"`
}

type DateSelection struct {
	Doctor DoctorRef `json:"doctor"`
	Dates  []string  `json:"dates"`
}

type TimeOfDay struct {
	Doctor DoctorRef `json:"doctor"`
	Date   string    `json:"date"`
}

type TimeSelection struct {
	Doctor DoctorRef     `json:"doctor"`
	Slots  []OfferedSlot `json:"slots"`
}

type AlternativeSelection struct {
	Doctor DoctorRef     `json:"doctor"`
	Slots  []OfferedSlot `json:"slots"`
}

type CollectName struct {
	Doctor DoctorRef   `json:"doctor"`
	Slot   OfferedSlot `json:"slot"`
}

type CollectAge struct {
	Doctor      DoctorRef   `json:"doctor"`
	Slot        OfferedSlot `json:"slot"`
	PatientName string      `json:"patient_name"`
}

type ConfirmBooking struct {
	Doctor      DoctorRef   `json:"doctor"`
	Slot        OfferedSlot `json:"slot"`
	PatientName string      `json:"patient_name"`
	PatientAge  int         `json:"patient_age"`
}

type ReminderReply struct {
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

func (LanguageSelection) State() State    { return StateLanguageSelection }
func (Chat) State() State                 { return StateChat }
func (AvailabilityShown) State() State    { return StateAvailabilityShown }
func (DepartmentSelection) State() State  { return StateDepartmentSelection }
func (DoctorSelection) State() State      { return StateDoctorSelection }
func (DateSelection) State() State        { return StateDateSelection }
func (TimeOfDay) State() State            { return StateTimeOfDay }
func (TimeSelection) State() State        { return StateTimeSelection }
func (AlternativeSelection) State() State { return StateAlternativeSelection }
func (CollectName) State() State          { return StateCollectName }
func (CollectAge) State() State           { return StateCollectAge }
func (ConfirmBooking) State() State       { return StateConfirmBooking }
func (ReminderReply) State() State        { return StateReminderReply }

// Session is one phone number's conversation. Version is zero until the
// session has been stored.
type Session struct {
	Phone     string
	Step      Step
	Language  Language
	Version   int
	UpdatedAt time.Time
}

// InBookingFlow reports whether step is partway through choosing or
// confirming an appointment.
func InBookingFlow(step Step) bool {
	switch step.(type) {
	case nil, LanguageSelection, Chat, ReminderReply:
		return false
	}
	return true
}

// Encode returns the state tag and JSON payload for step.
func Encode(step Step) (State, []byte, error) {
	if step == nil {
		return "", nil, fmt.Errorf("encode step: %w", ErrUnknownState)
	}
	data, err := json.Marshal(step)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", step.State(), err)
	}
	return step.State(), data, nil
}

// Decode rebuilds the Step for state from its JSON payload.
func Decode(state State, data []byte) (Step, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}

	switch state {
	case StateLanguageSelection:
		return LanguageSelection{}, nil
	case StateChat:
		return Chat{}, nil
	case StateDepartmentSelection:
		return DepartmentSelection{}, nil
	case StateAvailabilityShown:
		return decodeInto[AvailabilityShown](state, data)
	case StateDoctorSelection:
		return decodeInto[DoctorSelection](state, data)
	case StateDateSelection:
		return decodeInto[DateSelection](state, data)
	case StateTimeOfDay:
		return decodeInto[TimeOfDay](state, data)
	case StateTimeSelection:
		return decodeInto[TimeSelection](state, data)
	case StateAlternativeSelection:
		return decodeInto[AlternativeSelection](state, data)
	case StateCollectName:
		return decodeInto[CollectName](state, data)
	case StateCollectAge:
		return decodeInto[CollectAge](state, data)
	case StateConfirmBooking:
		return decodeInto[ConfirmBooking](state, data)
	case StateReminderReply:
		return decodeInto[ReminderReply](state, data)
	default:
		return nil, fmt.Errorf("decode %q: %w", state, ErrUnknownState)
	}
}

func decodeInto[T Step](state State, data []byte) (Step, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", state, ErrCorruptStep, err)
	}
	return v, nil
}
