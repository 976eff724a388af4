package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
	"github.com/hackgods/whatsapp-hospital-bot/internal/reminder"
)

type TicketReplyRequest struct {
	Body    string `json:"body" validate:"required,max=4096"`
	Resolve bool   `json:"resolve"`
}

type KnowledgeEntryRequest struct {
	Question string `json:"question" validate:"required,max=500"`
	Answer   string `json:"answer" validate:"required,max=4000"`
}

type ScheduleReminderRequest struct {
	Phone  string    `json:"phone" validate:"required,min=8,max=20"`
	SendAt time.Time `json:"send_at" validate:"required"`
	Type   string    `json:"type" validate:"omitempty,max=50"`
}

type ReminderResponse struct {
	ID     uuid.UUID `json:"id"`
	Phone  string    `json:"phone"`
	SendAt time.Time `json:"send_at"`
	Type   string    `json:"type"`
	Status string    `json:"status"`
}

func newReminderResponse(s *reminder.Scheduled) ReminderResponse {
	return ReminderResponse{ID: s.ID, Phone: s.Phone, SendAt: s.SendAt, Type: s.Type, Status: string(s.Status)}
}

type CreateDoctorRequest struct {
	Name              string  `json:"name" validate:"required,max=200"`
	Department        string  `json:"department" validate:"required,max=100"`
	Specialization    *string `json:"specialization" validate:"omitempty,max=200"`
	ConsultationHours *string `json:"consultation_hours" validate:"omitempty,max=200"`
}

// UpdateDoctorRequest fields left out of the body are not changed.
type UpdateDoctorRequest struct {
	Name              *string `json:"name" validate:"omitempty,min=1,max=200"`
	Department        *string `json:"department" validate:"omitempty,min=1,max=100"`
	Specialization    *string `json:"specialization" validate:"omitempty,max=200"`
	ConsultationHours *string `json:"consultation_hours" validate:"omitempty,max=200"`
	Active            *bool   `json:"active"`
}

type CreateDepartmentRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Description  string `json:"description" validate:"max=500"`
	Icon         string `json:"icon" validate:"max=16"`
	DisplayOrder int    `json:"display_order" validate:"min=0"`
}

type UpdateDepartmentRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description  *string `json:"description" validate:"omitempty,max=500"`
	Icon         *string `json:"icon" validate:"omitempty,max=16"`
	DisplayOrder *int    `json:"display_order" validate:"omitempty,min=0"`
	Active       *bool   `json:"active"`
}

type CreateSlotRequest struct {
	DoctorID  string    `json:"doctor_id" validate:"required,uuid"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

type DoctorResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Department        string    `json:"department"`
	Specialization    *string   `json:"specialization"`
	ConsultationHours *string   `json:"consultation_hours"`
	Active            bool      `json:"active"`
}

func newDoctorResponse(d appointment.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:                d.ID,
		Name:              d.Name,
		Department:        d.Department,
		Specialization:    d.Specialization,
		ConsultationHours: d.ConsultationHours,
		Active:            d.Active,
	}
}

func newDoctorResponses(doctors []appointment.Doctor) []DoctorResponse {
	out := make([]DoctorResponse, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, newDoctorResponse(d))
	}
	return out
}

type DoctorAvailabilityResponse struct {
	DoctorResponse
	NextAvailableSlot *SlotResponse `json:"next_available_slot"`
}

type DepartmentDoctorsResponse struct {
	Department string                       `json:"department"`
	Doctors    []DoctorAvailabilityResponse `json:"doctors"`
}

type DepartmentResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Icon         string    `json:"icon"`
	DisplayOrder int       `json:"display_order"`
	Active       bool      `json:"active"`
}

func newDepartmentResponse(d appointment.Department) DepartmentResponse {
	return DepartmentResponse{
		ID:           d.ID,
		Name:         d.Name,
		Description:  d.Description,
		Icon:         d.Icon,
		DisplayOrder: d.DisplayOrder,
		Active:       d.Active,
	}
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	IsBooked  bool      `json:"is_booked"`
}

func newSlotResponse(s appointment.Slot) SlotResponse {
	return SlotResponse{ID: s.ID, DoctorID: s.DoctorID, StartTime: s.StartTime, EndTime: s.EndTime, IsBooked: s.IsBooked}
}

type AppointmentResponse struct {
	ID             uuid.UUID  `json:"id"`
	DoctorID       uuid.UUID  `json:"doctor_id"`
	AvailabilityID uuid.UUID  `json:"availability_id"`
	PatientName    string     `json:"patient_name"`
	PatientAge     int        `json:"patient_age"`
	PatientPhone   string     `json:"patient_phone"`
	Status         string     `json:"status"`
	RemindedAt     *time.Time `json:"reminded_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		DoctorID:       a.DoctorID,
		AvailabilityID: a.AvailabilityID,
		PatientName:    a.PatientName,
		PatientAge:     a.PatientAge,
		PatientPhone:   a.PatientPhone,
		Status:         string(a.Status),
		RemindedAt:     a.RemindedAt,
		CreatedAt:      a.CreatedAt,
	}
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Doctor DoctorResponse `json:"doctor"`
	Slot   SlotResponse   `json:"availability"`
}

func newAppointmentDetailResponse(d appointment.AppointmentDetail) AppointmentDetailResponse {
	return AppointmentDetailResponse{
		AppointmentResponse: newAppointmentResponse(d.Appointment),
		Doctor:              newDoctorResponse(d.Doctor),
		Slot:                newSlotResponse(d.Slot),
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

var validate = validator.New()

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// It writes the 400 response itself and reports whether the caller may go on.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
