package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
)

// AppointmentAdmin is the staff view over doctors, departments, availability
// and booked appointments.
type AppointmentAdmin interface {
	ListDoctors(ctx context.Context) ([]appointment.Doctor, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*appointment.Doctor, error)
	DoctorsByDepartment(ctx context.Context, dept string) ([]appointment.DoctorAvailability, error)
	CreateDoctor(ctx context.Context, in appointment.NewDoctor) (*appointment.Doctor, error)
	UpdateDoctor(ctx context.Context, id uuid.UUID, patch appointment.DoctorPatch) (*appointment.Doctor, error)

	ListDepartments(ctx context.Context) ([]appointment.Department, error)
	CreateDepartment(ctx context.Context, in appointment.NewDepartment) (*appointment.Department, error)
	UpdateDepartment(ctx context.Context, id uuid.UUID, patch appointment.DepartmentPatch) (*appointment.Department, error)

	ListSlots(ctx context.Context, filter appointment.SlotFilter) ([]appointment.Slot, error)
	CreateSlot(ctx context.Context, in appointment.NewSlot) (*appointment.Slot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	ListAppointments(ctx context.Context, filter appointment.AppointmentFilter) ([]appointment.AppointmentDetail, error)
	CancelAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// CatalogInvalidator drops the cached doctor and department lists the bot reads.
type CatalogInvalidator interface {
	Invalidate()
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate() {}

// writeDirectoryError maps appointment errors onto HTTP statuses.
func writeDirectoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrDepartmentNotFound):
		writeError(w, http.StatusNotFound, "department_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrDepartmentExists),
		errors.Is(err, appointment.ErrSlotExists),
		errors.Is(err, appointment.ErrSlotInUse),
		errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, appointment.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func pathID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// queryUUID parses an optional UUID query parameter.
func queryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// Doctors

func listDoctorsHandler(admin AppointmentAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := admin.ListDoctors(r.Context())
		if err != nil {
			writeDirectoryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newDoctorResponses(doctors))
	}
}

func doctorsByDepartmentHandler(admin AppointmentAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dept := strings.TrimSpace(r.URL.Query().Get("department"))
		if dept == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "department parameter is required")
			return
		}
		entries, err := admin.DoctorsByDepartment(r.Context(), dept)
		if err != nil {
			writeDirectoryError(w, err)
			return
		}
		out := make([]DoctorAvailabilityResponse, 0, len(entries))
		for _, e := range entries {
			resp := DoctorAvailabilityResponse{DoctorResponse: newDoctorResponse(e.Doctor)}
			if e.NextSlot != nil {
				slot := newSlotResponse(*e.NextSlot)
				resp.NextAvailableSlot = &slot
			}
			out = append(out, resp)
		}
		writeJSON(w, http.StatusOK, DepartmentDoctorsResponse{Department: dept, Doctors: out})
	}
}

func getDoctorHandler(admin AppointmentAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}
		d, err := admin.GetDoctor(r.Context(), id)
		if err != nil {
			writeDirectoryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newDoctorResponse(*d))
	}
}

func createDoctorHandler(admin AppointmentAdmin, catalog CatalogInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDoctorRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		d, err := admin.CreateDoctor(r.Context(), appointment.NewDoctor{
			Name:              strings.TrimSpace(req.Name),
			Department:        strings.TrimSpace(req.Department),
			Specialization:    req.Specialization,
			ConsultationHours: req.ConsultationHours,
		})
		if err != nil {
			writeDirectoryError(w, err)
			return
		}
		catalog.Invalidate()
		writeJSON(w, http.StatusCreated, newDoctorResponse(*d))
	}
}

func updateDoctorHandler(admin AppointmentAdmin, catalog CatalogInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}
		var req UpdateDoctorRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		d, err := admin.UpdateDoctor(r.Context(), id, appointment.DoctorPatch{
			Name:              req.Name,
			Department:        req.Department,
			Specialization:    req.Specialization,
			ConsultationHours: req.ConsultationHours,
			Active:            req.Active,
		})
		if err != nil {
			writeDirectoryError(w, err)
			return
		}
		catalog.Invalidate()
		writeJSON(w, http.StatusOK, newDoctorResponse(*d))
	}
}

// Departments

func listDepartmentsHandler(admin AppointmentAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		depts, err := admin.ListDepartments(r.Context())
		if err != nil {
			writeDirectoryError(w, err)
			return
		}
		out := make([]DepartmentResponse, 0, len(depts))
		for _, d := range depts {
			out = append(out, newDepartmentResponse(d))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func createDepartmentHandler(admin AppointmentAdmin, catalog CatalogInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDepartmentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		d, err := admin.CreateDepartment(r.Context(), appointment.NewDepartment{
			Name:         strings.TrimSpace(req.Name),
			Description:  req.Description,
			Icon:         req.Icon,
			DisplayOrder: req.DisplayOrder,
		})
		if err != nil {
			writeDirectoryError(w, err)
			return
		}
		catalog.Invalidate()
		writeJSON(w, http.StatusCreated, newDepartmentResponse(*d))
	}
}

func updateDepartmentHandler(admin AppointmentAdmin, catalog CatalogInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_department_id")
		if !ok {
			return
		}
		var req UpdateDepartmentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		d, err := admin.UpdateDepartment(r.Context(), id, appointment.DepartmentPatch{
			Name:         req.Name,
			Description:  req.Description,
			Icon:         req.Icon,
			DisplayOrder: req.DisplayOrder,
			Active:       req.Active,
		})
		if err != nil {
			writeDirectoryError(w, err)
			return
		}
		catalog.Invalidate()
		writeJSON(w, http.StatusOK, newDepartmentResponse(*d))
	}
}

// Availability

func listSlotsHandler(admin AppointmentAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := queryUUID(r, "doctor_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		from, err := queryTime(r, "from")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
			return
		}
		to, err := queryTime(r, "to")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339")
			return
		}

		slots, err := admin.ListSlots(r.Context(), appointment.SlotFilter{DoctorID: doctorID, From: from, To: to})
		if err != nil {
			writeDirectoryError(w, err)
			return
		}
		out := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			out = append(out, newSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func createSlotHandler(admin AppointmentAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		s, err := admin.CreateSlot(r.Context(), appointment.NewSlot{
			DoctorID:  doctorID,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
		})
		if err != nil {
			writeDirectoryError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newSlotResponse(*s))
	}
}

func deleteSlotHandler(admin AppointmentAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_slot_id")
		if !ok {
			return
		}
		if err := admin.DeleteSlot(r.Context(), id); err != nil {
			writeDirectoryError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Appointments

func listAppointmentsHandler(admin AppointmentAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := queryUUID(r, "doctor_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		status := appointment.AppointmentStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
		switch status {
		case "", appointment.StatusBooked, appointment.StatusCancelled:
		default:
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be BOOKED or CANCELLED")
			return
		}

		list, err := admin.ListAppointments(r.Context(), appointment.AppointmentFilter{Status: status, DoctorID: doctorID})
		if err != nil {
			writeDirectoryError(w, err)
			return
		}
		out := make([]AppointmentDetailResponse, 0, len(list))
		for _, a := range list {
			out = append(out, newAppointmentDetailResponse(a))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func cancelAppointmentHandler(admin AppointmentAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}
		appt, err := admin.CancelAppointment(r.Context(), id)
		if err != nil {
			writeDirectoryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(*appt))
	}
}
