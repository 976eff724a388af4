package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
)

type fakeAdmin struct {
	doctors      map[uuid.UUID]*appointment.Doctor
	departments  map[uuid.UUID]*appointment.Department
	slots        map[uuid.UUID]*appointment.Slot
	appointments map[uuid.UUID]*appointment.Appointment
	slotFilter   appointment.SlotFilter
	apptFilter   appointment.AppointmentFilter
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{
		doctors:      map[uuid.UUID]*appointment.Doctor{},
		departments:  map[uuid.UUID]*appointment.Department{},
		slots:        map[uuid.UUID]*appointment.Slot{},
		appointments: map[uuid.UUID]*appointment.Appointment{},
	}
}

func (f *fakeAdmin) ListDoctors(context.Context) ([]appointment.Doctor, error) {
	var out []appointment.Doctor
	for _, d := range f.doctors {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeAdmin) GetDoctor(_ context.Context, id uuid.UUID) (*appointment.Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return nil, appointment.ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeAdmin) DoctorsByDepartment(_ context.Context, dept string) ([]appointment.DoctorAvailability, error) {
	var out []appointment.DoctorAvailability
	for _, d := range f.doctors {
		if !d.Active || !d.InDepartment(dept) {
			continue
		}
		entry := appointment.DoctorAvailability{Doctor: *d}
		for _, s := range f.slots {
			if s.DoctorID == d.ID && !s.IsBooked {
				cp := *s
				entry.NextSlot = &cp
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (f *fakeAdmin) CreateDoctor(_ context.Context, in appointment.NewDoctor) (*appointment.Doctor, error) {
	d := &appointment.Doctor{
		ID:                uuid.New(),
		Name:              in.Name,
		Department:        in.Department,
		Specialization:    in.Specialization,
		ConsultationHours: in.ConsultationHours,
		Active:            true,
	}
	f.doctors[d.ID] = d
	cp := *d
	return &cp, nil
}

func (f *fakeAdmin) UpdateDoctor(_ context.Context, id uuid.UUID, patch appointment.DoctorPatch) (*appointment.Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return nil, appointment.ErrDoctorNotFound
	}
	if patch.Name != nil {
		d.Name = *patch.Name
	}
	if patch.Active != nil {
		d.Active = *patch.Active
	}
	cp := *d
	return &cp, nil
}

func (f *fakeAdmin) ListDepartments(context.Context) ([]appointment.Department, error) {
	var out []appointment.Department
	for _, d := range f.departments {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeAdmin) CreateDepartment(_ context.Context, in appointment.NewDepartment) (*appointment.Department, error) {
	for _, d := range f.departments {
		if strings.EqualFold(d.Name, in.Name) {
			return nil, appointment.ErrDepartmentExists
		}
	}
	d := &appointment.Department{ID: uuid.New(), Name: in.Name, Description: in.Description, Icon: in.Icon, DisplayOrder: in.DisplayOrder, Active: true}
	f.departments[d.ID] = d
	cp := *d
	return &cp, nil
}

func (f *fakeAdmin) UpdateDepartment(_ context.Context, id uuid.UUID, patch appointment.DepartmentPatch) (*appointment.Department, error) {
	d, ok := f.departments[id]
	if !ok {
		return nil, appointment.ErrDepartmentNotFound
	}
	if patch.Active != nil {
		d.Active = *patch.Active
	}
	if patch.DisplayOrder != nil {
		d.DisplayOrder = *patch.DisplayOrder
	}
	cp := *d
	return &cp, nil
}

func (f *fakeAdmin) ListSlots(_ context.Context, filter appointment.SlotFilter) ([]appointment.Slot, error) {
	f.slotFilter = filter
	var out []appointment.Slot
	for _, s := range f.slots {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeAdmin) CreateSlot(_ context.Context, in appointment.NewSlot) (*appointment.Slot, error) {
	if _, ok := f.doctors[in.DoctorID]; !ok {
		return nil, appointment.ErrDoctorNotFound
	}
	s := &appointment.Slot{ID: uuid.New(), DoctorID: in.DoctorID, StartTime: in.StartTime, EndTime: in.EndTime}
	f.slots[s.ID] = s
	cp := *s
	return &cp, nil
}

func (f *fakeAdmin) DeleteSlot(_ context.Context, id uuid.UUID) error {
	s, ok := f.slots[id]
	if !ok {
		return appointment.ErrSlotNotFound
	}
	if s.IsBooked {
		return appointment.ErrSlotInUse
	}
	delete(f.slots, id)
	return nil
}

func (f *fakeAdmin) ListAppointments(_ context.Context, filter appointment.AppointmentFilter) ([]appointment.AppointmentDetail, error) {
	f.apptFilter = filter
	var out []appointment.AppointmentDetail
	for _, a := range f.appointments {
		out = append(out, appointment.AppointmentDetail{
			Appointment: *a,
			Doctor:      *f.doctors[a.DoctorID],
			Slot:        *f.slots[a.AvailabilityID],
		})
	}
	return out, nil
}

func (f *fakeAdmin) CancelAppointment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := f.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if a.Status != appointment.StatusBooked {
		return nil, appointment.ErrInvalidStatusTransition
	}
	a.Status = appointment.StatusCancelled
	f.slots[a.AvailabilityID].IsBooked = false
	cp := *a
	return &cp, nil
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate() { c.n++ }

type adminFixture struct {
	admin   *fakeAdmin
	catalog *countingInvalidator
	router  http.Handler
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{admin: newFakeAdmin(), catalog: &countingInvalidator{}}
	f.router = NewRouter(RouterConfig{
		Messages:  &fakeHandler{},
		Tickets:   &fakeTickets{},
		Knowledge: &fakeKnowledge{},
		Reminders: &fakeReminders{},
		Admin:     f.admin,
		Catalog:   f.catalog,
	})
	return f
}

func (f *adminFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *adminFixture) addDoctor(name, dept string) *appointment.Doctor {
	d := &appointment.Doctor{ID: uuid.New(), Name: name, Department: dept, Active: true}
	f.admin.doctors[d.ID] = d
	return d
}

func TestDoctorCrudInvalidatesCatalog(t *testing.T) {
	f := newAdminFixture()

	rec := f.do(http.MethodPost, "/admin/doctors", `{"name":" Dr. Sarah Johnson ","department":"Cardiology","specialization":"Interventional Cardiology"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created DoctorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Dr. Sarah Johnson", created.Name)
	require.NotNil(t, created.Specialization)
	assert.True(t, created.Active)
	assert.Equal(t, 1, f.catalog.n)

	rec = f.do(http.MethodGet, "/admin/doctors/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"department":"Cardiology"`)

	rec = f.do(http.MethodPatch, "/admin/doctors/"+created.ID.String(), `{"active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":false`)
	assert.Equal(t, 2, f.catalog.n)

	rec = f.do(http.MethodGet, "/admin/doctors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []DoctorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.False(t, list[0].Active)
}

func TestDoctorWritesValidate(t *testing.T) {
	f := newAdminFixture()

	rec := f.do(http.MethodPost, "/admin/doctors", `{"name":"Dr. No Department"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "department failed required")

	rec = f.do(http.MethodPatch, "/admin/doctors/"+uuid.NewString(), `{"active":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/admin/doctors/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/admin/doctors/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, f.catalog.n)
}

func TestDoctorsByDepartment(t *testing.T) {
	f := newAdminFixture()
	sarah := f.addDoctor("Dr. Sarah Johnson", "Cardiology")
	f.addDoctor("Dr. Kevin Taylor", "ENT")
	start := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	slot := &appointment.Slot{ID: uuid.New(), DoctorID: sarah.ID, StartTime: start, EndTime: start.Add(30 * time.Minute)}
	f.admin.slots[slot.ID] = slot

	rec := f.do(http.MethodGet, "/admin/doctors/by-department", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/admin/doctors/by-department?department=cardiology", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got DepartmentDoctorsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "cardiology", got.Department)
	require.Len(t, got.Doctors, 1)
	assert.Equal(t, sarah.ID, got.Doctors[0].ID)
	require.NotNil(t, got.Doctors[0].NextAvailableSlot)
	assert.Equal(t, start, got.Doctors[0].NextAvailableSlot.StartTime.UTC())
}

func TestDepartmentCrud(t *testing.T) {
	f := newAdminFixture()

	rec := f.do(http.MethodPost, "/admin/departments", `{"name":"Cardiology","description":"Heart care","icon":"❤️","display_order":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created DepartmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 1, created.DisplayOrder)

	rec = f.do(http.MethodPost, "/admin/departments", `{"name":"cardiology"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPatch, "/admin/departments/"+created.ID.String(), `{"active":false,"display_order":9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"display_order":9`)

	rec = f.do(http.MethodPost, "/admin/departments", `{"name":"ENT","display_order":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/admin/departments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":false`)

	assert.Equal(t, 2, f.catalog.n)
}

func TestAvailabilityCrud(t *testing.T) {
	f := newAdminFixture()
	d := f.addDoctor("Dr. Anil", "General Medicine")

	body := `{"doctor_id":"` + d.ID.String() + `","start_time":"2026-03-11T09:00:00Z","end_time":"2026-03-11T09:30:00Z"}`
	rec := f.do(http.MethodPost, "/admin/availability", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var slot SlotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slot))
	assert.False(t, slot.IsBooked)

	backwards := `{"doctor_id":"` + d.ID.String() + `","start_time":"2026-03-11T09:30:00Z","end_time":"2026-03-11T09:00:00Z"}`
	rec = f.do(http.MethodPost, "/admin/availability", backwards)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "endtime failed gtfield")

	unknown := `{"doctor_id":"` + uuid.NewString() + `","start_time":"2026-03-11T09:00:00Z","end_time":"2026-03-11T09:30:00Z"}`
	rec = f.do(http.MethodPost, "/admin/availability", unknown)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/admin/availability?doctor_id="+d.ID.String()+"&from=2026-03-11T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.admin.slotFilter.DoctorID)
	assert.Equal(t, d.ID, *f.admin.slotFilter.DoctorID)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), f.admin.slotFilter.From)
	assert.True(t, f.admin.slotFilter.To.IsZero())

	rec = f.do(http.MethodGet, "/admin/availability?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.admin.slots[slot.ID].IsBooked = true
	rec = f.do(http.MethodDelete, "/admin/availability/"+slot.ID.String(), "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.admin.slots[slot.ID].IsBooked = false
	rec = f.do(http.MethodDelete, "/admin/availability/"+slot.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodDelete, "/admin/availability/"+slot.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, f.catalog.n)
}

func TestAppointmentsListAndCancel(t *testing.T) {
	f := newAdminFixture()
	d := f.addDoctor("Dr. Anil", "General Medicine")
	start := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	slot := &appointment.Slot{ID: uuid.New(), DoctorID: d.ID, StartTime: start, EndTime: start.Add(30 * time.Minute), IsBooked: true}
	f.admin.slots[slot.ID] = slot
	appt := &appointment.Appointment{
		ID: uuid.New(), DoctorID: d.ID, AvailabilityID: slot.ID,
		PatientName: "Rahul", PatientAge: 34, PatientPhone: "919800000001", Status: appointment.StatusBooked,
	}
	f.admin.appointments[appt.ID] = appt

	rec := f.do(http.MethodGet, "/admin/appointments?status=booked&doctor_id="+d.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointment.StatusBooked, f.admin.apptFilter.Status)
	var list []AppointmentDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Dr. Anil", list[0].Doctor.Name)
	assert.Equal(t, slot.ID, list[0].Slot.ID)

	rec = f.do(http.MethodGet, "/admin/appointments?status=PENDING", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/admin/appointments/"+appt.ID.String()+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"CANCELLED"`)
	assert.False(t, slot.IsBooked)

	rec = f.do(http.MethodPost, "/admin/appointments/"+appt.ID.String()+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/admin/appointments/"+uuid.NewString()+"/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDirectoryRoutesNeedAdmin(t *testing.T) {
	router := NewRouter(RouterConfig{Tickets: &fakeTickets{}, Knowledge: &fakeKnowledge{}, Reminders: &fakeReminders{}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/doctors", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
