package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "BOOKED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

// Department is display metadata. Doctors reference it by name only.
type Department struct {
	ID           uuid.UUID
	Name         string
	Description  string
	Icon         string
	DisplayOrder int
	Active       bool
}

type Doctor struct {
	ID                uuid.UUID
	Name              string
	Department        string
	Specialization    *string
	ConsultationHours *string
	Active            bool
}

// InDepartment reports whether the doctor's department label names dept.
func (d Doctor) InDepartment(dept string) bool {
	return equalFoldTrim(d.Department, dept)
}

// Slot is one bookable availability window.
type Slot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	IsBooked  bool
}

type Appointment struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	AvailabilityID uuid.UUID
	PatientName    string
	PatientAge     int
	PatientPhone   string
	Status         AppointmentStatus
	RemindedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BookingRequest carries everything Book needs to commit an appointment.
type BookingRequest struct {
	DoctorID       uuid.UUID
	AvailabilityID uuid.UUID
	PatientName    string
	PatientAge     int
	PatientPhone   string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentDetail is an appointment joined with its doctor and slot.
type AppointmentDetail struct {
	Appointment
	Doctor Doctor
	Slot   Slot
}
