package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	// AppointmentStatusDone is a legacy synonym of completed
	AppointmentStatusDone      AppointmentStatus = "done"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "no-show"
)

var appointmentStatuses = map[AppointmentStatus]struct{}{
	AppointmentStatusScheduled: {},
	AppointmentStatusCompleted: {},
	AppointmentStatusDone:      {},
	AppointmentStatusCancelled: {},
	AppointmentStatusNoShow:    {},
}

func (s AppointmentStatus) Valid() bool {
	_, ok := appointmentStatuses[s]
	return ok
}

// Terminal reports whether no guarded transition leaves s
func (s AppointmentStatus) Terminal() bool {
	return s.Valid() && s != AppointmentStatusScheduled
}

// Occupying reports whether an appointment in status s holds its slot
func (s AppointmentStatus) Occupying() bool {
	return s != AppointmentStatusCancelled
}

type Appointment struct {
	ID         uuid.UUID         `db:"id" json:"id"`
	PatientID  uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID   uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	Date       time.Time         `db:"date" json:"date"`
	ClinicName string            `db:"clinic_name" json:"clinic_name"`
	Status     AppointmentStatus `db:"status" json:"status"`
	Price      *float64          `db:"price" json:"price,omitempty"`
	Notes      string            `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at" json:"updated_at"`

	Patient *UserSummary `db:"-" json:"patient,omitempty"`
	Doctor  *UserSummary `db:"-" json:"doctor,omitempty"`
}

// Clone returns a copy safe to mutate independently
func (a *Appointment) Clone() *Appointment {
	c := *a
	if a.Price != nil {
		p := *a.Price
		c.Price = &p
	}
	if a.Patient != nil {
		p := *a.Patient
		c.Patient = &p
	}
	if a.Doctor != nil {
		d := *a.Doctor
		c.Doctor = &d
	}
	return &c
}

type CreateAppointmentRequest struct {
	// PatientID is accepted for wire compatibility and always replaced by the caller's id
	PatientID  *uuid.UUID `json:"patient_id,omitempty"`
	DoctorID   uuid.UUID  `json:"doctor_id" binding:"required"`
	Date       time.Time  `json:"date" binding:"required"`
	ClinicName string     `json:"clinic_name" binding:"max=200"`
	Notes      string     `json:"notes" binding:"max=1000"`
}

type FinalizeAppointmentRequest struct {
	Fee *float64 `json:"fee" binding:"required,gte=0"`
}

// AppointmentPatch carries the administrative override fields; nil means untouched
type AppointmentPatch struct {
	PatientID  *uuid.UUID         `json:"patient_id"`
	DoctorID   *uuid.UUID         `json:"doctor_id"`
	Date       *time.Time         `json:"date"`
	ClinicName *string            `json:"clinic_name" binding:"omitempty,max=200"`
	Status     *AppointmentStatus `json:"status"`
	Price      *float64           `json:"price" binding:"omitempty,gte=0"`
	Notes      *string            `json:"notes" binding:"omitempty,max=1000"`
}

func (p *AppointmentPatch) Empty() bool {
	return p.PatientID == nil && p.DoctorID == nil && p.Date == nil && p.ClinicName == nil &&
		p.Status == nil && p.Price == nil && p.Notes == nil
}

// TimeSlot is one entry of a slot availability response
type TimeSlot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type SlotAvailability struct {
	Slots   []TimeSlot `json:"slots"`
	Message string     `json:"message,omitempty"`
}

type SlotQuery struct {
	Date       string `form:"date"`
	ClinicName string `form:"clinic_name"`
	DoctorID   string `form:"doctor_id"`
}

type ClinicStatusValue string

const (
	ClinicOpen   ClinicStatusValue = "open"
	ClinicClosed ClinicStatusValue = "closed"
)

type ClinicStatus struct {
	Status  ClinicStatusValue `json:"status"`
	Message string            `json:"message"`
}

// AppointmentFilters narrows repository listings
type AppointmentFilters struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	From      *time.Time
	To        *time.Time
	// ExcludeCancelled drops cancelled rows
	ExcludeCancelled bool
	// Ascending sorts by date oldest first, default newest first
	Ascending bool
	// WithPatient and WithDoctor populate the summaries
	WithPatient bool
	WithDoctor  bool
}
