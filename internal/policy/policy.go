// Package policy maps caller roles onto the capabilities they hold over appointments.
package policy

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lakany/clinic-api/internal/model"
	apperrors "github.com/lakany/clinic-api/pkg/errors"
)

type Role string

const (
	RolePatient    Role = model.RolePatient
	RoleDoctor     Role = model.RoleDoctor
	RoleManagement Role = model.RoleManagement
	RoleAdmin      Role = model.RoleAdmin
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePatient, RoleDoctor, RoleManagement, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Staff roles may read any single appointment
func (r Role) Staff() bool {
	return r == RoleDoctor || r == RoleManagement || r == RoleAdmin
}

type Capability uint32

const (
	ListAllAppointments Capability = 1 << iota
	ViewOwnSchedule
	ViewOwnAppointments
	ReadAnyAppointment
	ReadOwnAppointment
	CancelOwnAppointment
	BookAppointment
	FinalizeAppointment
	MarkNoShow
	OverrideAppointment
	QuerySlots
	SetOwnAvailability
	SetAnyAvailability
)

var capabilityNames = map[Capability]string{
	ListAllAppointments:  "list_all_appointments",
	ViewOwnSchedule:      "view_own_schedule",
	ViewOwnAppointments:  "view_own_appointments",
	ReadAnyAppointment:   "read_any_appointment",
	ReadOwnAppointment:   "read_own_appointment",
	CancelOwnAppointment: "cancel_own_appointment",
	BookAppointment:      "book_appointment",
	FinalizeAppointment:  "finalize_appointment",
	MarkNoShow:           "mark_no_show",
	OverrideAppointment:  "override_appointment",
	QuerySlots:           "query_slots",
	SetOwnAvailability:   "set_own_availability",
	SetAnyAvailability:   "set_any_availability",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", uint32(c))
}

const managementCapabilities = ListAllAppointments | ReadAnyAppointment | FinalizeAppointment |
	MarkNoShow | OverrideAppointment | QuerySlots | SetAnyAvailability

var roleCapabilities = map[Role]Capability{
	RolePatient:    ViewOwnAppointments | ReadOwnAppointment | CancelOwnAppointment | BookAppointment | QuerySlots,
	RoleDoctor:     ViewOwnSchedule | ReadAnyAppointment | QuerySlots | SetOwnAvailability,
	RoleManagement: managementCapabilities,
	RoleAdmin:      managementCapabilities,
}

// Capabilities returns the capability set granted to a role
func Capabilities(r Role) Capability {
	return roleCapabilities[r]
}

// Identity is the authenticated caller threaded into every operation
type Identity struct {
	ID   uuid.UUID
	Role Role
}

func (i Identity) Can(c Capability) bool {
	return Capabilities(i.Role)&c == c
}

// Require fails with an authorization error unless the caller holds c
func (i Identity) Require(c Capability) error {
	if !i.Can(c) {
		return apperrors.Forbidden("Unauthorized.")
	}
	return nil
}

// Owns reports whether the caller is the patient on apt
func (i Identity) Owns(apt *model.Appointment) bool {
	return i.Role == RolePatient && apt.PatientID == i.ID
}

// CanRead checks single-appointment read access: owning patient or any staff
func (i Identity) CanRead(apt *model.Appointment) error {
	if i.Can(ReadAnyAppointment) {
		return nil
	}
	if i.Can(ReadOwnAppointment) && i.Owns(apt) {
		return nil
	}
	return apperrors.Forbidden("Unauthorized access.")
}

// CanCancel checks that the caller is the owning patient
func (i Identity) CanCancel(apt *model.Appointment) error {
	if i.Can(CancelOwnAppointment) && i.Owns(apt) {
		return nil
	}
	return apperrors.Forbidden("Unauthorized.")
}

// CanSetAvailability checks the caller may toggle doctorID's gate
func (i Identity) CanSetAvailability(doctorID uuid.UUID) error {
	if i.Can(SetAnyAvailability) {
		return nil
	}
	if i.Can(SetOwnAvailability) && doctorID == i.ID {
		return nil
	}
	return apperrors.Forbidden("Unauthorized.")
}
