package appointment

import (
	"fmt"

	"github.com/lakany/clinic-api/internal/model"
	apperrors "github.com/lakany/clinic-api/pkg/errors"
)

// Cancellation is refused from these statuses; no-show stays cancellable
var cancelBlocked = map[model.AppointmentStatus]bool{
	model.AppointmentStatusCompleted: true,
	model.AppointmentStatusDone:      true,
	model.AppointmentStatusCancelled: true,
}

// Cancel moves apt to cancelled. Repeating it is an error naming the current status.
func Cancel(apt *model.Appointment) error {
	if cancelBlocked[apt.Status] {
		return apperrors.Validation(fmt.Sprintf("Cannot cancel %s appointment.", apt.Status), nil)
	}
	apt.Status = model.AppointmentStatusCancelled
	return nil
}

// Finalize sets completed and the billed fee from any prior status, terminal ones included
func Finalize(apt *model.Appointment, fee float64) {
	apt.Status = model.AppointmentStatusCompleted
	apt.Price = &fee
}

// MarkNoShow sets no-show from any prior status
func MarkNoShow(apt *model.Appointment) {
	apt.Status = model.AppointmentStatusNoShow
}

// GuardedReachable reports whether cancel, finalize or no-show could move from to to
func GuardedReachable(from, to model.AppointmentStatus) bool {
	switch to {
	case model.AppointmentStatusCompleted, model.AppointmentStatusNoShow:
		return true
	case model.AppointmentStatusCancelled:
		return from.Valid() && !cancelBlocked[from]
	default:
		return false
	}
}

// ApplyOverride writes every non-nil patch field onto apt and returns the flags
// describing what the guarded lifecycle would not have done.
func ApplyOverride(apt *model.Appointment, patch *model.AppointmentPatch) ([]string, error) {
	from := apt.Status

	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("Invalid status %q.", *patch.Status), nil)
	}

	if patch.PatientID != nil {
		apt.PatientID = *patch.PatientID
	}
	if patch.DoctorID != nil {
		apt.DoctorID = *patch.DoctorID
	}
	if patch.Date != nil {
		apt.Date = patch.Date.UTC()
	}
	if patch.ClinicName != nil {
		apt.ClinicName = *patch.ClinicName
	}
	if patch.Status != nil {
		apt.Status = *patch.Status
	}
	if patch.Price != nil {
		price := *patch.Price
		apt.Price = &price
	}
	if patch.Notes != nil {
		apt.Notes = *patch.Notes
	}

	flags := []string{}
	if patch.Status == nil || apt.Status == from {
		return flags, nil
	}
	if apt.Status == model.AppointmentStatusDone {
		flags = append(flags, model.FlagLegacyStatus)
	}
	if from.Terminal() {
		flags = append(flags, model.FlagReopenedTerminal)
	}
	if !GuardedReachable(from, apt.Status) {
		flags = append(flags, model.FlagStatusOutsideLifecycle)
	}
	return flags, nil
}
