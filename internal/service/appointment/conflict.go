package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/repository"
	"github.com/lakany/clinic-api/internal/service/schedule"
)

// ConflictChecker derives occupied slot labels from stored appointments
type ConflictChecker struct {
	appointments repository.AppointmentRepository
	clock        *schedule.Clock
}

func NewConflictChecker(appointments repository.AppointmentRepository, clock *schedule.Clock) *ConflictChecker {
	return &ConflictChecker{appointments: appointments, clock: clock}
}

// OccupiedLabels returns the labels held by doctorID's non-cancelled appointments
// on the clinic-time calendar day containing day. Completed, done and no-show
// appointments keep their slot.
func (c *ConflictChecker) OccupiedLabels(ctx context.Context, doctorID uuid.UUID, day time.Time) (map[string]struct{}, error) {
	start, end := c.clock.DayBounds(day)

	booked, err := c.appointments.List(ctx, &model.AppointmentFilters{
		DoctorID:         &doctorID,
		From:             &start,
		To:               &end,
		ExcludeCancelled: true,
		Ascending:        true,
	})
	if err != nil {
		return nil, err
	}

	occupied := make(map[string]struct{}, len(booked))
	for _, apt := range booked {
		if !apt.Status.Occupying() {
			continue
		}
		occupied[c.clock.Label(apt.Date)] = struct{}{}
	}
	return occupied, nil
}

// Availability marks each label in generator order; no reordering by availability
func Availability(labels []string, occupied map[string]struct{}) []model.TimeSlot {
	slots := make([]model.TimeSlot, 0, len(labels))
	for _, label := range labels {
		_, taken := occupied[label]
		slots = append(slots, model.TimeSlot{Time: label, Available: !taken})
	}
	return slots
}
