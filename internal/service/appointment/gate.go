package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/repository"
)

// AvailabilityGate is the per-doctor switch that overrides slot computation and booking
type AvailabilityGate struct {
	users repository.UserRepository
}

func NewAvailabilityGate(users repository.UserRepository) *AvailabilityGate {
	return &AvailabilityGate{users: users}
}

// GateOpen is the gate decision table:
//
//	no record            -> open
//	is_available absent  -> open
//	is_available = true  -> open
//	is_available = false -> closed
func GateOpen(doctor *model.User) bool {
	switch {
	case doctor == nil:
		return true
	case doctor.IsAvailable == nil:
		return true
	default:
		return *doctor.IsAvailable
	}
}

// IsOpen looks the doctor up and applies GateOpen. Only storage failures error.
func (g *AvailabilityGate) IsOpen(ctx context.Context, doctorID uuid.UUID) (bool, error) {
	doctor, err := g.users.Get(ctx, doctorID)
	if errors.Is(err, repository.ErrNotFound) {
		return GateOpen(nil), nil
	}
	if err != nil {
		return false, err
	}
	return GateOpen(doctor), nil
}
