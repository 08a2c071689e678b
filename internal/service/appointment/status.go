package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/policy"
	"github.com/lakany/clinic-api/internal/repository"
	"github.com/lakany/clinic-api/internal/service/audit"
)

const (
	statusCacheKey = "clinic_status"

	OpenStatusMessage   = "Clinic is operational"
	ClosedStatusMessage = "Clinic is currently closed"
)

// statusDoctor resolves the designated doctor: the configured id, else the oldest doctor account
func (s *Service) statusDoctor(ctx context.Context) (*model.User, error) {
	if s.statusDoctorID != nil {
		return s.users.Get(ctx, *s.statusDoctorID)
	}
	return s.users.FirstByRole(ctx, model.RoleDoctor)
}

// GetClinicStatus reports the designated doctor's gate. Public, cached, and
// closed when no doctor account exists.
func (s *Service) GetClinicStatus(ctx context.Context) (*model.ClinicStatus, error) {
	if cached, ok := s.statusCache.Get(statusCacheKey); ok {
		s.metrics.StatusCacheHits.Inc()
		status := cached.(model.ClinicStatus)
		return &status, nil
	}

	s.statusMu.Lock()
	gen := s.statusGen
	s.statusMu.Unlock()

	status := model.ClinicStatus{Status: model.ClinicClosed, Message: ClosedStatusMessage}

	doctor, err := s.statusDoctor(ctx)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, storageErr(err, "Doctor")
	case GateOpen(doctor):
		status = model.ClinicStatus{Status: model.ClinicOpen, Message: OpenStatusMessage}
	}

	s.statusMu.Lock()
	if gen == s.statusGen {
		s.statusCache.Set(statusCacheKey, status, cache.DefaultExpiration)
	}
	s.statusMu.Unlock()
	return &status, nil
}

// SetAvailability toggles a doctor's gate. A nil doctorID targets the caller.
func (s *Service) SetAvailability(ctx context.Context, caller policy.Identity, doctorID *uuid.UUID, available bool) (*model.DoctorAvailability, error) {
	target := caller.ID
	if doctorID != nil {
		target = *doctorID
	}
	if err := caller.CanSetAvailability(target); err != nil {
		return nil, err
	}

	doctor, err := s.users.Get(ctx, target)
	if err != nil {
		return nil, storageErr(err, "Doctor")
	}
	if doctor.Role != model.RoleDoctor {
		return nil, storageErr(repository.ErrNotFound, "Doctor")
	}

	if err := s.users.SetAvailability(ctx, target, available); err != nil {
		return nil, storageErr(err, "Doctor")
	}
	s.invalidateStatus()

	result := &model.DoctorAvailability{DoctorID: target, IsAvailable: available}

	var before interface{}
	if doctor.IsAvailable != nil {
		before = model.DoctorAvailability{DoctorID: target, IsAvailable: *doctor.IsAvailable}
	}
	if _, err := s.auditor.Log(ctx, audit.Entry{
		Actor:      caller,
		Action:     model.AuditActionAvailability,
		EntityType: model.AuditEntityDoctor,
		EntityID:   target,
		Before:     before,
		After:      result,
	}); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("doctor_id", target.String()).Msg("Failed to audit availability change")
	}

	if err := s.events.Emit(ctx, model.EventDoctorAvailability, target, result); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("doctor_id", target.String()).Msg("Failed to record availability event")
	}

	zerolog.Ctx(ctx).Info().
		Str("doctor_id", target.String()).
		Bool("is_available", available).
		Msg("Doctor availability changed")
	return result, nil
}

func (s *Service) invalidateStatus() {
	s.statusMu.Lock()
	s.statusGen++
	s.statusCache.Delete(statusCacheKey)
	s.statusMu.Unlock()
}
