package appointment

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/policy"
	"github.com/lakany/clinic-api/internal/repository"
	"github.com/lakany/clinic-api/internal/service/audit"
	"github.com/lakany/clinic-api/internal/service/event"
	"github.com/lakany/clinic-api/internal/service/schedule"
	apperrors "github.com/lakany/clinic-api/pkg/errors"
	"github.com/lakany/clinic-api/pkg/metrics"
)

const (
	ClosedSlotsMessage   = "Clinic is currently closed for bookings by the doctor."
	ClosedBookingMessage = "Booking failed: The clinic is currently closed and not accepting new appointments."
	MissingSlotParams    = "Date and Doctor ID are required."
)

type Config struct {
	Clock *schedule.Clock
	// StatusDoctorID pins the doctor whose gate the public clinic status reports
	StatusDoctorID *uuid.UUID
	StatusCacheTTL time.Duration
}

type Service struct {
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	auditor      *audit.Service
	events       event.Emitter
	metrics      *metrics.Metrics

	clock     *schedule.Clock
	gate      *AvailabilityGate
	conflicts *ConflictChecker

	statusDoctorID *uuid.UUID
	statusCache    *cache.Cache
	// statusGen counts availability changes so a read racing one never caches its result
	statusMu  sync.Mutex
	statusGen uint64
}

func NewService(
	appointments repository.AppointmentRepository,
	users repository.UserRepository,
	auditor *audit.Service,
	events event.Emitter,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = schedule.NewClock(time.UTC)
	}
	ttl := cfg.StatusCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &Service{
		appointments:   appointments,
		users:          users,
		auditor:        auditor,
		events:         events,
		metrics:        m,
		clock:          clock,
		gate:           NewAvailabilityGate(users),
		conflicts:      NewConflictChecker(appointments, clock),
		statusDoctorID: cfg.StatusDoctorID,
		statusCache:    cache.New(ttl, 2*ttl),
	}
}

// storageErr maps repository failures onto the error taxonomy
func storageErr(err error, resource string) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(resource)
	default:
		return apperrors.Internal(err)
	}
}

func (s *Service) emit(ctx context.Context, eventType string, apt *model.Appointment, actor policy.Identity) {
	payload := map[string]interface{}{
		"appointment": apt,
		"actor_id":    actor.ID,
		"actor_role":  actor.Role,
	}
	if err := s.events.Emit(ctx, eventType, apt.ID, payload); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", apt.ID.String()).
			Msg("Failed to record lifecycle event")
	}
}

// ListAppointments returns every appointment, newest first, with patient contact summaries
func (s *Service) ListAppointments(ctx context.Context, caller policy.Identity) ([]*model.Appointment, error) {
	if err := caller.Require(policy.ListAllAppointments); err != nil {
		return nil, err
	}

	list, err := s.appointments.List(ctx, &model.AppointmentFilters{WithPatient: true})
	if err != nil {
		return nil, storageErr(err, "Appointment")
	}
	return list, nil
}

// GetAvailableSlots composes the clinic window, the doctor's gate and the occupied labels
func (s *Service) GetAvailableSlots(ctx context.Context, caller policy.Identity, q model.SlotQuery) (*model.SlotAvailability, error) {
	if err := caller.Require(policy.QuerySlots); err != nil {
		return nil, err
	}
	if q.Date == "" || q.DoctorID == "" {
		return nil, apperrors.Validation(MissingSlotParams, nil)
	}

	doctorID, err := uuid.Parse(q.DoctorID)
	if err != nil {
		return nil, apperrors.Validation("Invalid doctor id.", err)
	}
	day, err := s.clock.ParseDate(q.Date)
	if err != nil {
		return nil, apperrors.Validation("Invalid date.", err)
	}

	open, err := s.gate.IsOpen(ctx, doctorID)
	if err != nil {
		s.metrics.SlotQueries.WithLabelValues("error").Inc()
		return nil, storageErr(err, "Doctor")
	}
	if !open {
		s.metrics.SlotQueries.WithLabelValues("closed").Inc()
		return &model.SlotAvailability{Slots: []model.TimeSlot{}, Message: ClosedSlotsMessage}, nil
	}

	occupied, err := s.conflicts.OccupiedLabels(ctx, doctorID, day)
	if err != nil {
		s.metrics.SlotQueries.WithLabelValues("error").Inc()
		return nil, storageErr(err, "Appointment")
	}

	s.metrics.SlotQueries.WithLabelValues("open").Inc()
	labels := schedule.Resolve(q.ClinicName).Labels()
	return &model.SlotAvailability{Slots: Availability(labels, occupied)}, nil
}

// GetDoctorSchedule returns the calling doctor's appointments, oldest first
func (s *Service) GetDoctorSchedule(ctx context.Context, caller policy.Identity) ([]*model.Appointment, error) {
	if err := caller.Require(policy.ViewOwnSchedule); err != nil {
		return nil, err
	}

	list, err := s.appointments.List(ctx, &model.AppointmentFilters{
		DoctorID:    &caller.ID,
		Ascending:   true,
		WithPatient: true,
	})
	if err != nil {
		return nil, storageErr(err, "Appointment")
	}
	return list, nil
}

// GetMyAppointments returns the calling patient's appointments, newest first
func (s *Service) GetMyAppointments(ctx context.Context, caller policy.Identity) ([]*model.Appointment, error) {
	if err := caller.Require(policy.ViewOwnAppointments); err != nil {
		return nil, err
	}

	list, err := s.appointments.List(ctx, &model.AppointmentFilters{
		PatientID:  &caller.ID,
		WithDoctor: true,
	})
	if err != nil {
		return nil, storageErr(err, "Appointment")
	}
	for _, apt := range list {
		if apt.Doctor != nil {
			apt.Doctor = &model.UserSummary{ID: apt.Doctor.ID, Username: apt.Doctor.Username}
		}
	}
	return list, nil
}

// CreateAppointment books for the caller. The body's patient id is ignored and
// the date is stored as sent, without re-checking occupancy.
func (s *Service) CreateAppointment(ctx context.Context, caller policy.Identity, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if err := caller.Require(policy.BookAppointment); err != nil {
		return nil, err
	}
	if req.DoctorID == uuid.Nil {
		return nil, apperrors.Validation("Doctor ID is required.", nil)
	}
	if req.Date.IsZero() {
		return nil, apperrors.Validation("Date is required.", nil)
	}

	open, err := s.gate.IsOpen(ctx, req.DoctorID)
	if err != nil {
		return nil, storageErr(err, "Doctor")
	}
	if !open {
		s.metrics.BookingsRejected.WithLabelValues("clinic_closed").Inc()
		return nil, apperrors.Policy(ClosedBookingMessage)
	}

	apt := &model.Appointment{
		ID:         uuid.New(),
		PatientID:  caller.ID,
		DoctorID:   req.DoctorID,
		Date:       req.Date.UTC(),
		ClinicName: req.ClinicName,
		Status:     model.AppointmentStatusScheduled,
		Notes:      req.Notes,
	}

	if err := s.appointments.Create(ctx, apt); err != nil {
		if errors.Is(err, apperrors.ErrSlotConflict) {
			s.metrics.BookingsRejected.WithLabelValues("slot_conflict").Inc()
		}
		return nil, storageErr(err, "Appointment")
	}

	s.metrics.AppointmentsCreated.Inc()
	s.emit(ctx, model.EventAppointmentCreated, apt, caller)
	return apt, nil
}

// GetAppointment returns one appointment to its patient or to any staff member
func (s *Service) GetAppointment(ctx context.Context, caller policy.Identity, id uuid.UUID) (*model.Appointment, error) {
	if !caller.Can(policy.ReadAnyAppointment) && !caller.Can(policy.ReadOwnAppointment) {
		return nil, apperrors.Forbidden("Unauthorized access.")
	}

	apt, err := s.appointments.GetDetailed(ctx, id)
	if err != nil {
		return nil, storageErr(err, "Appointment")
	}
	if err := caller.CanRead(apt); err != nil {
		return nil, err
	}

	if apt.Patient != nil {
		apt.Patient = &model.UserSummary{ID: apt.Patient.ID, Username: apt.Patient.Username, Email: apt.Patient.Email}
	}
	if apt.Doctor != nil {
		apt.Doctor = &model.UserSummary{ID: apt.Doctor.ID, Username: apt.Doctor.Username}
	}
	return apt, nil
}

// CancelAppointment lets the owning patient cancel a non-terminal appointment
func (s *Service) CancelAppointment(ctx context.Context, caller policy.Identity, id uuid.UUID) (*model.Appointment, error) {
	if err := caller.Require(policy.CancelOwnAppointment); err != nil {
		return nil, err
	}

	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, storageErr(err, "Appointment")
	}
	if err := caller.CanCancel(apt); err != nil {
		return nil, err
	}
	if err := Cancel(apt); err != nil {
		return nil, err
	}

	if err := s.appointments.Update(ctx, apt); err != nil {
		return nil, storageErr(err, "Appointment")
	}

	s.metrics.AppointmentStatusSet.WithLabelValues(string(apt.Status)).Inc()
	s.emit(ctx, model.EventAppointmentCancelled, apt, caller)
	return apt, nil
}

// FinalizeAppointment bills fee and completes the appointment from any status
func (s *Service) FinalizeAppointment(ctx context.Context, caller policy.Identity, id uuid.UUID, fee float64) (*model.Appointment, error) {
	if err := caller.Require(policy.FinalizeAppointment); err != nil {
		return nil, err
	}
	if fee < 0 {
		return nil, apperrors.Validation("Fee must not be negative.", nil)
	}

	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, storageErr(err, "Appointment")
	}

	from := apt.Status
	Finalize(apt, fee)
	if err := s.appointments.Update(ctx, apt); err != nil {
		return nil, storageErr(err, "Appointment")
	}

	if from.Terminal() {
		zerolog.Ctx(ctx).Info().
			Str("appointment_id", apt.ID.String()).
			Str("from", string(from)).
			Msg("Finalized appointment from terminal status")
	}
	s.metrics.AppointmentStatusSet.WithLabelValues(string(apt.Status)).Inc()
	s.emit(ctx, model.EventAppointmentFinalized, apt, caller)
	return apt, nil
}

// MarkNoShow records a no-show from any status
func (s *Service) MarkNoShow(ctx context.Context, caller policy.Identity, id uuid.UUID) (*model.Appointment, error) {
	if err := caller.Require(policy.MarkNoShow); err != nil {
		return nil, err
	}

	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, storageErr(err, "Appointment")
	}

	MarkNoShow(apt)
	if err := s.appointments.Update(ctx, apt); err != nil {
		return nil, storageErr(err, "Appointment")
	}

	s.metrics.AppointmentStatusSet.WithLabelValues(string(apt.Status)).Inc()
	s.emit(ctx, model.EventAppointmentNoShow, apt, caller)
	return apt, nil
}

// UpdateAppointment is the administrative override. It bypasses every lifecycle
// guard and leaves an audit row with the before and after state.
func (s *Service) UpdateAppointment(ctx context.Context, caller policy.Identity, id uuid.UUID, patch *model.AppointmentPatch) (*model.Appointment, error) {
	if err := caller.Require(policy.OverrideAppointment); err != nil {
		return nil, err
	}
	if patch == nil || patch.Empty() {
		return nil, apperrors.Validation("No fields to update.", nil)
	}

	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, storageErr(err, "Appointment")
	}

	before := apt.Clone()
	flags, err := ApplyOverride(apt, patch)
	if err != nil {
		return nil, err
	}

	if err := s.appointments.Update(ctx, apt); err != nil {
		return nil, storageErr(err, "Appointment")
	}

	s.metrics.AdminOverrides.WithLabelValues(strconv.FormatBool(len(flags) > 0)).Inc()
	if len(flags) > 0 {
		zerolog.Ctx(ctx).Warn().
			Str("appointment_id", apt.ID.String()).
			Str("actor_id", caller.ID.String()).
			Strs("flags", flags).
			Str("from", string(before.Status)).
			Str("to", string(apt.Status)).
			Msg("Administrative override outside the appointment lifecycle")
	}

	if _, err := s.auditor.Log(ctx, audit.Entry{
		Actor:      caller,
		Action:     model.AuditActionOverride,
		EntityType: model.AuditEntityAppointment,
		EntityID:   apt.ID,
		Before:     before,
		After:      apt,
		Flags:      flags,
	}); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("appointment_id", apt.ID.String()).Msg("Failed to audit override")
	}

	s.emit(ctx, model.EventAppointmentOverride, apt, caller)
	return apt, nil
}

// AppointmentHistory lists the override audit trail of one appointment, newest first
func (s *Service) AppointmentHistory(ctx context.Context, caller policy.Identity, id uuid.UUID) ([]*model.AuditLog, error) {
	if err := caller.Require(policy.OverrideAppointment); err != nil {
		return nil, err
	}
	if _, err := s.appointments.Get(ctx, id); err != nil {
		return nil, storageErr(err, "Appointment")
	}

	logs, err := s.auditor.History(ctx, model.AuditEntityAppointment, id)
	if err != nil {
		return nil, storageErr(err, "Audit log")
	}
	return logs, nil
}
