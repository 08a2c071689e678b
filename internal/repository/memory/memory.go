// Package memory provides mutex-guarded map implementations of the repository
// interfaces. WithUniqueSlots mirrors the partial unique index of migration 002.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/repository"
	apperrors "github.com/lakany/clinic-api/pkg/errors"
)

var errDuplicateSlot = errors.New(`duplicate key value violates unique constraint "appointments_active_slot_key"`)

type Option func(*Store)

// WithUniqueSlots rejects a second non-cancelled appointment for the same doctor and instant
func WithUniqueSlots() Option {
	return func(s *Store) { s.uniqueSlots = true }
}

// WithClock replaces time.Now for every timestamp the store writes or compares
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*model.Appointment
	users        map[uuid.UUID]*model.User
	audits       []*model.AuditLog
	outbox       []*model.OutboxEvent
	uniqueSlots  bool
	now          func() time.Time
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		appointments: make(map[uuid.UUID]*model.Appointment),
		users:        make(map[uuid.UUID]*model.User),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Appointments() repository.AppointmentRepository { return (*appointmentRepo)(s) }
func (s *Store) Users() repository.UserRepository               { return (*userRepo)(s) }
func (s *Store) Audits() repository.AuditRepository             { return (*auditRepo)(s) }
func (s *Store) Outbox() repository.OutboxRepository            { return (*outboxRepo)(s) }

// AddUser seeds a user; CreatedAt defaults to now
func (s *Store) AddUser(u *model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	c := *u
	s.users[u.ID] = &c
	return u
}

// AuditLogs returns a snapshot of written audit rows
func (s *Store) AuditLogs() []*model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.AuditLog(nil), s.audits...)
}

// OutboxEvents returns a snapshot of outbox rows
func (s *Store) OutboxEvents() []*model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		c := *e
		out = append(out, &c)
	}
	return out
}

// caller holds s.mu
func (s *Store) slotTaken(apt *model.Appointment) bool {
	if !s.uniqueSlots || !apt.Status.Occupying() {
		return false
	}
	for id, other := range s.appointments {
		if id == apt.ID || !other.Status.Occupying() {
			continue
		}
		if other.DoctorID == apt.DoctorID && other.Date.Equal(apt.Date) {
			return true
		}
	}
	return false
}

// caller holds s.mu
func (s *Store) summary(id uuid.UUID, withContact bool) *model.UserSummary {
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	sum := &model.UserSummary{ID: u.ID, Username: u.Username, Email: u.Email}
	if withContact && u.Phone != nil {
		p := *u.Phone
		sum.Phone = &p
	}
	return sum
}

type appointmentRepo Store

func (r *appointmentRepo) Create(ctx context.Context, apt *model.Appointment) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	now := s.now().UTC()
	if apt.CreatedAt.IsZero() {
		apt.CreatedAt = now
	}
	apt.UpdatedAt = now

	if s.slotTaken(apt) {
		return apperrors.SlotConflict(errDuplicateSlot)
	}
	s.appointments[apt.ID] = stored(apt)
	return nil
}

func (r *appointmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	apt, ok := s.appointments[id]
	if !ok {
		return nil, fmt.Errorf("failed to get appointment: %w", repository.ErrNotFound)
	}
	return apt.Clone(), nil
}

func (r *appointmentRepo) GetDetailed(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	apt, ok := s.appointments[id]
	if !ok {
		return nil, fmt.Errorf("failed to get appointment: %w", repository.ErrNotFound)
	}
	c := apt.Clone()
	c.Patient = s.summary(c.PatientID, true)
	c.Doctor = s.summary(c.DoctorID, false)
	return c, nil
}

func (r *appointmentRepo) Update(ctx context.Context, apt *model.Appointment) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[apt.ID]; !ok {
		return fmt.Errorf("failed to update appointment: %w", repository.ErrNotFound)
	}
	if s.slotTaken(apt) {
		return apperrors.SlotConflict(errDuplicateSlot)
	}
	apt.UpdatedAt = s.now().UTC()
	s.appointments[apt.ID] = stored(apt)
	return nil
}

func (r *appointmentRepo) List(ctx context.Context, f *model.AppointmentFilters) ([]*model.Appointment, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if f == nil {
		f = &model.AppointmentFilters{}
	}

	out := []*model.Appointment{}
	for _, apt := range s.appointments {
		switch {
		case f.PatientID != nil && apt.PatientID != *f.PatientID,
			f.DoctorID != nil && apt.DoctorID != *f.DoctorID,
			f.From != nil && apt.Date.Before(*f.From),
			f.To != nil && apt.Date.After(*f.To),
			f.ExcludeCancelled && apt.Status == model.AppointmentStatusCancelled:
			continue
		}

		c := apt.Clone()
		if f.WithPatient {
			c.Patient = s.summary(c.PatientID, true)
		}
		if f.WithDoctor {
			c.Doctor = s.summary(c.DoctorID, false)
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if f.Ascending {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

// stored drops populated summaries so they are always derived on read
func stored(apt *model.Appointment) *model.Appointment {
	c := apt.Clone()
	c.Patient, c.Doctor = nil, nil
	return c
}

type userRepo Store

func (r *userRepo) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("failed to get user: %w", repository.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("failed to get user by email: %w", repository.ErrNotFound)
}

func (r *userRepo) FirstByRole(ctx context.Context, role string) (*model.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var first *model.User
	for _, u := range s.users {
		if u.Role != role {
			continue
		}
		if first == nil || u.CreatedAt.Before(first.CreatedAt) ||
			(u.CreatedAt.Equal(first.CreatedAt) && u.ID.String() < first.ID.String()) {
			first = u
		}
	}
	if first == nil {
		return nil, fmt.Errorf("failed to get first user by role: %w", repository.ErrNotFound)
	}
	c := *first
	return &c, nil
}

func (r *userRepo) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.Role != model.RoleDoctor {
		return fmt.Errorf("failed to set doctor availability: %w", repository.ErrNotFound)
	}
	u.IsAvailable = &available
	u.UpdatedAt = s.now().UTC()
	return nil
}

type auditRepo Store

func (r *auditRepo) Create(ctx context.Context, log *model.AuditLog) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	c := *log
	s.audits = append(s.audits, &c)
	return nil
}

func (r *auditRepo) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*model.AuditLog{}
	for i := len(s.audits) - 1; i >= 0; i-- {
		if a := s.audits[i]; a.EntityType == entityType && a.EntityID == entityID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

type outboxRepo Store

func (r *outboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if event == nil || event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	now := s.now().UTC()
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = now
	event.UpdatedAt = now
	c := *event
	s.outbox = append(s.outbox, &c)
	return nil
}

func (r *outboxRepo) ClaimPending(ctx context.Context, limit, maxRetries int, staleAfter time.Duration) ([]*model.OutboxEvent, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := []*model.OutboxEvent{}
	for _, e := range s.outbox {
		if len(out) >= limit {
			break
		}
		switch e.Status {
		case model.OutboxStatusPending, model.OutboxStatusFailed:
			if e.RetryAt != nil && e.RetryAt.After(now) {
				continue
			}
		case model.OutboxStatusProcessing:
			if !e.UpdatedAt.Before(now.Add(-staleAfter)) {
				continue
			}
		default:
			continue
		}
		if e.RetryCount >= maxRetries {
			continue
		}
		e.Status = model.OutboxStatusProcessing
		e.UpdatedAt = now.UTC()
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (r *outboxRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.outbox {
		if e.ID != id {
			continue
		}
		e.Status = status
		e.ErrorMessage = errorMessage
		e.RetryAt = retryAt
		e.UpdatedAt = s.now().UTC()
		switch status {
		case model.OutboxStatusFailed:
			e.RetryCount++
		case model.OutboxStatusProcessed:
			t := e.UpdatedAt
			e.ProcessedAt = &t
		}
		return nil
	}
	return fmt.Errorf("failed to update outbox event status: %w", repository.ErrNotFound)
}

func (r *outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.outbox[:0]
	var deleted int64
	for _, e := range s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.outbox = kept
	return deleted, nil
}
