package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lakany/clinic-api/internal/model"
)

// ErrNotFound is returned when a lookup by id or key matches no row
var ErrNotFound = errors.New("record not found")

// All repository interfaces in one file
type (
	AppointmentRepository interface {
		// Create assigns ID and timestamps when zero
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// GetDetailed populates the patient and doctor summaries
		GetDetailed(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
	}

	UserRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		// FirstByRole returns the earliest created user holding role
		FirstByRole(ctx context.Context, role string) (*model.User, error)
		SetAvailability(ctx context.Context, id uuid.UUID, available bool) error
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending moves up to limit due events to processing and returns them.
		// Rows left in processing longer than staleAfter are claimable again.
		ClaimPending(ctx context.Context, limit, maxRetries int, staleAfter time.Duration) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
