package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/policy"
	"github.com/lakany/clinic-api/internal/repository"
	"github.com/lakany/clinic-api/pkg/logger"
)

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type Entry struct {
	Actor      policy.Identity
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Before     interface{}
	After      interface{}
	Flags      []string
}

// Log writes one audit row; the request id is taken from ctx
func (s *Service) Log(ctx context.Context, e Entry) (*model.AuditLog, error) {
	before, err := marshalState(e.Before)
	if err != nil {
		return nil, err
	}
	after, err := marshalState(e.After)
	if err != nil {
		return nil, err
	}

	flags := e.Flags
	if flags == nil {
		flags = []string{}
	}

	entry := &model.AuditLog{
		ID:         uuid.New(),
		ActorID:    e.Actor.ID,
		ActorRole:  string(e.Actor.Role),
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Before:     before,
		After:      after,
		Flags:      flags,
		RequestID:  logger.RequestID(ctx),
		CreatedAt:  s.now().UTC(),
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to write audit log: %w", err)
	}
	return entry, nil
}

func (s *Service) History(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID)
}

func marshalState(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit state: %w", err)
	}
	return b, nil
}
