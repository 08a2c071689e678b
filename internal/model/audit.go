package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	AuditActionOverride     = "override"
	AuditActionAvailability = "availability"

	AuditEntityAppointment = "appointment"
	AuditEntityDoctor      = "doctor"
)

// Override flags raised when an update writes something the guarded lifecycle never would
const (
	FlagLegacyStatus           = "legacy_status"
	FlagReopenedTerminal       = "reopened_terminal"
	FlagStatusOutsideLifecycle = "status_outside_lifecycle"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	ActorID    uuid.UUID       `json:"actor_id" db:"actor_id"`
	ActorRole  string          `json:"actor_role" db:"actor_role"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty" db:"before"`
	After      json.RawMessage `json:"after,omitempty" db:"after"`
	Flags      pq.StringArray  `json:"flags" db:"flags"`
	RequestID  string          `json:"request_id,omitempty" db:"request_id"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
