package model

import (
	"time"

	"github.com/google/uuid"
)

// User roles
const (
	RolePatient    = "patient"
	RoleDoctor     = "doctor"
	RoleManagement = "management"
	RoleAdmin      = "admin"
)

// User represents a system user
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	Phone        *string   `json:"phone,omitempty" db:"phone"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	// IsAvailable is meaningful for doctors only; nil means never configured
	IsAvailable *bool     `json:"is_available,omitempty" db:"is_available"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// UserSummary is the projection embedded in appointment responses
type UserSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email,omitempty"`
	Phone    *string   `json:"phone,omitempty"`
}

type SetAvailabilityRequest struct {
	IsAvailable *bool      `json:"is_available" binding:"required"`
	DoctorID    *uuid.UUID `json:"doctor_id,omitempty"`
}

type DoctorAvailability struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	IsAvailable bool      `json:"is_available"`
}
