package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/repository"
)

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

const userColumns = `id, username, email, phone, password_hash, role, is_available, created_at, updated_at`

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, translate(err, "get user")
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, translate(err, "get user by email")
	}
	return &user, nil
}

func (r *userRepository) FirstByRole(ctx context.Context, role string) (*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, role); err != nil {
		return nil, translate(err, "get first user by role")
	}
	return &user, nil
}

func (r *userRepository) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	query := `
		UPDATE users
		SET is_available = $1, updated_at = $2
		WHERE id = $3 AND role = $4
	`

	result, err := r.db.ExecContext(ctx, query, available, time.Now().UTC(), id, model.RoleDoctor)
	if err != nil {
		return translate(err, "set doctor availability")
	}
	return requireAffected(result, "set doctor availability")
}
