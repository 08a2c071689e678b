package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/policy"
	"github.com/lakany/clinic-api/internal/repository"
	"github.com/lakany/clinic-api/pkg/auth"
	apperrors "github.com/lakany/clinic-api/pkg/errors"
	"github.com/lakany/clinic-api/pkg/security"
)

const (
	InvalidCredentialsMessage = "Invalid email or password."
	InvalidTokenMessage       = "Not authorized, token failed."
)

type Service struct {
	users  repository.UserRepository
	jwtSvc auth.JWTService
	hasher security.PasswordHasher
}

func NewService(users repository.UserRepository, jwtSvc auth.JWTService, hasher security.PasswordHasher) *Service {
	return &Service{users: users, jwtSvc: jwtSvc, hasher: hasher}
}

// Login verifies the password and issues an access token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthenticated(InvalidCredentialsMessage)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			zerolog.Ctx(ctx).Error().Err(err).Str("user_id", user.ID.String()).Msg("Stored password hash is unusable")
		}
		return nil, apperrors.Unauthenticated(InvalidCredentialsMessage)
	}

	token, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	zerolog.Ctx(ctx).Info().Str("user_id", user.ID.String()).Str("role", user.Role).Msg("User logged in")
	return &model.TokenResponse{
		AccessToken: token,
		ID:          user.ID.String(),
		Role:        user.Role,
	}, nil
}

// Authenticate turns a bearer token into the caller identity
func (s *Service) Authenticate(ctx context.Context, token string) (policy.Identity, error) {
	if token == "" {
		return policy.Identity{}, apperrors.Unauthenticated("Not authorized, no token.")
	}

	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return policy.Identity{}, apperrors.Unauthenticated(InvalidTokenMessage)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return policy.Identity{}, apperrors.Unauthenticated(InvalidTokenMessage)
	}
	role, err := policy.ParseRole(claims.Role)
	if err != nil {
		return policy.Identity{}, apperrors.Unauthenticated(InvalidTokenMessage)
	}
	return policy.Identity{ID: id, Role: role}, nil
}
