package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lakany/clinic-api/internal/handler"
	"github.com/lakany/clinic-api/internal/policy"
	apperrors "github.com/lakany/clinic-api/pkg/errors"
)

// Authenticator resolves a bearer token into the caller identity
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (policy.Identity, error)
}

// Authenticate requires a valid bearer token and stores the caller identity in the context
func Authenticate(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			handler.Fail(c, apperrors.Unauthenticated("Not authorized, no token."))
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			handler.Fail(c, apperrors.Unauthenticated("Not authorized, invalid authorization header."))
			return
		}

		id, err := a.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			handler.Fail(c, err)
			return
		}

		handler.SetIdentity(c, id)
		l := zerolog.Ctx(c.Request.Context()).With().
			Str("user_id", id.ID.String()).
			Str("role", string(id.Role)).
			Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
		c.Next()
	}
}
