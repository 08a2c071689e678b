package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/lakany/clinic-api/internal/policy"
	apperrors "github.com/lakany/clinic-api/pkg/errors"
)

const identityKey = "identity"

func SetIdentity(c *gin.Context, id policy.Identity) {
	c.Set(identityKey, id)
}

// Identity returns the authenticated caller set by the auth middleware
func Identity(c *gin.Context) (policy.Identity, error) {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(policy.Identity); ok {
			return id, nil
		}
	}
	return policy.Identity{}, apperrors.Unauthenticated("Not authorized, no token.")
}
