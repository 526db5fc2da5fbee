package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/response"
)

// RequireCallerType restricts a route to callers of the given kinds.
func RequireCallerType(allowed ...models.NotifiableType) gin.HandlerFunc {
	kinds := make(map[models.NotifiableType]struct{}, len(allowed))
	for _, k := range allowed {
		kinds[k] = struct{}{}
	}
	return func(c *gin.Context) {
		caller := CallerFrom(c)
		if caller == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing "+HeaderUserID+" header"))
			c.Abort()
			return
		}
		if _, ok := kinds[caller.Type]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAgent is RequireCallerType for helpdesk staff.
func RequireAgent() gin.HandlerFunc {
	return RequireCallerType(models.NotifiableUser)
}
