package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/response"
)

// ContextUserKey is the gin context key storing the caller identity.
const ContextUserKey = "currentUser"

const (
	// HeaderUserID carries the authenticated caller id set by the upstream gateway.
	HeaderUserID = "X-User-ID"
	// HeaderUserType distinguishes agents (user) from customers (client).
	HeaderUserType = "X-User-Type"
)

// Caller is the identity forwarded by the gateway.
type Caller struct {
	ID   string
	Type models.NotifiableType
}

// Recipient returns the caller as a notification recipient.
func (c *Caller) Recipient() models.Recipient {
	return models.Recipient{ID: c.ID, Type: c.Type}
}

// Identity attaches the forwarded caller when present but does not block.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if id == "" {
			c.Next()
			return
		}
		kind := models.NotifiableType(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserType))))
		if kind != models.NotifiableClient {
			kind = models.NotifiableUser
		}
		c.Set(ContextUserKey, &Caller{ID: id, Type: kind})
		c.Next()
	}
}

// RequireIdentity rejects requests without a forwarded caller.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerFrom(c) == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing "+HeaderUserID+" header"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// CallerFrom returns the caller stored by Identity.
func CallerFrom(c *gin.Context) *Caller {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	caller, ok := value.(*Caller)
	if !ok {
		return nil
	}
	return caller
}
