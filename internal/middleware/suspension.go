package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lensbook-api/internal/models"
	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
	"github.com/noah-isme/lensbook-api/pkg/response"
)

// AccountLookup resolves the suspension state of a client.
type AccountLookup interface {
	ClientAccount(ctx context.Context, clientID string, actor models.Principal) (*models.ClientAccount, error)
}

// RequireActiveClient refuses clients whose suspension has not expired yet. Other roles pass.
func RequireActiveClient(accounts AccountLookup, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if principal.Role != models.RoleClient {
			c.Next()
			return
		}
		account, err := accounts.ClientAccount(c.Request.Context(), principal.UserID, principal)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if account.SuspendedAt(now()) {
			response.Error(c, appErrors.Clone(appErrors.ErrAccountSuspended,
				"account suspended until "+account.SuspendedUntil.UTC().Format(time.RFC3339)))
			c.Abort()
			return
		}
		c.Next()
	}
}
