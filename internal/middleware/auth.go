package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alumni-portal-api/internal/models"
	appErrors "github.com/noah-isme/alumni-portal-api/pkg/errors"
	"github.com/noah-isme/alumni-portal-api/pkg/response"
)

// ContextUserKey is the gin context key storing the authenticated *models.User.
const ContextUserKey = "currentUser"

// Authenticator resolves a raw credential to a user. Session and identity
// provider modes both implement it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Authenticate requires a credential from the session cookie or an
// Authorization bearer header and stores the resolved user on the context.
func Authenticate(auth Authenticator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := credential(c, cookieName)
		if token == "" {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			appErr := appErrors.FromError(err)
			if appErr.Status == http.StatusUnauthorized {
				_ = c.Error(err)
				response.Abort(c, appErrors.ErrUnauthorized)
				return
			}
			response.Abort(c, appErr)
			return
		}

		c.Header("Cache-Control", "no-store")
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by Authenticate.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}

func credential(c *gin.Context, cookieName string) string {
	if cookieName != "" {
		if cookie, err := c.Cookie(cookieName); err == nil && strings.TrimSpace(cookie) != "" {
			return strings.TrimSpace(cookie)
		}
	}

	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
