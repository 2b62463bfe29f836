// Package auth bridges the external identity provider into the platform.
// Authentication itself is delegated: a reverse proxy in front of the
// service validates the session and forwards the identity in trusted
// headers. This package provisions the user row and gates routes by role.
package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/db"
	"github.com/modelgate/modelgate/internal/model"
)

// Identity headers set by the authenticating reverse proxy.
const (
	HeaderSubject = "X-Auth-Subject"
	HeaderEmail   = "X-Auth-Email"
	HeaderName    = "X-Auth-Name"
)

const principalKey = "auth.principal"

// SessionMiddleware resolves the proxied identity headers to a User,
// provisioning the row on first sign-in. The first user ever provisioned
// becomes an admin.
func SessionMiddleware(database db.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetHeader(HeaderSubject)
		if subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		user, err := database.ProvisionUser(subject, c.GetHeader(HeaderEmail), c.GetHeader(HeaderName))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}

		c.Set(principalKey, user)
		c.Next()
	}
}

// RequireAdmin rejects callers whose provisioned user is not an admin. It
// must run after SessionMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user set by SessionMiddleware, or
// nil when the request is unauthenticated.
func CurrentUser(c *gin.Context) *model.User {
	value, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	user, ok := value.(*model.User)
	if !ok {
		return nil
	}
	return user
}

// AdminAuthMiddleware protects the admin API with HTTP basic auth.
func AdminAuthMiddleware(adminPassword string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, password, hasAuth := c.Request.BasicAuth()
		if !hasAuth || user != "admin" || password != adminPassword {
			c.Header("WWW-Authenticate", `Basic realm="Restricted"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
