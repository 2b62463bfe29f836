package auth

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/db"
	"github.com/modelgate/modelgate/internal/model"
	"github.com/stretchr/testify/assert"
)

func setupService(t *testing.T) db.Service {
	t.Helper()
	service, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("Failed to create test db service: %v", err)
	}
	return service
}

func identityRequest(subject, email, name string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if subject != "" {
		req.Header.Set(HeaderSubject, subject)
	}
	if email != "" {
		req.Header.Set(HeaderEmail, email)
	}
	if name != "" {
		req.Header.Set(HeaderName, name)
	}
	return req
}

func TestSessionMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := setupService(t)

	router := gin.New()
	router.Use(SessionMiddleware(service))
	router.GET("/whoami", func(c *gin.Context) {
		user := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"email": user.Email, "role": user.Role})
	})

	// No identity headers means the proxy did not authenticate the call.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, identityRequest("", "", ""))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// First sign-in provisions the user as admin.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, identityRequest("sub-1", "alice@example.com", "Alice"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"role":"admin"`)

	// Later sign-ins are plain users.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, identityRequest("sub-2", "bob@example.com", "Bob"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"role":"user"`)

	// Re-provisioning resolves the same admin row.
	user, err := service.ProvisionUser("sub-1", "alice@example.com", "Alice")
	assert.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, user.Role)
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := setupService(t)

	router := gin.New()
	router.Use(SessionMiddleware(service), RequireAdmin())
	router.GET("/whoami", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// sub-1 becomes admin, sub-2 does not.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, identityRequest("sub-1", "alice@example.com", "Alice"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, identityRequest("sub-2", "bob@example.com", "Bob"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCurrentUserOutsideSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, CurrentUser(c))
}

func TestAdminAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(AdminAuthMiddleware("secret"))
	router.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name     string
		user     string
		password string
		want     int
	}{
		{"valid", "admin", "secret", http.StatusOK},
		{"wrong password", "admin", "nope", http.StatusUnauthorized},
		{"wrong user", "root", "secret", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.SetBasicAuth(tc.user, tc.password)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}

	// Missing credentials entirely.
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))
}

func TestGenerateAPIKey(t *testing.T) {
	pattern := regexp.MustCompile(`^sk-[0-9a-f]{48}$`)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		key, err := GenerateAPIKey()
		assert.NoError(t, err)
		assert.Regexp(t, pattern, key)
		assert.False(t, seen[key], "keys must not repeat")
		seen[key] = true
	}
}
