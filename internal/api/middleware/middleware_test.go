package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdeye-sniper/sniper_service/pkg/auth"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
)

const secret = "ops-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Recovery(logger.NewNop()))
	r.GET("/secure", Authentication(secret, logger.NewNop()), RequireRole(auth.RoleOperator), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(KeyOperator))
	})
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	return r
}

func get(r http.Handler, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthentication(t *testing.T) {
	r := protectedRouter()
	token, _, err := auth.GenerateToken("ops-1", auth.RoleOperator, secret, "sniper_bot", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := get(r, "/secure", tc.header)
			assert.Equal(t, tc.status, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}

	w := get(r, "/secure", "Bearer "+token)
	assert.Equal(t, "ops-1", w.Body.String())
}

func TestRequireRole(t *testing.T) {
	r := protectedRouter()
	token, _, err := auth.GenerateToken("viewer", "viewer", secret, "sniper_bot", time.Hour)
	require.NoError(t, err)

	w := get(r, "/secure", "Bearer "+token)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRecovery(t *testing.T) {
	w := get(protectedRouter(), "/panic", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
}

func TestRequestIDPropagates(t *testing.T) {
	r := protectedRouter()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Body.String(), "req-123")
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, get(r, "/", "").Code)
	assert.Equal(t, http.StatusNoContent, get(r, "/", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/", "").Code)
}
