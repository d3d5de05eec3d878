// internal/middleware/middleware_test.go
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/civilaviation/fop-backend/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("middleware-test-secret")
}

func echoIdentity(c *gin.Context) {
	actor, _ := utils.GetActorFromContext(c)
	tenant, _ := utils.GetTenantFromContext(c)
	role, _ := utils.GetRoleFromContext(c)
	c.String(http.StatusOK, actor+"|"+tenant+"|"+role)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthRequired(), TenantFromHeader(), echoIdentity)

	token, err := utils.GenerateJWT("officer@caa.example", "sxm-caa", RoleOfficer, time.Hour)
	require.NoError(t, err)
	expired, err := utils.GenerateJWT("officer@caa.example", "sxm-caa", RoleOfficer, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		tenant string
		code   int
		body   string
	}{
		{name: "missing header", code: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, code: http.StatusUnauthorized},
		{name: "expired token", header: "Bearer " + expired, code: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + token, code: http.StatusOK, body: "officer@caa.example|sxm-caa|officer"},
		{name: "claims win over header", header: "Bearer " + token, tenant: "other-caa", code: http.StatusOK, body: "officer@caa.example|sxm-caa|officer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.tenant != "" {
				req.Header.Set(TenantHeader, tt.tenant)
			}
			w := serve(r, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestTenantRequired(t *testing.T) {
	r := gin.New()
	r.GET("/quote", TenantFromHeader(), TenantRequired(), echoIdentity)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/quote", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/quote", nil)
	req.Header.Set(TenantHeader, "  sxm-caa ")
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "|sxm-caa|", w.Body.String())
}

func TestRequireRole(t *testing.T) {
	withRole := func(role string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if role != "" {
				c.Set("role", role)
			}
		}
	}

	for role, want := range map[string]int{
		RoleFinance:  http.StatusOK,
		RoleDirector: http.StatusOK,
		RoleAdmin:    http.StatusOK,
		RoleOperator: http.StatusForbidden,
		"":           http.StatusForbidden,
	} {
		r := gin.New()
		r.GET("/refund", withRole(role), RequireRole(RoleFinance, RoleDirector), echoIdentity)
		w := serve(r, httptest.NewRequest(http.MethodGet, "/refund", nil))
		assert.Equal(t, want, w.Code, role)
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 2)
	r := gin.New()
	r.GET("/", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	request := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":40000"
		return serve(r, req).Code
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1"))
	assert.Equal(t, http.StatusOK, request("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, request("10.0.0.1"))
	assert.Equal(t, http.StatusOK, request("10.0.0.2"))

	rl.cleanup(0)
	assert.Empty(t, rl.visitors)
	assert.Equal(t, http.StatusOK, request("10.0.0.1"))
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = serve(r, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestExtractResource(t *testing.T) {
	assert.Equal(t, "applications", extractResourceType("/v1/applications/5b7e0c8a-58a4-4a53-9d0f-0f3c1a6b7c11/submit"))
	assert.Equal(t, "fee-rates", extractResourceType("/v1/admin/fee-rates"))
	assert.Equal(t, "health", extractResourceType("/health"))

	id := extractResourceID("/v1/applications/5b7e0c8a-58a4-4a53-9d0f-0f3c1a6b7c11/submit")
	require.NotNil(t, id)
	assert.Equal(t, "5b7e0c8a-58a4-4a53-9d0f-0f3c1a6b7c11", id.String())
	assert.Nil(t, extractResourceID("/v1/admin/stats"))
}
