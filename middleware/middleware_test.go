package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"campusline/metrics"
	"campusline/models"
	"campusline/session"
	"campusline/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(tokens *utils.TokenManager, revoker session.Revoker) *gin.Engine {
	r := gin.New()
	echo := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "role": GetRole(c)})
	}
	r.GET("/private", AuthMiddleware(tokens, revoker), echo)
	r.POST("/beacon", BeaconAuthMiddleware(tokens, revoker), echo)
	r.GET("/admin", AuthMiddleware(tokens, revoker), RequireRole(models.RoleAdmin), echo)
	r.GET("/staff", AuthMiddleware(tokens, revoker), RequirePrivileged(), echo)
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tokens := utils.NewTokenManager("secret", time.Hour)
	revoker := session.NewMemoryRevoker(time.Hour)
	r := newAuthRouter(tokens, revoker)

	token, err := tokens.GenerateToken("alice", models.RoleStudent)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/private", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/private", "garbage").Code)

	w := do(r, http.MethodGet, "/private", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"alice","role":"STUDENT"}`, w.Body.String())

	// query tokens are only honoured by the beacon route
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/private?token="+token, "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/beacon?token="+token, "").Code)

	require.NoError(t, revoker.Revoke(context.Background(), "alice", time.Now().Add(time.Minute)))
	w = do(r, http.MethodGet, "/private", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "revoked")
}

func TestRequireRole(t *testing.T) {
	tokens := utils.NewTokenManager("secret", time.Hour)
	r := newAuthRouter(tokens, nil)

	student, _ := tokens.GenerateToken("s", models.RoleStudent)
	instructor, _ := tokens.GenerateToken("i", models.RoleInstructor)
	admin, _ := tokens.GenerateToken("a", models.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", student).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", instructor).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin", admin).Code)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/staff", student).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/staff", instructor).Code)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"http://localhost:5173"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(registry)

	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", MetricsHandler(registry))

	do(r, http.MethodGet, "/items/1", "")
	do(r, http.MethodGet, "/items/2", "")
	do(r, http.MethodGet, "/health", "")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/items/:id", "2xx")))

	w := do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "campusline_http_requests_total")
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Logger(zap.NewNop()), Recovery(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := do(r, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`, w.Body.String())
}
