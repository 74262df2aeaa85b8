package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cafe_backend/internal/cache"
	"cafe_backend/internal/models"
	"cafe_backend/pkg/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestAuthMiddleware(t *testing.T) {
	jwt := utils.NewJWTManager("middleware-secret", time.Hour)
	engine := gin.New()
	engine.GET("/me", AuthMiddleware(jwt), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt64("userID"), "role": c.GetString("userRole")})
	})

	token, err := jwt.GenerateAccessToken(7, "priya", models.RoleStaff)
	require.NoError(t, err)

	w := serve(engine, http.MethodGet, "/me", bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7,"role":"STAFF"}`, w.Body.String())

	w = serve(engine, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(engine, http.MethodGet, "/me", http.Header{"Authorization": []string{"Token " + token}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := utils.NewJWTManager("another-secret", time.Hour)
	forged, err := other.GenerateAccessToken(7, "priya", models.RoleAdmin)
	require.NoError(t, err)
	w = serve(engine, http.MethodGet, "/me", bearer(forged))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// The query token is only honoured on websocket upgrades.
	w = serve(engine, http.MethodGet, "/me?token="+token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleAuthMiddleware(t *testing.T) {
	jwt := utils.NewJWTManager("middleware-secret", time.Hour)
	engine := gin.New()
	engine.POST("/admin/staff", AuthMiddleware(jwt), RoleAuthMiddleware(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	staffToken, err := jwt.GenerateAccessToken(7, "priya", models.RoleStaff)
	require.NoError(t, err)
	adminToken, err := jwt.GenerateAccessToken(1, "owner", models.RoleAdmin)
	require.NoError(t, err)

	w := serve(engine, http.MethodPost, "/admin/staff", bearer(staffToken))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), utils.ErrCodeForbidden)

	w = serve(engine, http.MethodPost, "/admin/staff", bearer(adminToken))
	assert.Equal(t, http.StatusCreated, w.Code)

	// Without AuthMiddleware there is no role to check.
	bare := gin.New()
	bare.GET("/x", RoleAuthMiddleware(models.RoleStaff), func(c *gin.Context) { c.Status(http.StatusOK) })
	w = serve(bare, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCronAuth(t *testing.T) {
	engine := gin.New()
	engine.POST("/cron/renew", CronAuth("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodPost, "/cron/renew", bearer("s3cret")).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodPost, "/cron/renew", bearer("guess")).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodPost, "/cron/renew", nil).Code)

	locked := gin.New()
	locked.POST("/cron/renew", CronAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(locked, http.MethodPost, "/cron/renew", bearer("")).Code)
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	engine := gin.New()
	engine.POST("/orders", RateLimit(cache.NewRateLimiter(client, "orders", 2, time.Minute)), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	assert.Equal(t, http.StatusCreated, serve(engine, http.MethodPost, "/orders", nil).Code)
	w := serve(engine, http.MethodPost, "/orders", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))

	w = serve(engine, http.MethodPost, "/orders", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), utils.ErrCodeTooManyRequests)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, assert.AnError
}

func (brokenLimiter) Limit() int { return 1 }

func TestRateLimit_FailsOpen(t *testing.T) {
	engine := gin.New()
	engine.POST("/orders", RateLimit(brokenLimiter{}), func(c *gin.Context) { c.Status(http.StatusCreated) })
	assert.Equal(t, http.StatusCreated, serve(engine, http.MethodPost, "/orders", nil).Code)
}
