package middleware

import (
	"crypto/subtle"
	"net/http"

	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// CronAuth admits only requests carrying "Authorization: Bearer <secret>".
// With no secret configured every cron call is refused.
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if secret == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			utils.LogWarn("cron: unauthorized call", map[string]interface{}{"path": c.FullPath(), "client_ip": c.ClientIP()})
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Unauthorized", "invalid cron secret"))
			return
		}
		c.Next()
	}
}
