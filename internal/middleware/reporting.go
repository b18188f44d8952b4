package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/provexam/provex-backend/internal/config"
	"github.com/provexam/provex-backend/internal/response"
)

// RequireReportingKey guards the read-only reporting plane with a static
// bearer key. An empty configured key disables the plane entirely.
func RequireReportingKey(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.ReportingKey == "" {
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}

		presented := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				presented = parts[1]
			}
		}
		if presented == "" {
			// Fallback for WebSocket upgrades, which cannot send headers.
			presented = c.Query("key")
		}
		if presented == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrReportingKeyNeeded)
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(cfg.ReportingKey)) != 1 {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrReportingKeyNeeded)
			return
		}

		c.Next()
	}
}
