package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/provexam/provex-backend/internal/model"
	"github.com/provexam/provex-backend/internal/response"
	"github.com/provexam/provex-backend/internal/service"
)

const (
	// ContextKeySession is the Gin context key for the validated device session.
	ContextKeySession = "device_session"

	HeaderSessionToken      = "X-Session-Token"
	HeaderDeviceFingerprint = "X-Device-Fingerprint"
)

// RequireSession validates the session token and device fingerprint on every
// attempt-plane request. The fingerprint must match the one the session was
// admitted with; presenting a valid token from another device is refused.
func RequireSession(admission *service.AdmissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(HeaderSessionToken)
		if token == "" {
			// Fallback for WebSocket upgrades, which cannot send custom headers.
			token = c.Query("token")
		}
		if token == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		fingerprint := c.GetHeader(HeaderDeviceFingerprint)
		if fingerprint == "" {
			fingerprint = c.Query("fingerprint")
		}
		if fingerprint == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrFingerprintRequired)
			return
		}

		sess, err := admission.ValidateSession(c.Request.Context(), token, fingerprint)
		if err != nil {
			var invalid *service.SessionInvalidError
			if errors.As(err, &invalid) {
				switch invalid.Reason {
				case service.SessionExpired:
					response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionExpired)
				case service.SessionDeviceMismatch:
					response.AbortFail(c, http.StatusForbidden, response.ErrDeviceMismatch)
				default:
					response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionNotFound)
				}
				return
			}
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}

		c.Set(ContextKeySession, sess)
		c.Next()
	}
}

// GetSession retrieves the validated device session from the Gin context.
func GetSession(c *gin.Context) *model.DeviceSession {
	val, exists := c.Get(ContextKeySession)
	if !exists {
		return nil
	}
	sess, ok := val.(*model.DeviceSession)
	if !ok {
		return nil
	}
	return sess
}
