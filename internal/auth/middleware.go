package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKeySession: gin 컨텍스트에 저장되는 *Session 키
const ContextKeySession = "session"

// SecurityHeadersMiddleware: 보안 헤더 추가
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "frame-ancestors 'none'")
		c.Next()
	}
}

// AuthMiddleware: 쿠키 서명과 세션을 검증하고 *Session을 컨텍스트에 저장한다.
func AuthMiddleware(sessions SessionProvider, sessionSecret string, forceHTTPS bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		signedSessionID, err := c.Cookie(SessionCookieName)
		if err != nil || signedSessionID == "" {
			slog.Warn("auth_failed_no_cookie", slog.String("path", c.Request.URL.Path))
			abortUnauthorized(c)
			return
		}

		sessionID, valid := ValidateSessionSignature(signedSessionID, sessionSecret)
		if !valid {
			slog.Warn("auth_failed_invalid_signature",
				slog.String("path", c.Request.URL.Path),
				slog.String("session_prefix", truncateSessionID(signedSessionID)),
			)
			abortUnauthorized(c)
			return
		}

		session, err := sessions.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			slog.Error("auth_session_lookup_failed", slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
			return
		}
		if session == nil || time.Now().After(session.AbsoluteExpiresAt) {
			if session != nil {
				sessions.DeleteSession(c.Request.Context(), sessionID)
			}
			slog.Warn("auth_failed_session_invalid",
				slog.String("path", c.Request.URL.Path),
				slog.String("session_id", truncateSessionID(sessionID)),
			)
			ClearSecureCookie(c, SessionCookieName, forceHTTPS)
			abortUnauthorized(c)
			return
		}

		c.Set(ContextKeySession, session)
		c.Next()
	}
}

// SessionFromContext: AuthMiddleware가 저장한 세션. 없으면 nil.
func SessionFromContext(c *gin.Context) *Session {
	v, ok := c.Get(ContextKeySession)
	if !ok {
		return nil
	}
	session, _ := v.(*Session)
	return session
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}
