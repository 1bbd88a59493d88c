package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader: 요청 ID 헤더
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID: 요청 ID 부여 (클라이언트 값이 있으면 재사용)
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFrom: 현재 요청 ID
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// LogAttr: 로그용 request_id 속성
func LogAttr(c *gin.Context) slog.Attr {
	return slog.String(requestIDKey, RequestIDFrom(c))
}
