package metrics

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route: API 키로 보호되는 Prometheus 스크레이프 핸들러를 등록한다.
func Route(r gin.IRoutes, path, apiKey string) {
	r.GET(path, APIKeyAuth(apiKey), gin.WrapH(promhttp.Handler()))
}

// APIKeyAuth: 스크레이프 키 검사. 키가 비어 있으면 보호하지 않는다 (내부망 전제).
// X-API-Key 헤더 또는 Authorization: Bearer 토큰을 받는다.
func APIKeyAuth(expected string) gin.HandlerFunc {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return func(c *gin.Context) { c.Next() }
	}
	want := []byte(expected)

	return func(c *gin.Context) {
		provided, ok := scrapeKey(c.Request.Header)
		if !ok || subtle.ConstantTimeCompare([]byte(provided), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func scrapeKey(h http.Header) (string, bool) {
	if v := strings.TrimSpace(h.Get("X-API-Key")); v != "" {
		return v, true
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(h.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
