// Package middleware: HTTP 미들웨어
package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultETagPrefix: ETag를 적용할 API 경로 접두사
const DefaultETagPrefix = "/admin/api/"

// etagWriter: 응답 본문을 버퍼링하여 ETag 계산 후 한 번에 기록
type etagWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *etagWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *etagWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

// ETag: GET API 응답에 ETag 헤더 추가 및 조건부 요청 처리
// - 응답 본문의 SHA256 해시(앞 8바이트)를 ETag로 사용
// - If-None-Match 헤더와 일치하면 304 Not Modified 반환
// - Cache-Control: no-store 응답은 건너뜀
func ETag(prefix string) gin.HandlerFunc {
	if prefix == "" {
		prefix = DefaultETagPrefix
	}
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || !strings.HasPrefix(c.Request.URL.Path, prefix) {
			c.Next()
			return
		}

		// WebSocket 제외
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			c.Next()
			return
		}

		original := c.Writer
		writer := &etagWriter{ResponseWriter: original, body: new(bytes.Buffer)}
		c.Writer = writer

		c.Next()

		c.Writer = original
		body := writer.body.Bytes()

		if original.Status() != http.StatusOK || len(body) == 0 ||
			strings.Contains(original.Header().Get("Cache-Control"), "no-store") {
			_, _ = original.Write(body)
			return
		}

		hash := sha256.Sum256(body)
		etag := `"` + hex.EncodeToString(hash[:8]) + `"`

		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			original.Header().Set("ETag", etag)
			original.WriteHeader(http.StatusNotModified)
			original.WriteHeaderNow()
			return
		}

		original.Header().Set("ETag", etag)
		if original.Header().Get("Cache-Control") == "" {
			original.Header().Set("Cache-Control", "private, max-age=0, must-revalidate")
		}
		_, _ = original.Write(body)
	}
}
