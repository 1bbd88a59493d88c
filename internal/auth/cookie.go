package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SignSessionID: HMAC 서명 추가
func SignSessionID(sessionID, secret string) string {
	if secret == "" {
		return sessionID
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return sessionID + "." + signature
}

// ValidateSessionSignature: HMAC 서명 검증
func ValidateSessionSignature(fullID, secret string) (string, bool) {
	if secret == "" {
		return fullID, true
	}
	sessionID, providedSig, ok := strings.Cut(fullID, ".")
	if !ok {
		return "", false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	expectedSig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(providedSig), []byte(expectedSig)) {
		return "", false
	}
	return sessionID, true
}

// SetSecureCookie: 보안 쿠키 설정
func SetSecureCookie(c *gin.Context, name, value string, maxAge int, forceHTTPS bool) {
	isSecure := c.Request.TLS != nil || forceHTTPS
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, value, maxAge, "/", "", isSecure, true)
}

// ClearSecureCookie: 쿠키 삭제
func ClearSecureCookie(c *gin.Context, name string, forceHTTPS bool) {
	isSecure := c.Request.TLS != nil || forceHTTPS
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, "", -1, "/", "", isSecure, true)
}

// SessionIDFromCookie: 서명 검증된 세션 ID. 쿠키가 없거나 서명이 틀리면 false.
func SessionIDFromCookie(c *gin.Context, secret string) (string, bool) {
	signed, err := c.Cookie(SessionCookieName)
	if err != nil || signed == "" {
		return "", false
	}
	return ValidateSessionSignature(signed, secret)
}
