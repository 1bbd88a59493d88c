package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessTokenAudience: 로그인된 사용자 토큰의 aud
const accessTokenAudience = "authenticated"

var ErrInvalidToken = errors.New("invalid access token")

// AccessClaims: 백엔드 액세스 토큰 클레임
type AccessClaims struct {
	Email        string       `json:"email"`
	UserMetadata userMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

type userMetadata struct {
	Role string `json:"role"`
}

// TokenVerifier: HS256 액세스 토큰 검증기
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier: 백엔드 JWT 시크릿으로 검증기 생성
func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithAudience(accessTokenAudience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
	}, nil
}

// Verify: 서명/만료/aud를 확인하고 클레임을 돌려준다.
func (v *TokenVerifier) Verify(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
