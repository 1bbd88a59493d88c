package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ardhanurfan/member-dashboard/internal/backend"
	"github.com/ardhanurfan/member-dashboard/internal/member"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// PasswordGrant: 백엔드 토큰 발급 API
type PasswordGrant interface {
	SignInWithPassword(ctx context.Context, email, password string) (*backend.Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*backend.Token, error)
}

// OperatorCredentials: 백엔드 계정 없이 로그인하는 운영자 계정 (첫 멤버 생성용)
type OperatorCredentials struct {
	User     string
	PassHash string
}

// Authenticator: 로그인/토큰 갱신
type Authenticator struct {
	grant    PasswordGrant
	verifier *TokenVerifier
	operator OperatorCredentials
	logger   *slog.Logger
}

// NewAuthenticator: 인증기 생성
func NewAuthenticator(grant PasswordGrant, verifier *TokenVerifier, operator OperatorCredentials, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{grant: grant, verifier: verifier, operator: operator, logger: logger}
}

// Login: 운영자 계정이면 bcrypt로, 아니면 백엔드 password grant로 확인한다.
func (a *Authenticator) Login(ctx context.Context, email, password string) (Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Identity{}, ErrInvalidCredentials
	}

	if a.operator.User != "" && email == a.operator.User {
		if a.operator.PassHash == "" {
			return Identity{}, ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword([]byte(a.operator.PassHash), []byte(password)); err != nil {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{
			UserID:   "operator:" + email,
			Email:    email,
			Role:     string(member.RoleAdmin),
			Operator: true,
		}, nil
	}

	tok, err := a.grant.SignInWithPassword(ctx, email, password)
	if err != nil {
		if backend.IsClientError(err) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("sign in: %w", err)
	}
	return a.identityFromToken(tok)
}

// Refresh: refresh_token으로 새 토큰을 받아 Identity를 다시 만든다.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (Identity, error) {
	if refreshToken == "" {
		return Identity{}, ErrInvalidCredentials
	}
	tok, err := a.grant.RefreshToken(ctx, refreshToken)
	if err != nil {
		if backend.IsClientError(err) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("refresh token: %w", err)
	}
	return a.identityFromToken(tok)
}

func (a *Authenticator) identityFromToken(tok *backend.Token) (Identity, error) {
	claims, err := a.verifier.Verify(tok.AccessToken)
	if err != nil {
		a.logger.Warn("access_token_rejected", slog.Any("error", err))
		return Identity{}, err
	}

	email := claims.Email
	if email == "" {
		email = tok.User.Email
	}
	expiresAt := tok.Expiry(time.Now())
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return Identity{
		UserID:         claims.Subject,
		Email:          email,
		Role:           claims.UserMetadata.Role,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenExpiresAt: expiresAt,
	}, nil
}
