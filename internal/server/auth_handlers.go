package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ardhanurfan/member-dashboard/internal/auth"
	"github.com/ardhanurfan/member-dashboard/internal/config"
	"github.com/ardhanurfan/member-dashboard/internal/metrics"
)

// ===== Auth Handlers =====

const (
	loginFailureDelayStep = 500 * time.Millisecond
	maxLoginFailureDelay  = 3 * time.Second
)

// handleLogin: 이메일/비밀번호 로그인. 성공하면 서명된 세션 쿠키를 발급한다.
func (s *Server) handleLogin(c *gin.Context) {
	ip := c.ClientIP()

	allowed, remaining := s.rateLimiter.IsAllowed(ip)
	if !allowed {
		s.logger.Warn("login_rate_limited", slog.String("ip", ip))
		metrics.ObserveLogin("rate_limited")
		c.Header("Retry-After", strconv.Itoa(int(remaining.Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts", "retry_after": remaining.Seconds()})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request"})
		return
	}

	identity, err := s.authenticator.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.handleLoginFailure(c, ip, req.Email, err)
			return
		}
		s.logger.Error("login_backend_failed", slog.String("email", req.Email), slog.Any("error", err))
		metrics.ObserveLogin("error")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Authentication backend unavailable"})
		return
	}

	s.rateLimiter.RecordSuccess(ip)

	session, err := s.sessions.CreateSession(c.Request.Context(), identity)
	if err != nil {
		s.logger.Error("session_create_failed", slog.Any("error", err))
		metrics.ObserveLogin("error")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Session store unavailable"})
		return
	}

	signedSessionID := auth.SignSessionID(session.ID, s.cfg.SessionSecret)
	auth.SetSecureCookie(c, auth.SessionCookieName, signedSessionID, 0, s.cfg.ForceHTTPS)

	metrics.ObserveLogin("success")
	s.logger.Info("member_logged_in",
		slog.String("user_id", identity.UserID),
		slog.String("role", identity.Role),
		slog.String("ip", ip),
	)
	c.JSON(http.StatusOK, LoginResponse{Status: "ok", User: sessionUser(session)})
}

func (s *Server) handleLoginFailure(c *gin.Context, ip, email string, reason error) {
	failCount := s.rateLimiter.RecordFailure(ip)
	metrics.ObserveLogin("failure")

	s.logger.Warn("login_failed",
		slog.String("email", email),
		slog.String("ip", ip),
		slog.String("reason", reason.Error()),
		slog.Int("fail_count", failCount),
	)

	delay := min(time.Duration(failCount)*loginFailureDelayStep, maxLoginFailureDelay)
	time.Sleep(delay)

	c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication failed"})
}

// handleLogout: 세션 삭제 후 쿠키 제거
func (s *Server) handleLogout(c *gin.Context) {
	if sessionID, ok := auth.SessionIDFromCookie(c, s.cfg.SessionSecret); ok {
		s.sessions.DeleteSession(c.Request.Context(), sessionID)
	}

	auth.ClearSecureCookie(c, auth.SessionCookieName, s.cfg.ForceHTTPS)
	c.JSON(http.StatusOK, StatusResponse{Status: "ok", Message: "Logout successful"})
}

// handleHeartbeat: 세션 TTL 연장. 필요하면 세션 ID를 회전하고 백엔드 토큰을 갱신한다.
func (s *Server) handleHeartbeat(c *gin.Context) {
	sessionID, ok := auth.SessionIDFromCookie(c, s.cfg.SessionSecret)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req HeartbeatRequest
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	refreshed, absoluteExpired, err := s.sessions.RefreshSessionWithValidation(ctx, sessionID, req.Idle)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	if absoluteExpired {
		auth.ClearSecureCookie(c, auth.SessionCookieName, s.cfg.ForceHTTPS)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired", "absolute_expired": true})
		return
	}

	if req.Idle && !refreshed {
		c.JSON(http.StatusOK, HeartbeatResponse{Status: "idle", IdleRejected: true})
		return
	}

	if !refreshed {
		auth.ClearSecureCookie(c, auth.SessionCookieName, s.cfg.ForceHTTPS)
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Session expired"})
		return
	}

	response := HeartbeatResponse{Status: "ok"}

	tokenRefreshed, err := s.refreshBackendToken(c, sessionID)
	if err != nil {
		s.sessions.DeleteSession(ctx, sessionID)
		auth.ClearSecureCookie(c, auth.SessionCookieName, s.cfg.ForceHTTPS)
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Session expired"})
		return
	}
	response.TokenRefreshed = tokenRefreshed

	if s.cfg.SessionTokenRotation {
		newSession, rotateErr := s.sessions.RotateSession(ctx, sessionID)
		if rotateErr == nil {
			newSignedSessionID := auth.SignSessionID(newSession.ID, s.cfg.SessionSecret)
			auth.SetSecureCookie(c, auth.SessionCookieName, newSignedSessionID, 0, s.cfg.ForceHTTPS)
			response.Rotated = newSession.ID != sessionID
			response.AbsoluteExpiresAt = newSession.AbsoluteExpiresAt.Unix()
		}
	}

	c.JSON(http.StatusOK, response)
}

// refreshBackendToken: 백엔드 액세스 토큰이 곧 만료되면 refresh token으로 갱신한다.
// refresh token이 거부된 경우에만 에러를 반환한다. 백엔드 장애나 세션 저장소 오류는 로그만 남기고
// 다음 heartbeat에서 다시 시도한다.
func (s *Server) refreshBackendToken(c *gin.Context, sessionID string) (bool, error) {
	ctx := c.Request.Context()
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil || session == nil {
		return false, nil
	}
	if !session.NeedsTokenRefresh(time.Now(), config.SessionConfig.TokenRefreshMargin) {
		return false, nil
	}

	identity, err := s.authenticator.Refresh(ctx, session.RefreshToken)
	if err != nil {
		s.logger.Warn("backend_token_refresh_failed",
			slog.String("user_id", session.UserID),
			slog.Any("error", err),
		)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return false, err
		}
		return false, nil
	}

	if _, err := s.sessions.UpdateTokens(ctx, sessionID, identity); err != nil {
		s.logger.Error("session_token_update_failed", slog.Any("error", err))
		return false, nil
	}
	return true, nil
}

// handleMe: 현재 세션의 사용자 정보
func (s *Server) handleMe(c *gin.Context) {
	session := auth.SessionFromContext(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, MeResponse{
		User:              sessionUser(session),
		ExpiresAt:         session.ExpiresAt.Unix(),
		AbsoluteExpiresAt: session.AbsoluteExpiresAt.Unix(),
	})
}

func sessionUser(session *auth.Session) SessionUser {
	return SessionUser{
		ID:       session.UserID,
		Email:    session.Email,
		Role:     session.Role,
		Operator: session.Operator,
	}
}
