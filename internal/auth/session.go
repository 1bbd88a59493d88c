// Package auth: 대시보드 로그인, 세션 관리, role 클레임 추출
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"

	"github.com/ardhanurfan/member-dashboard/internal/config"
	"github.com/ardhanurfan/member-dashboard/internal/member"
)

const (
	SessionCookieName = "member_session"
	sessionKeyPrefix  = "session:member:"
)

// Identity: 로그인으로 확인된 사용자 정보
type Identity struct {
	UserID         string
	Email          string
	Role           string
	Operator       bool
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
}

// Session: 대시보드 세션 정보
type Session struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Email             string    `json:"email"`
	Role              string    `json:"role"`
	Operator          bool      `json:"operator,omitempty"`
	AccessToken       string    `json:"access_token,omitempty"`
	RefreshToken      string    `json:"refresh_token,omitempty"`
	TokenExpiresAt    time.Time `json:"token_expires_at"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"`
	LastRotatedAt     time.Time `json:"last_rotated_at"`
}

// Caller: 멤버 서비스에 전달할 요청자 정보
func (s *Session) Caller() *member.Caller {
	if s == nil {
		return nil
	}
	return &member.Caller{
		UserID:      s.UserID,
		Email:       s.Email,
		Role:        s.Role,
		AccessToken: s.AccessToken,
	}
}

// NeedsTokenRefresh: 백엔드 토큰이 margin 안에 만료되는지 여부 (운영자 세션은 항상 false)
func (s *Session) NeedsTokenRefresh(now time.Time, margin time.Duration) bool {
	if s == nil || s.Operator || s.RefreshToken == "" || s.TokenExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.TokenExpiresAt)
}

// SessionProvider: 세션 저장소 인터페이스
type SessionProvider interface {
	CreateSession(ctx context.Context, identity Identity) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ValidateSession(ctx context.Context, sessionID string) bool
	DeleteSession(ctx context.Context, sessionID string)
	RefreshSessionWithValidation(ctx context.Context, sessionID string, idle bool) (refreshed bool, absoluteExpired bool, err error)
	RotateSession(ctx context.Context, oldSessionID string) (*Session, error)
	UpdateTokens(ctx context.Context, sessionID string, identity Identity) (*Session, error)
}

// ValkeySessionStore: Valkey 기반 세션 저장소
type ValkeySessionStore struct {
	client valkey.Client
	logger *slog.Logger
	ttl    time.Duration
}

var _ SessionProvider = (*ValkeySessionStore)(nil)

// NewValkeySessionStore: Valkey 세션 저장소 생성
func NewValkeySessionStore(client valkey.Client, logger *slog.Logger) *ValkeySessionStore {
	return &ValkeySessionStore{
		client: client,
		logger: logger,
		ttl:    config.SessionConfig.ExpiryDuration,
	}
}

// CreateSession: 새 세션 생성
func (s *ValkeySessionStore) CreateSession(ctx context.Context, identity Identity) (*Session, error) {
	sessionID := generateSessionID()
	now := time.Now()
	session := &Session{
		ID:                sessionID,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.ttl),
		AbsoluteExpiresAt: now.Add(config.SessionConfig.AbsoluteTimeout),
	}
	applyIdentity(session, identity)

	if err := s.storeSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Debug("session_created",
		slog.String("session_id", truncateSessionID(sessionID)),
		slog.String("user_id", identity.UserID),
		slog.Duration("ttl", s.ttl),
	)
	return session, nil
}

func applyIdentity(session *Session, identity Identity) {
	session.UserID = identity.UserID
	session.Email = identity.Email
	session.Role = identity.Role
	session.Operator = identity.Operator
	session.AccessToken = identity.AccessToken
	session.RefreshToken = identity.RefreshToken
	session.TokenExpiresAt = identity.TokenExpiresAt
}

func (s *ValkeySessionStore) storeSession(ctx context.Context, session *Session) error {
	if ctx == nil {
		ctx = context.Background()
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	key := sessionKeyPrefix + session.ID
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	cmd := s.client.B().Set().Key(key).Value(string(data)).ExSeconds(int64(s.ttl.Seconds())).Build()
	if err := s.client.Do(storeCtx, cmd).Error(); err != nil {
		s.logger.Error("session_store_failed",
			slog.String("session_id", truncateSessionID(session.ID)),
			slog.Any("error", err),
		)
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *ValkeySessionStore) expireSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	expireCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	key := sessionKeyPrefix + sessionID
	resp := s.client.Do(expireCtx, s.client.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build())
	return resp.Error()
}

// GetSession: 세션 조회. 없으면 (nil, nil).
func (s *ValkeySessionStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	key := sessionKeyPrefix + sessionID
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if isValkeyNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// ValidateSession: 세션 유효성 검증
func (s *ValkeySessionStore) ValidateSession(ctx context.Context, sessionID string) bool {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil || session == nil {
		return false
	}
	if time.Now().After(session.AbsoluteExpiresAt) {
		s.DeleteSession(ctx, sessionID)
		return false
	}
	return true
}

// DeleteSession: 세션 삭제
func (s *ValkeySessionStore) DeleteSession(ctx context.Context, sessionID string) {
	if ctx == nil {
		ctx = context.Background()
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	key := sessionKeyPrefix + sessionID
	if err := s.client.Do(deleteCtx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		s.logger.Error("session_delete_failed", slog.String("session_id", truncateSessionID(sessionID)), slog.Any("error", err))
	}
}

// RefreshSessionWithValidation: idle 검증 포함 TTL 갱신
func (s *ValkeySessionStore) RefreshSessionWithValidation(ctx context.Context, sessionID string, idle bool) (bool, bool, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return false, false, err
	}
	if session == nil {
		return false, false, nil
	}

	if time.Now().After(session.AbsoluteExpiresAt) {
		s.DeleteSession(ctx, sessionID)
		return false, true, nil
	}

	if idle {
		_ = s.expireSession(ctx, sessionID, config.SessionConfig.IdleSessionTTL)
		return false, false, nil
	}

	if err := s.expireSession(ctx, sessionID, s.ttl); err != nil {
		return false, false, fmt.Errorf("refresh session ttl: %w", err)
	}
	return true, false, nil
}

// RotateSession: 세션 ID 교체. 회전 간격 이내면 기존 세션을 그대로 돌려준다.
func (s *ValkeySessionStore) RotateSession(ctx context.Context, oldSessionID string) (*Session, error) {
	oldSession, err := s.GetSession(ctx, oldSessionID)
	if err != nil {
		return nil, err
	}
	if oldSession == nil {
		return nil, fmt.Errorf("session not found")
	}

	rotationInterval := config.SessionConfig.RotationInterval
	if !oldSession.LastRotatedAt.IsZero() && time.Since(oldSession.LastRotatedAt) < rotationInterval {
		return oldSession, nil
	}

	if time.Now().After(oldSession.AbsoluteExpiresAt) {
		s.DeleteSession(ctx, oldSessionID)
		return nil, fmt.Errorf("session absolute timeout exceeded")
	}

	now := time.Now()
	newSession := *oldSession
	newSession.ID = generateSessionID()
	newSession.ExpiresAt = now.Add(s.ttl)
	newSession.LastRotatedAt = now

	if err := s.storeSession(ctx, &newSession); err != nil {
		return nil, err
	}

	// 동시 요청을 위해 이전 세션은 유예 기간 동안 유지
	_ = s.expireSession(ctx, oldSessionID, config.SessionConfig.GracePeriod)

	s.logger.Info("session_rotated",
		slog.String("old_session_id", truncateSessionID(oldSessionID)),
		slog.String("new_session_id", truncateSessionID(newSession.ID)),
	)
	return &newSession, nil
}

// UpdateTokens: 갱신된 백엔드 토큰과 클레임을 세션에 반영한다.
func (s *ValkeySessionStore) UpdateTokens(ctx context.Context, sessionID string, identity Identity) (*Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session not found")
	}

	applyIdentity(session, identity)
	session.ExpiresAt = time.Now().Add(s.ttl)
	if err := s.storeSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func generateSessionID() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func truncateSessionID(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8] + "..."
}

func isValkeyNil(err error) bool {
	return valkey.IsValkeyNil(err)
}
