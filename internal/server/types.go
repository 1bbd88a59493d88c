// Package server: HTTP 서버 요청/응답 타입 정의
package server

import "github.com/ardhanurfan/member-dashboard/internal/member"

// ===== Common Types =====

// ErrorResponse: 공통 에러 응답
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// StatusResponse: 공통 상태 응답
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ===== Auth Types =====

// LoginRequest: 로그인 요청
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SessionUser: 로그인 사용자 정보
type SessionUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Operator bool   `json:"operator,omitempty"`
}

// LoginResponse: 로그인 응답
type LoginResponse struct {
	Status string      `json:"status"`
	User   SessionUser `json:"user"`
}

// HeartbeatRequest: 하트비트 요청
type HeartbeatRequest struct {
	Idle bool `json:"idle"`
}

// HeartbeatResponse: 하트비트 응답
type HeartbeatResponse struct {
	Status            string `json:"status"`
	Rotated           bool   `json:"rotated,omitempty"`
	TokenRefreshed    bool   `json:"token_refreshed,omitempty"`
	AbsoluteExpiresAt int64  `json:"absolute_expires_at,omitempty"`
	IdleRejected      bool   `json:"idle_rejected,omitempty"`
}

// MeResponse: 현재 세션 정보
type MeResponse struct {
	User              SessionUser `json:"user"`
	ExpiresAt         int64       `json:"expires_at"`
	AbsoluteExpiresAt int64       `json:"absolute_expires_at"`
}

// ===== Member Types =====

// AdvanceRequest: 역할/상태 수정 요청 (permission_id 포함)
type AdvanceRequest struct {
	PermissionID string        `json:"permission_id"`
	Role         member.Role   `json:"role"`
	Status       member.Status `json:"status"`
}

// RevalidateResponse: 경로 세대 응답
type RevalidateResponse struct {
	Path       string `json:"path"`
	Generation int64  `json:"generation"`
}
