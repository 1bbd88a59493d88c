// Package member: 멤버 계정과 권한(role/status) 관리
//
// 계정(auth user)과 member/permission 행은 모두 외부 백엔드가 소유한다.
// 이 패키지는 역할 검사 → 백엔드 호출 → 경로 캐시 무효화 순서만 책임진다.
package member

import (
	"context"
	"time"
)

// Role: 멤버 역할
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Status: 멤버 재직 상태
type Status string

const (
	StatusActive   Status = "active"
	StatusResigned Status = "resigned"
)

// Member: member 테이블 행 (id = 백엔드 auth user id)
type Member struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Permission: permission 테이블 행
type Permission struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"member_id"`
	Role      Role      `json:"role"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// PermissionWithMember: permission.*, member(*) 조회 결과
type PermissionWithMember struct {
	Permission
	Member *Member `json:"member"`
}

// Caller: 요청자의 세션 정보 (auth 세션에서 변환됨)
type Caller struct {
	UserID      string
	Email       string
	Role        string // 세션의 user_metadata.role 클레임 원문
	AccessToken string // 백엔드 사용자 토큰 (운영자 세션은 비어 있음)
}

// Account: 백엔드 auth 사용자
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// NewAccount: 계정 생성 파라미터
type NewAccount struct {
	Email        string
	Password     string
	EmailConfirm bool
	Role         Role
}

// AccountUpdate: 계정 수정 파라미터. 빈 값은 변경하지 않는다.
type AccountUpdate struct {
	Email    string
	Password string
	Role     Role
}

// AccountAdmin: 백엔드 auth 관리자 API
type AccountAdmin interface {
	CreateAccount(ctx context.Context, params NewAccount) (*Account, error)
	UpdateAccount(ctx context.Context, id string, update AccountUpdate) (*Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// Repository: member/permission 테이블 접근
type Repository interface {
	InsertMember(ctx context.Context, m Member) error
	InsertPermission(ctx context.Context, p Permission) (*Permission, error)
	UpdateMemberName(ctx context.Context, id, name string) error
	UpdateMemberEmail(ctx context.Context, id, email string) error
	UpdatePermission(ctx context.Context, permissionID string, role Role, status Status) error
	DeleteMember(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]PermissionWithMember, error)
}

// Repositories: 권한 범위별 Repository 제공자
// Admin은 service-role 자격으로, ForCaller는 요청자 토큰으로 접근한다.
type Repositories interface {
	Admin() Repository
	ForCaller(caller Caller) Repository
}

// Revalidator: 경로 캐시 무효화
type Revalidator interface {
	RevalidatePath(ctx context.Context, path string) error
}
