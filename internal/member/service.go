package member

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ardhanurfan/member-dashboard/internal/metrics"
)

// DefaultMembersPath: 멤버 목록 화면의 캐시 경로
const DefaultMembersPath = "/dashboard/members"

// Config: 서비스 설정
type Config struct {
	MembersPath string
}

// Service: 멤버 생성/수정/삭제/조회
type Service struct {
	accounts    AccountAdmin
	repos       Repositories
	revalidator Revalidator
	path        string
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewService: 멤버 서비스 생성
func NewService(accounts AccountAdmin, repos Repositories, revalidator Revalidator, cfg Config, logger *slog.Logger) *Service {
	path := strings.TrimSpace(cfg.MembersPath)
	if path == "" {
		path = DefaultMembersPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts:    accounts,
		repos:       repos,
		revalidator: revalidator,
		path:        path,
		validate:    newValidator(),
		logger:      logger,
	}
}

// MembersPath: 변경 후 무효화하는 경로
func (s *Service) MembersPath() string { return s.path }

// CreateMember: 계정 생성 → member 행 → permission 행 순으로 만든다.
// 중간 단계가 실패해도 앞서 만든 계정/행은 되돌리지 않는다.
func (s *Service) CreateMember(ctx context.Context, caller *Caller, input CreateInput) (res *PermissionWithMember, err error) {
	const op = "create_member"
	defer s.observe(op, time.Now(), &err)

	if err := s.requireMutator(op, caller); err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	if err := validateInput(s.validate, op, input); err != nil {
		return nil, err
	}

	account, err := s.accounts.CreateAccount(ctx, NewAccount{
		Email:        input.Email,
		Password:     input.Password,
		EmailConfirm: true,
		Role:         input.Role,
	})
	if err != nil {
		return nil, backendError(op, err)
	}

	admin := s.repos.Admin()
	m := Member{ID: account.ID, Name: input.Name, Email: input.Email}
	if err := admin.InsertMember(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "member_insert_failed_account_kept",
			slog.String("member_id", account.ID),
			slog.Any("error", err),
		)
		return nil, backendError(op, err)
	}

	perm, permErr := admin.InsertPermission(ctx, Permission{
		MemberID: account.ID,
		Role:     input.Role,
		Status:   input.Status,
	})
	// permission 삽입 결과와 무관하게 목록 경로는 무효화한다.
	s.revalidate(ctx, op)
	if permErr != nil {
		return nil, backendError(op, permErr)
	}

	s.logger.InfoContext(ctx, "member_created",
		slog.String("member_id", account.ID),
		slog.String("role", string(input.Role)),
		slog.String("by", caller.UserID),
	)
	return &PermissionWithMember{Permission: *perm, Member: &m}, nil
}

// UpdateMemberBasicByID: 이름 수정. 역할 검사 없이 요청자 권한으로 수행한다.
// 마지막 테이블 호출 이후에는 성공 여부와 무관하게 목록 경로를 무효화한다 (다른 변경 작업도 동일).
func (s *Service) UpdateMemberBasicByID(ctx context.Context, caller *Caller, id string, input BasicInput) (err error) {
	const op = "update_member_basic"
	defer s.observe(op, time.Now(), &err)

	if caller == nil {
		return newError(CodeUnauthenticated, op, "unauthenticated", nil)
	}
	if err := requireID(op, "id", id); err != nil {
		return err
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := validateInput(s.validate, op, input); err != nil {
		return err
	}

	rowErr := s.repos.ForCaller(*caller).UpdateMemberName(ctx, id, input.Name)
	s.revalidate(ctx, op)
	if rowErr != nil {
		return backendError(op, rowErr)
	}

	s.logger.InfoContext(ctx, "member_basic_updated", slog.String("member_id", id))
	return nil
}

// UpdateMemberAdvanceByID: 계정 메타데이터의 role과 permission 행(role, status)을 수정한다.
func (s *Service) UpdateMemberAdvanceByID(ctx context.Context, caller *Caller, userID, permissionID string, input AdvanceInput) (err error) {
	const op = "update_member_advance"
	defer s.observe(op, time.Now(), &err)

	if err := s.requireMutator(op, caller); err != nil {
		return err
	}
	if err := requireID(op, "id", userID); err != nil {
		return err
	}
	if err := requireID(op, "permission_id", permissionID); err != nil {
		return err
	}
	if err := validateInput(s.validate, op, input); err != nil {
		return err
	}

	if _, err := s.accounts.UpdateAccount(ctx, userID, AccountUpdate{Role: input.Role}); err != nil {
		return backendError(op, err)
	}

	rowErr := s.repos.ForCaller(*caller).UpdatePermission(ctx, permissionID, input.Role, input.Status)
	s.revalidate(ctx, op)
	if rowErr != nil {
		return backendError(op, rowErr)
	}

	s.logger.InfoContext(ctx, "member_advance_updated",
		slog.String("member_id", userID),
		slog.String("permission_id", permissionID),
		slog.String("role", string(input.Role)),
		slog.String("status", string(input.Status)),
	)
	return nil
}

// UpdateMemberAccountByID: 계정 이메일(과 비밀번호)을 바꾸고 member.email을 맞춘다.
func (s *Service) UpdateMemberAccountByID(ctx context.Context, caller *Caller, userID string, input AccountInput) (err error) {
	const op = "update_member_account"
	defer s.observe(op, time.Now(), &err)

	if err := s.requireMutator(op, caller); err != nil {
		return err
	}
	if err := requireID(op, "id", userID); err != nil {
		return err
	}
	input.Email = strings.TrimSpace(input.Email)
	if err := validateInput(s.validate, op, input); err != nil {
		return err
	}

	update := AccountUpdate{Email: input.Email}
	if input.Password != "" {
		update.Password = input.Password
	}
	if _, err := s.accounts.UpdateAccount(ctx, userID, update); err != nil {
		return backendError(op, err)
	}

	rowErr := s.repos.ForCaller(*caller).UpdateMemberEmail(ctx, userID, input.Email)
	s.revalidate(ctx, op)
	if rowErr != nil {
		return backendError(op, rowErr)
	}

	s.logger.InfoContext(ctx, "member_account_updated",
		slog.String("member_id", userID),
		slog.Bool("password_changed", update.Password != ""),
	)
	return nil
}

// DeleteMemberByID: 계정을 삭제한 뒤 member 행을 삭제한다.
func (s *Service) DeleteMemberByID(ctx context.Context, caller *Caller, id string) (err error) {
	const op = "delete_member"
	defer s.observe(op, time.Now(), &err)

	if err := s.requireMutator(op, caller); err != nil {
		return err
	}
	if err := requireID(op, "id", id); err != nil {
		return err
	}

	if err := s.accounts.DeleteAccount(ctx, id); err != nil {
		return backendError(op, err)
	}

	rowErr := s.repos.ForCaller(*caller).DeleteMember(ctx, id)
	s.revalidate(ctx, op)
	if rowErr != nil {
		s.logger.WarnContext(ctx, "member_delete_failed_account_removed",
			slog.String("member_id", id),
			slog.Any("error", rowErr),
		)
		return backendError(op, rowErr)
	}

	s.logger.InfoContext(ctx, "member_deleted", slog.String("member_id", id))
	return nil
}

// ReadMembers: permission 목록을 member와 함께 조회한다. 결과는 캐시하지 않는다.
func (s *Service) ReadMembers(ctx context.Context, caller *Caller) (rows []PermissionWithMember, err error) {
	const op = "read_members"
	defer s.observe(op, time.Now(), &err)

	if caller == nil {
		return nil, newError(CodeUnauthenticated, op, "unauthenticated", nil)
	}

	rows, err = s.repos.ForCaller(*caller).ListPermissions(ctx)
	if err != nil {
		return nil, backendError(op, err)
	}
	if rows == nil {
		rows = []PermissionWithMember{}
	}
	return rows, nil
}

// requireMutator: 세션 role 클레임이 정확히 "user"이면 거부한다.
// 빈 role이나 그 외 값은 통과한다.
func (s *Service) requireMutator(op string, caller *Caller) error {
	if caller == nil {
		return newError(CodeUnauthenticated, op, "unauthenticated", nil)
	}
	if caller.Role == string(RoleUser) {
		s.logger.Warn("member_mutation_forbidden",
			slog.String("op", op),
			slog.String("user_id", caller.UserID),
		)
		return newError(CodeForbidden, op, ForbiddenMessage, nil)
	}
	return nil
}

func (s *Service) revalidate(ctx context.Context, op string) {
	if s.revalidator == nil {
		return
	}
	if err := s.revalidator.RevalidatePath(ctx, s.path); err != nil {
		s.logger.WarnContext(ctx, "revalidate_failed",
			slog.String("op", op),
			slog.String("path", s.path),
			slog.Any("error", err),
		)
	}
}

func (s *Service) observe(op string, start time.Time, errp *error) {
	result := "ok"
	if errp != nil && *errp != nil {
		result = strings.ToLower(string(CodeOf(*errp)))
	}
	metrics.ObserveMemberOperation(op, result, time.Since(start))
}

func requireID(op, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return newError(CodeInvalidInput, op, field+" is required", nil)
	}
	return nil
}
