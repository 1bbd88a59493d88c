// Package store: member/permission 테이블 직접 접근 (TABLES_MODE=postgres)
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/ardhanurfan/member-dashboard/internal/member"
)

// ErrDuplicateKey: unique 제약 위반
var ErrDuplicateKey = errors.New("duplicate key value violates unique constraint")

// PostgresConfig: 접속 정보
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
	pingTimeout     = 5 * time.Second
)

// Store: gorm 기반 member.Repository 구현
// 직접 접속은 항상 DB 소유자 권한이므로 Admin/ForCaller 모두 자기 자신을 돌려준다.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

var (
	_ member.Repository   = (*Store)(nil)
	_ member.Repositories = (*Store)(nil)
)

// New: 열린 gorm DB로 Store 생성
func New(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// NewPostgres: lib/pq 연결 위에 gorm을 올려 Store를 만든다.
func NewPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*Store, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	logger.Info("postgres_connected",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("database", cfg.Database),
	)
	return New(gormDB, logger), nil
}

// AutoMigrate: member, permission 테이블 생성/보정
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&memberModel{}, &permissionModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Ping: 연결 상태 확인 (status 수집용)
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close: 연결 종료
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Admin: member.Repositories
func (s *Store) Admin() member.Repository { return s }

// ForCaller: member.Repositories
func (s *Store) ForCaller(member.Caller) member.Repository { return s }

// InsertMember: member 행 삽입
func (s *Store) InsertMember(ctx context.Context, m member.Member) error {
	row := memberModel{ID: m.ID, Name: m.Name, Email: m.Email}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapDBError("insert member", err)
	}
	return nil
}

// InsertPermission: permission 행 삽입. id는 새 UUID.
func (s *Store) InsertPermission(ctx context.Context, p member.Permission) (*member.Permission, error) {
	row := permissionModel{
		ID:       uuid.NewString(),
		MemberID: p.MemberID,
		Role:     string(p.Role),
		Status:   string(p.Status),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, wrapDBError("insert permission", err)
	}
	out := toPermission(row)
	return &out, nil
}

// UpdateMemberName: 이름 수정 (대상 행이 없어도 오류 아님)
func (s *Store) UpdateMemberName(ctx context.Context, id, name string) error {
	return s.updateMember(ctx, id, "name", name)
}

// UpdateMemberEmail: 이메일 수정
func (s *Store) UpdateMemberEmail(ctx context.Context, id, email string) error {
	return s.updateMember(ctx, id, "email", email)
}

func (s *Store) updateMember(ctx context.Context, id, column, value string) error {
	err := s.db.WithContext(ctx).Model(&memberModel{}).Where("id = ?", id).Update(column, value).Error
	if err != nil {
		return wrapDBError("update member "+column, err)
	}
	return nil
}

// UpdatePermission: role/status 수정
func (s *Store) UpdatePermission(ctx context.Context, permissionID string, role member.Role, status member.Status) error {
	err := s.db.WithContext(ctx).Model(&permissionModel{}).
		Where("id = ?", permissionID).
		Updates(map[string]any{"role": string(role), "status": string(status)}).Error
	if err != nil {
		return wrapDBError("update permission", err)
	}
	return nil
}

// DeleteMember: permission 행과 member 행을 한 트랜잭션에서 삭제한다.
func (s *Store) DeleteMember(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("member_id = ?", id).Delete(&permissionModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&memberModel{}).Error
	})
	if err != nil {
		return wrapDBError("delete member", err)
	}
	return nil
}

// ListPermissions: permission 전체 + member 프리로드 (생성순)
func (s *Store) ListPermissions(ctx context.Context) ([]member.PermissionWithMember, error) {
	var rows []permissionModel
	err := s.db.WithContext(ctx).
		Preload("Member").
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapDBError("list permissions", err)
	}

	out := make([]member.PermissionWithMember, 0, len(rows))
	for _, r := range rows {
		out = append(out, member.PermissionWithMember{Permission: toPermission(r), Member: toMember(r.Member)})
	}
	return out, nil
}

func wrapDBError(op string, err error) error {
	if isDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 23505: unique_violation
		return string(pqErr.Code) == "23505"
	}

	// sqlite 등 드라이버별 메시지 fallback
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
