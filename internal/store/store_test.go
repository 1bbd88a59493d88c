package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/ardhanurfan/member-dashboard/internal/member"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	s := New(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("AutoMigrate error: %v", err)
	}
	return s
}

func seedMember(t *testing.T, s *Store, id, name, email string, role member.Role) *member.Permission {
	t.Helper()

	ctx := context.Background()
	if err := s.InsertMember(ctx, member.Member{ID: id, Name: name, Email: email}); err != nil {
		t.Fatalf("InsertMember error: %v", err)
	}
	perm, err := s.InsertPermission(ctx, member.Permission{MemberID: id, Role: role, Status: member.StatusActive})
	if err != nil {
		t.Fatalf("InsertPermission error: %v", err)
	}
	return perm
}

func TestStore_InsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := seedMember(t, s, "11111111-1111-1111-1111-111111111111", "Alice", "alice@example.com", member.RoleAdmin)
	time.Sleep(2 * time.Millisecond)
	seedMember(t, s, "22222222-2222-2222-2222-222222222222", "Bob", "bob@example.com", member.RoleUser)

	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatalf("permission id/created_at not set: %+v", first)
	}

	rows, err := s.ListPermissions(ctx)
	if err != nil {
		t.Fatalf("ListPermissions error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Member == nil || rows[0].Member.Name != "Alice" || rows[0].Role != member.RoleAdmin {
		t.Fatalf("unexpected first row: %+v member=%+v", rows[0].Permission, rows[0].Member)
	}
	if rows[1].Member == nil || rows[1].Member.Email != "bob@example.com" {
		t.Fatalf("unexpected second row: %+v", rows[1].Member)
	}
}

func TestStore_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	seedMember(t, s, "11111111-1111-1111-1111-111111111111", "Alice", "alice@example.com", member.RoleAdmin)

	err := s.InsertMember(context.Background(), member.Member{
		ID:    "33333333-3333-3333-3333-333333333333",
		Name:  "Alice 2",
		Email: "alice@example.com",
	})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestStore_Updates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := "11111111-1111-1111-1111-111111111111"
	perm := seedMember(t, s, id, "Alice", "alice@example.com", member.RoleUser)

	if err := s.UpdateMemberName(ctx, id, "Alicia"); err != nil {
		t.Fatalf("UpdateMemberName error: %v", err)
	}
	if err := s.UpdateMemberEmail(ctx, id, "alicia@example.com"); err != nil {
		t.Fatalf("UpdateMemberEmail error: %v", err)
	}
	if err := s.UpdatePermission(ctx, perm.ID, member.RoleAdmin, member.StatusResigned); err != nil {
		t.Fatalf("UpdatePermission error: %v", err)
	}
	// 대상이 없는 수정은 오류가 아니다.
	if err := s.UpdateMemberName(ctx, "missing", "x"); err != nil {
		t.Fatalf("update of missing row must not fail: %v", err)
	}

	rows, err := s.ListPermissions(ctx)
	if err != nil {
		t.Fatalf("ListPermissions error: %v", err)
	}
	got := rows[0]
	if got.Member.Name != "Alicia" || got.Member.Email != "alicia@example.com" {
		t.Fatalf("member not updated: %+v", got.Member)
	}
	if got.Role != member.RoleAdmin || got.Status != member.StatusResigned {
		t.Fatalf("permission not updated: %+v", got.Permission)
	}
}

func TestStore_DeleteMemberRemovesPermissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := "11111111-1111-1111-1111-111111111111"
	seedMember(t, s, id, "Alice", "alice@example.com", member.RoleUser)
	seedMember(t, s, "22222222-2222-2222-2222-222222222222", "Bob", "bob@example.com", member.RoleUser)

	if err := s.DeleteMember(ctx, id); err != nil {
		t.Fatalf("DeleteMember error: %v", err)
	}

	rows, err := s.ListPermissions(ctx)
	if err != nil {
		t.Fatalf("ListPermissions error: %v", err)
	}
	if len(rows) != 1 || rows[0].MemberID == id {
		t.Fatalf("expected only Bob to remain, got %+v", rows)
	}
}

func TestStore_RepositoriesShareConnection(t *testing.T) {
	s := newTestStore(t)

	if s.Admin() != member.Repository(s) || s.ForCaller(member.Caller{AccessToken: "tok"}) != member.Repository(s) {
		t.Fatalf("store must serve both scopes")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping error: %v", err)
	}
}

func TestIsDuplicateKeyError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{gorm.ErrDuplicatedKey, true},
		{&pq.Error{Code: "23505"}, true},
		{&pq.Error{Code: "23503"}, false},
		{errors.New("UNIQUE constraint failed: member.email"), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := isDuplicateKeyError(tc.err); got != tc.want {
			t.Fatalf("isDuplicateKeyError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
