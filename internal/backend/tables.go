package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/ardhanurfan/member-dashboard/internal/member"
)

const (
	tableMember     = "member"
	tablePermission = "permission"
)

// Tables: PostgREST 테이블 API. token이 비어 있으면 service-role로 접근한다.
type Tables struct {
	client *Client
	token  string
}

var _ member.Repository = (*Tables)(nil)

type memberRow struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type permissionInsert struct {
	MemberID string        `json:"member_id"`
	Role     member.Role   `json:"role"`
	Status   member.Status `json:"status"`
}

type permissionRow struct {
	ID        string         `json:"id"`
	MemberID  string         `json:"member_id"`
	Role      member.Role    `json:"role"`
	Status    member.Status  `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	Member    *member.Member `json:"member,omitempty"`
}

func (r permissionRow) toPermission() member.Permission {
	return member.Permission{
		ID:        r.ID,
		MemberID:  r.MemberID,
		Role:      r.Role,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
}

func restPath(table string) string { return "/rest/v1/" + table }

func eq(column, value string) url.Values {
	return url.Values{column: {"eq." + value}}
}

func (t *Tables) call(ctx context.Context, method, table string, query url.Values, body any, headers map[string]string, out any) error {
	return t.client.do(ctx, request{
		api:     apiRest,
		method:  method,
		path:    restPath(table),
		query:   query,
		token:   t.token,
		body:    body,
		headers: headers,
	}, out)
}

// InsertMember: POST /rest/v1/member
func (t *Tables) InsertMember(ctx context.Context, m member.Member) error {
	return t.call(ctx, http.MethodPost, tableMember, nil, memberRow(m), nil, nil)
}

// InsertPermission: POST /rest/v1/permission (Prefer: return=representation)
func (t *Tables) InsertPermission(ctx context.Context, p member.Permission) (*member.Permission, error) {
	var rows []permissionRow
	err := t.call(ctx, http.MethodPost, tablePermission, nil,
		permissionInsert{MemberID: p.MemberID, Role: p.Role, Status: p.Status},
		map[string]string{"Prefer": "return=representation"},
		&rows,
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		// 표현 반환이 막혀 있으면 입력값을 돌려준다.
		return &p, nil
	}
	out := rows[0].toPermission()
	return &out, nil
}

// UpdateMemberName: PATCH /rest/v1/member?id=eq.{id}
func (t *Tables) UpdateMemberName(ctx context.Context, id, name string) error {
	return t.call(ctx, http.MethodPatch, tableMember, eq("id", id), map[string]string{"name": name}, nil, nil)
}

// UpdateMemberEmail: PATCH /rest/v1/member?id=eq.{id}
func (t *Tables) UpdateMemberEmail(ctx context.Context, id, email string) error {
	return t.call(ctx, http.MethodPatch, tableMember, eq("id", id), map[string]string{"email": email}, nil, nil)
}

// UpdatePermission: PATCH /rest/v1/permission?id=eq.{permissionID}
func (t *Tables) UpdatePermission(ctx context.Context, permissionID string, role member.Role, status member.Status) error {
	body := map[string]string{"role": string(role), "status": string(status)}
	return t.call(ctx, http.MethodPatch, tablePermission, eq("id", permissionID), body, nil, nil)
}

// DeleteMember: DELETE /rest/v1/member?id=eq.{id}
func (t *Tables) DeleteMember(ctx context.Context, id string) error {
	return t.call(ctx, http.MethodDelete, tableMember, eq("id", id), nil, nil, nil)
}

// ListPermissions: GET /rest/v1/permission?select=*,member(*)
func (t *Tables) ListPermissions(ctx context.Context) ([]member.PermissionWithMember, error) {
	var rows []permissionRow
	query := url.Values{"select": {"*,member(*)"}}
	if err := t.call(ctx, http.MethodGet, tablePermission, query, nil, nil, &rows); err != nil {
		return nil, err
	}

	out := make([]member.PermissionWithMember, 0, len(rows))
	for _, r := range rows {
		out = append(out, member.PermissionWithMember{Permission: r.toPermission(), Member: r.Member})
	}
	return out, nil
}

// RESTRepositories: 권한 범위별 Tables 제공자 (member.Repositories 구현)
type RESTRepositories struct {
	client *Client
}

var _ member.Repositories = (*RESTRepositories)(nil)

// NewRESTRepositories: REST 테이블 접근자 생성
func NewRESTRepositories(client *Client) *RESTRepositories {
	return &RESTRepositories{client: client}
}

// Admin: service-role 범위
func (r *RESTRepositories) Admin() member.Repository {
	return &Tables{client: r.client}
}

// ForCaller: 요청자 토큰 범위. 토큰이 없는 운영자 세션은 service-role로 접근한다.
func (r *RESTRepositories) ForCaller(caller member.Caller) member.Repository {
	return &Tables{client: r.client, token: caller.AccessToken}
}
