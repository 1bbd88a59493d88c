package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/valkey-io/valkey-go"

	"github.com/ardhanurfan/member-dashboard/internal/auth"
	"github.com/ardhanurfan/member-dashboard/internal/config"
	"github.com/ardhanurfan/member-dashboard/internal/member"
	"github.com/ardhanurfan/member-dashboard/internal/revalidate"
	"github.com/ardhanurfan/member-dashboard/internal/status"
)

const (
	testSessionSecret = "test-session-secret"
	testPassword      = "password1"
)

// ===== fakes =====

type fakeAuthenticator struct {
	mu         sync.Mutex
	identities map[string]auth.Identity
	refreshErr error
	refreshed  int
}

func (f *fakeAuthenticator) Login(_ context.Context, email, password string) (auth.Identity, error) {
	identity, ok := f.identities[email]
	if !ok || password != testPassword {
		return auth.Identity{}, auth.ErrInvalidCredentials
	}
	return identity, nil
}

func (f *fakeAuthenticator) Refresh(_ context.Context, refreshToken string) (auth.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return auth.Identity{}, f.refreshErr
	}
	f.refreshed++
	return auth.Identity{
		UserID:         "u-admin",
		Email:          "admin@example.com",
		Role:           "admin",
		AccessToken:    "access-refreshed",
		RefreshToken:   refreshToken + "-next",
		TokenExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

type fakeAccounts struct{}

func (fakeAccounts) CreateAccount(_ context.Context, params member.NewAccount) (*member.Account, error) {
	return &member.Account{ID: "acc-1", Email: params.Email, Role: params.Role}, nil
}

func (fakeAccounts) UpdateAccount(_ context.Context, id string, update member.AccountUpdate) (*member.Account, error) {
	return &member.Account{ID: id, Email: update.Email, Role: update.Role}, nil
}

func (fakeAccounts) DeleteAccount(context.Context, string) error { return nil }

type memoryRepo struct {
	mu          sync.Mutex
	members     map[string]member.Member
	permissions []member.Permission
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{members: make(map[string]member.Member)}
}

func (r *memoryRepo) Admin() member.Repository                 { return r }
func (r *memoryRepo) ForCaller(member.Caller) member.Repository { return r }

func (r *memoryRepo) InsertMember(_ context.Context, m member.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.ID] = m
	return nil
}

func (r *memoryRepo) InsertPermission(_ context.Context, p member.Permission) (*member.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = "perm-1"
	p.CreatedAt = time.Now()
	r.permissions = append(r.permissions, p)
	return &p, nil
}

func (r *memoryRepo) UpdateMemberName(_ context.Context, id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return errors.New("member not found")
	}
	m.Name = name
	r.members[id] = m
	return nil
}

func (r *memoryRepo) UpdateMemberEmail(context.Context, string, string) error { return nil }

func (r *memoryRepo) UpdatePermission(context.Context, string, member.Role, member.Status) error {
	return nil
}

func (r *memoryRepo) DeleteMember(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
	return nil
}

func (r *memoryRepo) ListPermissions(context.Context) ([]member.PermissionWithMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []member.PermissionWithMember
	for _, p := range r.permissions {
		m := r.members[p.MemberID]
		rows = append(rows, member.PermissionWithMember{Permission: p, Member: &m})
	}
	return rows, nil
}

// ===== harness =====

type testEnv struct {
	server   *Server
	sessions *auth.ValkeySessionStore
	auth     *fakeAuthenticator
	repo     *memoryRepo
	hub      *revalidate.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mini := miniredis.RunT(t)
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{mini.Addr()},
		DisableCache:      true,
		ForceSingleClient: true,
	})
	if err != nil {
		t.Fatalf("failed to create valkey client: %v", err)
	}
	t.Cleanup(client.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := auth.NewValkeySessionStore(client, logger)
	revalidation := revalidate.NewStore(client, logger)
	hub := revalidate.NewHub(logger)
	repo := newMemoryRepo()

	authenticator := &fakeAuthenticator{identities: map[string]auth.Identity{
		"admin@example.com": {UserID: "u-admin", Email: "admin@example.com", Role: "admin", AccessToken: "access-admin"},
		"user@example.com":  {UserID: "u-user", Email: "user@example.com", Role: "user", AccessToken: "access-user"},
	}}

	cfg := &config.Config{
		Environment:             "test",
		Port:                    "0",
		SessionSecret:           testSessionSecret,
		CORSOrigins:             []string{"http://localhost:3000"},
		WriteRateLimitPerSecond: 100,
		WriteRateLimitBurst:     100,
	}

	srv := New(cfg, logger, Deps{
		Sessions:      sessions,
		Authenticator: authenticator,
		Members:       member.NewService(fakeAccounts{}, repo, revalidation, member.Config{}, logger),
		Revalidation:  revalidation,
		Events:        hub,
		Status:        status.NewCollector("test", logger),
	})

	return &testEnv{server: srv, sessions: sessions, auth: authenticator, repo: repo, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:5555"
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.server.Engine().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, email string) *http.Cookie {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/admin/api/auth/login", LoginRequest{Email: email, Password: testPassword}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: status=%d body=%s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) member.Result {
	t.Helper()
	result, err := member.ParseResult(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("parse result: %v (body=%s)", err, rec.Body.String())
	}
	return result
}

func validCreateInput() member.CreateInput {
	return member.CreateInput{
		Name:     "Jane Doe",
		Role:     member.RoleUser,
		Status:   member.StatusActive,
		Email:    "jane@example.com",
		Password: "secret123",
		Confirm:  "secret123",
	}
}

// ===== tests =====

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLogin_SetsSessionAndMeReturnsUser(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "admin@example.com")

	rec := env.do(t, http.MethodGet, "/admin/api/auth/me", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp MeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if resp.User.ID != "u-admin" || resp.User.Role != "admin" {
		t.Fatalf("unexpected user: %+v", resp.User)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/admin/api/auth/login", LoginRequest{Email: "admin@example.com", Password: "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			t.Fatalf("session cookie must not be set on failed login")
		}
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "admin@example.com")

	if rec := env.do(t, http.MethodPost, "/admin/api/auth/logout", nil, cookie); rec.Code != http.StatusOK {
		t.Fatalf("logout failed: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/admin/api/auth/me", nil, cookie); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestMembers_RequireSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/admin/api/members", validCreateInput(), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateMember_ForbiddenForUserRole(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "user@example.com")

	rec := env.do(t, http.MethodPost, "/admin/api/members", validCreateInput(), cookie)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	result := decodeResult(t, rec)
	if result.Error == nil || result.Error.Message != member.ForbiddenMessage || result.Error.Code != member.CodeForbidden {
		t.Fatalf("unexpected error envelope: %s", rec.Body.String())
	}
	if len(env.repo.members) != 0 {
		t.Fatalf("forbidden create must not touch tables")
	}
}

func TestCreateMember_AdminCreatesAndRevalidates(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "admin@example.com")

	rec := env.do(t, http.MethodPost, "/admin/api/members", validCreateInput(), cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Data  member.PermissionWithMember `json:"data"`
		Error *member.ResultError         `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != nil {
		t.Fatalf("unexpected error: %+v", body.Error)
	}
	if body.Data.ID != "perm-1" || body.Data.Member == nil || body.Data.Member.Email != "jane@example.com" {
		t.Fatalf("unexpected data: %+v", body.Data)
	}

	rec = env.do(t, http.MethodGet, "/admin/api/revalidate", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("revalidate generation: %d", rec.Code)
	}
	var gen RevalidateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &gen); err != nil {
		t.Fatalf("decode generation: %v", err)
	}
	if gen.Path != member.DefaultMembersPath || gen.Generation != 1 {
		t.Fatalf("unexpected generation: %+v", gen)
	}
}

func TestCreateMember_MalformedBody(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "admin@example.com")

	rec := env.do(t, http.MethodPost, "/admin/api/members", "{not json", cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	result := decodeResult(t, rec)
	if result.Error == nil || result.Error.Code != member.CodeInvalidInput {
		t.Fatalf("unexpected envelope: %s", rec.Body.String())
	}
}

func TestUpdateMemberBasic_AllowedForUserRole(t *testing.T) {
	env := newTestEnv(t)
	env.repo.members["m-1"] = member.Member{ID: "m-1", Name: "Old", Email: "m1@example.com"}
	cookie := env.login(t, "user@example.com")

	rec := env.do(t, http.MethodPatch, "/admin/api/members/m-1/basic", member.BasicInput{Name: "New"}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"data":null,"error":null}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if env.repo.members["m-1"].Name != "New" {
		t.Fatalf("name not updated: %+v", env.repo.members["m-1"])
	}
}

func TestUpdateMemberAdvance_RequiresPermissionID(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "admin@example.com")

	rec := env.do(t, http.MethodPatch, "/admin/api/members/m-1/advance", AdvanceRequest{Role: member.RoleAdmin, Status: member.StatusActive}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestUpdateMemberAdvance_AdminUpdatesAndRevalidates(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "admin@example.com")

	body := AdvanceRequest{PermissionID: "perm-1", Role: member.RoleAdmin, Status: member.StatusResigned}
	rec := env.do(t, http.MethodPatch, "/admin/api/members/m-1/advance", body, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"data":null,"error":null}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	assertMembersGeneration(t, env, cookie, 1)
}

func TestUpdateMemberAccount_AdminUpdatesAndRevalidates(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "admin@example.com")

	body := member.AccountInput{Email: "m1-new@example.com", Password: "secret99", Confirm: "secret99"}
	rec := env.do(t, http.MethodPatch, "/admin/api/members/m-1/account", body, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"data":null,"error":null}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	assertMembersGeneration(t, env, cookie, 1)
}

func assertMembersGeneration(t *testing.T, env *testEnv, cookie *http.Cookie, want int64) {
	t.Helper()

	rec := env.do(t, http.MethodGet, "/admin/api/revalidate", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("revalidate generation: %d", rec.Code)
	}
	var gen RevalidateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &gen); err != nil {
		t.Fatalf("decode generation: %v", err)
	}
	if gen.Path != member.DefaultMembersPath || gen.Generation != want {
		t.Fatalf("unexpected generation: %+v (want %d)", gen, want)
	}
}

func TestDeleteMember_ForbiddenForUserRole(t *testing.T) {
	env := newTestEnv(t)
	env.repo.members["m-1"] = member.Member{ID: "m-1"}
	cookie := env.login(t, "user@example.com")

	rec := env.do(t, http.MethodDelete, "/admin/api/members/m-1", nil, cookie)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if _, ok := env.repo.members["m-1"]; !ok {
		t.Fatalf("member must not be deleted")
	}
}

func TestReadMembers_EmptyListNotCached(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "user@example.com")

	rec := env.do(t, http.MethodGet, "/admin/api/members", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}
	if rec.Header().Get("ETag") != "" {
		t.Fatalf("member list must not carry an ETag")
	}
	if rec.Body.String() != `{"data":[],"error":null}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestHeartbeat_RefreshesExpiringBackendToken(t *testing.T) {
	env := newTestEnv(t)

	session, err := env.sessions.CreateSession(context.Background(), auth.Identity{
		UserID:         "u-admin",
		Email:          "admin@example.com",
		Role:           "admin",
		AccessToken:    "access-old",
		RefreshToken:   "refresh-old",
		TokenExpiresAt: time.Now().Add(10 * time.Second),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	cookie := &http.Cookie{Name: auth.SessionCookieName, Value: auth.SignSessionID(session.ID, testSessionSecret)}

	rec := env.do(t, http.MethodPost, "/admin/api/auth/heartbeat", HeartbeatRequest{}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp HeartbeatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if !resp.TokenRefreshed {
		t.Fatalf("expected token refresh: %s", rec.Body.String())
	}

	stored, err := env.sessions.GetSession(context.Background(), session.ID)
	if err != nil || stored == nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.AccessToken != "access-refreshed" || stored.RefreshToken != "refresh-old-next" {
		t.Fatalf("tokens not updated: %+v", stored)
	}
}

func TestHeartbeat_RejectedRefreshEndsSession(t *testing.T) {
	env := newTestEnv(t)
	env.auth.refreshErr = auth.ErrInvalidCredentials

	session, err := env.sessions.CreateSession(context.Background(), auth.Identity{
		UserID:         "u-admin",
		Role:           "admin",
		RefreshToken:   "refresh-revoked",
		TokenExpiresAt: time.Now().Add(5 * time.Second),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	cookie := &http.Cookie{Name: auth.SessionCookieName, Value: auth.SignSessionID(session.ID, testSessionSecret)}

	rec := env.do(t, http.MethodPost, "/admin/api/auth/heartbeat", HeartbeatRequest{}, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if stored, _ := env.sessions.GetSession(context.Background(), session.ID); stored != nil {
		t.Fatalf("session must be deleted after rejected refresh")
	}
}

func TestHeartbeat_TransientRefreshFailureKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	env.auth.refreshErr = errors.New("refresh token: backend unavailable")

	session, err := env.sessions.CreateSession(context.Background(), auth.Identity{
		UserID:         "u-admin",
		Role:           "admin",
		AccessToken:    "access-old",
		RefreshToken:   "refresh-old",
		TokenExpiresAt: time.Now().Add(5 * time.Second),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	cookie := &http.Cookie{Name: auth.SessionCookieName, Value: auth.SignSessionID(session.ID, testSessionSecret)}

	rec := env.do(t, http.MethodPost, "/admin/api/auth/heartbeat", HeartbeatRequest{}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp HeartbeatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if resp.TokenRefreshed {
		t.Fatalf("token must not be reported as refreshed: %s", rec.Body.String())
	}

	stored, err := env.sessions.GetSession(context.Background(), session.ID)
	if err != nil || stored == nil {
		t.Fatalf("session must survive a transient refresh failure: %v", err)
	}
	if stored.AccessToken != "access-old" {
		t.Fatalf("tokens must stay unchanged: %+v", stored)
	}
}

func TestRevalidateStream_DeliversEvents(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "admin@example.com")

	ts := httptest.NewServer(env.server.Engine())
	defer ts.Close()

	header := http.Header{}
	header.Set("Cookie", cookie.Name+"="+cookie.Value)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/admin/api/ws/revalidate"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Listeners() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("listener not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.hub.Broadcast(revalidate.Event{Path: member.DefaultMembersPath, Generation: 7, At: time.Now()})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev revalidate.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Path != member.DefaultMembersPath || ev.Generation != 7 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestStatusForError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{member.ErrInvalidInput, http.StatusBadRequest},
		{member.ErrUnauthenticated, http.StatusUnauthorized},
		{member.ErrForbidden, http.StatusForbidden},
		{errors.New("duplicate key value"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		if got := statusForError(tc.err); got != tc.want {
			t.Fatalf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
