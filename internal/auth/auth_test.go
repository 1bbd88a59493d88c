package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/valkey-io/valkey-go"
	"golang.org/x/crypto/bcrypt"

	"github.com/ardhanurfan/member-dashboard/internal/backend"
)

const testJWTSecret = "super-secret-jwt-token-with-at-least-32-characters"

func newTestSessionStore(t *testing.T) (*ValkeySessionStore, *miniredis.Miniredis) {
	t.Helper()

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

	return NewValkeySessionStore(client, slog.New(slog.NewTextHandler(io.Discard, nil))), mini
}

func signTestToken(t *testing.T, sub, email, role string, exp time.Time) string {
	t.Helper()

	claims := AccessClaims{
		Email:        email,
		UserMetadata: userMetadata{Role: role},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestSessionStore_CreateGetDelete(t *testing.T) {
	store, mini := newTestSessionStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, Identity{UserID: "u-1", Email: "a@example.com", Role: "user", AccessToken: "at"})
	if err != nil {
		t.Fatalf("CreateSession error: %v", err)
	}
	if !mini.Exists(sessionKeyPrefix + session.ID) {
		t.Fatalf("session key not stored")
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession error: %v", err)
	}
	if got == nil || got.UserID != "u-1" || got.Role != "user" || got.AccessToken != "at" {
		t.Fatalf("unexpected session: %+v", got)
	}
	caller := got.Caller()
	if caller.Role != "user" || caller.AccessToken != "at" {
		t.Fatalf("unexpected caller: %+v", caller)
	}

	if !store.ValidateSession(ctx, session.ID) {
		t.Fatalf("session should be valid")
	}
	store.DeleteSession(ctx, session.ID)
	if store.ValidateSession(ctx, session.ID) {
		t.Fatalf("deleted session should be invalid")
	}

	missing, err := store.GetSession(ctx, "missing")
	if err != nil || missing != nil {
		t.Fatalf("missing session must be (nil, nil), got %+v, %v", missing, err)
	}
}

func TestSessionStore_RotateKeepsIdentity(t *testing.T) {
	store, mini := newTestSessionStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, Identity{UserID: "u-1", Role: "admin", RefreshToken: "rt"})
	if err != nil {
		t.Fatalf("CreateSession error: %v", err)
	}

	rotated, err := store.RotateSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("RotateSession error: %v", err)
	}
	if rotated.ID == session.ID {
		t.Fatalf("session id must change")
	}
	if rotated.UserID != "u-1" || rotated.Role != "admin" || rotated.RefreshToken != "rt" {
		t.Fatalf("identity lost on rotation: %+v", rotated)
	}
	if !rotated.AbsoluteExpiresAt.Equal(session.AbsoluteExpiresAt) {
		t.Fatalf("absolute expiry must be kept")
	}
	if ttl := mini.TTL(sessionKeyPrefix + session.ID); ttl > 30*time.Second {
		t.Fatalf("old session must enter grace period, ttl=%v", ttl)
	}

	// 회전 간격 이내의 재요청은 같은 세션을 돌려준다.
	again, err := store.RotateSession(ctx, rotated.ID)
	if err != nil {
		t.Fatalf("RotateSession error: %v", err)
	}
	if again.ID != rotated.ID {
		t.Fatalf("rotation within interval must be a no-op")
	}
}

func TestSessionStore_RefreshWithValidation(t *testing.T) {
	store, mini := newTestSessionStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, Identity{UserID: "u-1"})
	if err != nil {
		t.Fatalf("CreateSession error: %v", err)
	}

	refreshed, expired, err := store.RefreshSessionWithValidation(ctx, session.ID, true)
	if err != nil || refreshed || expired {
		t.Fatalf("idle refresh mismatch: refreshed=%v expired=%v err=%v", refreshed, expired, err)
	}
	if ttl := mini.TTL(sessionKeyPrefix + session.ID); ttl > 10*time.Second {
		t.Fatalf("idle ttl not applied: %v", ttl)
	}

	refreshed, expired, err = store.RefreshSessionWithValidation(ctx, session.ID, false)
	if err != nil || !refreshed || expired {
		t.Fatalf("active refresh mismatch: refreshed=%v expired=%v err=%v", refreshed, expired, err)
	}
}

func TestSessionStore_UpdateTokens(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, Identity{UserID: "u-1", Role: "user", AccessToken: "old"})
	if err != nil {
		t.Fatalf("CreateSession error: %v", err)
	}

	updated, err := store.UpdateTokens(ctx, session.ID, Identity{UserID: "u-1", Role: "admin", AccessToken: "new", RefreshToken: "rt2"})
	if err != nil {
		t.Fatalf("UpdateTokens error: %v", err)
	}
	if updated.AccessToken != "new" || updated.Role != "admin" {
		t.Fatalf("tokens not updated: %+v", updated)
	}
	got, _ := store.GetSession(ctx, session.ID)
	if got.AccessToken != "new" || got.RefreshToken != "rt2" {
		t.Fatalf("stored session not updated: %+v", got)
	}
}

func TestSessionSignature(t *testing.T) {
	t.Parallel()

	signed := SignSessionID("abc123", "secret")
	id, ok := ValidateSessionSignature(signed, "secret")
	if !ok || id != "abc123" {
		t.Fatalf("signature should validate: id=%q ok=%v", id, ok)
	}
	if _, ok := ValidateSessionSignature(signed, "other"); ok {
		t.Fatalf("wrong secret must fail")
	}
	if _, ok := ValidateSessionSignature("abc123", "secret"); ok {
		t.Fatalf("unsigned id must fail")
	}
}

func TestNeedsTokenRefresh(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cases := []struct {
		name    string
		session *Session
		want    bool
	}{
		{"nil", nil, false},
		{"operator", &Session{Operator: true, RefreshToken: "rt", TokenExpiresAt: now}, false},
		{"far", &Session{RefreshToken: "rt", TokenExpiresAt: now.Add(time.Hour)}, false},
		{"near", &Session{RefreshToken: "rt", TokenExpiresAt: now.Add(30 * time.Second)}, true},
		{"expired", &Session{RefreshToken: "rt", TokenExpiresAt: now.Add(-time.Second)}, true},
		{"no refresh token", &Session{TokenExpiresAt: now}, false},
	}
	for _, tc := range cases {
		if got := tc.session.NeedsTokenRefresh(now, time.Minute); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestLoginRateLimiter_LocksOut(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	rl := newLoginRateLimiter(5, 5*time.Minute, 15*time.Minute)
	rl.now = func() time.Time { return now }

	for i := range 5 {
		if ok, _ := rl.IsAllowed("1.2.3.4"); !ok {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		rl.RecordFailure("1.2.3.4")
	}

	ok, remaining := rl.IsAllowed("1.2.3.4")
	if ok || remaining != 15*time.Minute {
		t.Fatalf("expected lockout of 15m, got ok=%v remaining=%v", ok, remaining)
	}
	if ok, _ := rl.IsAllowed("5.6.7.8"); !ok {
		t.Fatalf("other ip must not be locked")
	}

	now = now.Add(16 * time.Minute)
	if ok, _ := rl.IsAllowed("1.2.3.4"); !ok {
		t.Fatalf("lockout must expire")
	}

	rl.RecordFailure("9.9.9.9")
	rl.RecordSuccess("9.9.9.9")
	if _, exists := rl.failures["9.9.9.9"]; exists {
		t.Fatalf("success must reset attempts")
	}
}

func TestLoginRateLimiter_WindowResetAndSweep(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	rl := newLoginRateLimiter(loginMaxFailures, loginFailureWindow, loginLockout)
	rl.now = func() time.Time { return now }

	for range loginMaxFailures - 1 {
		rl.RecordFailure("1.2.3.4")
	}
	now = now.Add(loginFailureWindow + time.Second)
	if ok, _ := rl.IsAllowed("1.2.3.4"); !ok {
		t.Fatalf("failures outside the window must not count")
	}
	if got := rl.RecordFailure("1.2.3.4"); got != 1 {
		t.Fatalf("expected count to restart at 1, got %d", got)
	}

	rl.RecordFailure("5.6.7.8")
	now = now.Add(loginFailureWindow + loginLockout + time.Second)
	rl.sweep()
	if len(rl.failures) != 0 {
		t.Fatalf("stale records must be swept, got %d", len(rl.failures))
	}
}

func TestTokenVerifier(t *testing.T) {
	t.Parallel()

	verifier, err := NewTokenVerifier(testJWTSecret)
	if err != nil {
		t.Fatalf("NewTokenVerifier error: %v", err)
	}

	claims, err := verifier.Verify(signTestToken(t, "u-1", "a@example.com", "user", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.Subject != "u-1" || claims.UserMetadata.Role != "user" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := verifier.Verify(signTestToken(t, "u-1", "a@example.com", "user", time.Now().Add(-time.Hour))); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token must fail, got %v", err)
	}

	other, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u-1",
		Audience:  jwt.ClaimStrings{"anon"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testJWTSecret))
	if _, err := verifier.Verify(other); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong audience must fail, got %v", err)
	}

	if _, err := NewTokenVerifier(""); err == nil {
		t.Fatalf("empty secret must fail")
	}
}

type fakeGrant struct {
	token *backend.Token
	err   error
	calls int
}

func (f *fakeGrant) SignInWithPassword(context.Context, string, string) (*backend.Token, error) {
	f.calls++
	return f.token, f.err
}

func (f *fakeGrant) RefreshToken(context.Context, string) (*backend.Token, error) {
	f.calls++
	return f.token, f.err
}

func TestAuthenticator_Login(t *testing.T) {
	t.Parallel()

	verifier, _ := NewTokenVerifier(testJWTSecret)
	hash, err := bcrypt.GenerateFromPassword([]byte("operator-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	operator := OperatorCredentials{User: "ops@example.com", PassHash: string(hash)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("backend user", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		grant := &fakeGrant{token: &backend.Token{
			AccessToken:  signTestToken(t, "u-1", "a@example.com", "user", exp),
			RefreshToken: "rt",
		}}
		a := NewAuthenticator(grant, verifier, operator, logger)

		id, err := a.Login(context.Background(), "a@example.com", "pw")
		if err != nil {
			t.Fatalf("Login error: %v", err)
		}
		if id.UserID != "u-1" || id.Role != "user" || id.Operator || id.RefreshToken != "rt" {
			t.Fatalf("unexpected identity: %+v", id)
		}
		if !id.TokenExpiresAt.Equal(exp) {
			t.Fatalf("token expiry mismatch: %v != %v", id.TokenExpiresAt, exp)
		}
	})

	t.Run("operator", func(t *testing.T) {
		grant := &fakeGrant{}
		a := NewAuthenticator(grant, verifier, operator, logger)

		id, err := a.Login(context.Background(), "ops@example.com", "operator-pass")
		if err != nil {
			t.Fatalf("Login error: %v", err)
		}
		if !id.Operator || id.Role != "admin" || id.AccessToken != "" {
			t.Fatalf("unexpected operator identity: %+v", id)
		}
		if grant.calls != 0 {
			t.Fatalf("operator login must not call backend")
		}

		if _, err := a.Login(context.Background(), "ops@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("wrong operator password must fail, got %v", err)
		}
	})

	t.Run("backend rejects", func(t *testing.T) {
		grant := &fakeGrant{err: &backend.Error{Status: http.StatusBadRequest, Message: "Invalid login credentials"}}
		a := NewAuthenticator(grant, verifier, operator, logger)

		if _, err := a.Login(context.Background(), "a@example.com", "bad"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("backend down", func(t *testing.T) {
		grant := &fakeGrant{err: &backend.Error{Status: http.StatusServiceUnavailable, Message: "unavailable"}}
		a := NewAuthenticator(grant, verifier, operator, logger)

		_, err := a.Login(context.Background(), "a@example.com", "pw")
		if err == nil || errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected upstream error, got %v", err)
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	store, _ := newTestSessionStore(t)
	gin.SetMode(gin.TestMode)

	session, err := store.CreateSession(context.Background(), Identity{UserID: "u-1", Role: "admin"})
	if err != nil {
		t.Fatalf("CreateSession error: %v", err)
	}

	router := gin.New()
	router.GET("/me", AuthMiddleware(store, "secret", false), func(c *gin.Context) {
		s := SessionFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": s.UserID})
	})

	cases := []struct {
		name   string
		cookie string
		want   int
	}{
		{"no cookie", "", http.StatusUnauthorized},
		{"bad signature", session.ID + ".bad", http.StatusUnauthorized},
		{"unknown session", SignSessionID("unknown", "secret"), http.StatusUnauthorized},
		{"valid", SignSessionID(session.ID, "secret"), http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.cookie != "" {
			req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tc.cookie})
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: status mismatch: got %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}
