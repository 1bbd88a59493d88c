package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ardhanurfan/member-dashboard/internal/member"
)

// User: GoTrue 사용자 객체 (필요한 필드만)
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata"`
}

// UserMetadata: user_metadata (role 클레임)
type UserMetadata struct {
	Role string `json:"role,omitempty"`
}

// Token: 비밀번호/리프레시 grant 응답
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Expiry: 액세스 토큰 만료 시각
func (t *Token) Expiry(now time.Time) time.Time {
	if t.ExpiresAt > 0 {
		return time.Unix(t.ExpiresAt, 0)
	}
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

type createUserRequest struct {
	Email        string       `json:"email"`
	Password     string       `json:"password"`
	EmailConfirm bool         `json:"email_confirm"`
	UserMetadata UserMetadata `json:"user_metadata"`
}

type updateUserRequest struct {
	Email        string        `json:"email,omitempty"`
	Password     string        `json:"password,omitempty"`
	UserMetadata *UserMetadata `json:"user_metadata,omitempty"`
}

// AuthAdmin: GoTrue 관리자 API (service-role 자격). member.AccountAdmin 구현.
type AuthAdmin struct {
	client *Client
}

var _ member.AccountAdmin = (*AuthAdmin)(nil)

// NewAuthAdmin: 관리자 API 생성
func NewAuthAdmin(client *Client) *AuthAdmin {
	return &AuthAdmin{client: client}
}

// CreateAccount: POST /auth/v1/admin/users
func (a *AuthAdmin) CreateAccount(ctx context.Context, params member.NewAccount) (*member.Account, error) {
	var user User
	err := a.client.do(ctx, request{
		api:    apiAuth,
		method: http.MethodPost,
		path:   "/auth/v1/admin/users",
		body: createUserRequest{
			Email:        params.Email,
			Password:     params.Password,
			EmailConfirm: params.EmailConfirm,
			UserMetadata: UserMetadata{Role: string(params.Role)},
		},
	}, &user)
	if err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("create user: response has no id")
	}
	return toAccount(user), nil
}

// UpdateAccount: PUT /auth/v1/admin/users/{id}. 빈 필드는 보내지 않는다.
func (a *AuthAdmin) UpdateAccount(ctx context.Context, id string, update member.AccountUpdate) (*member.Account, error) {
	body := updateUserRequest{Email: update.Email, Password: update.Password}
	if update.Role != "" {
		body.UserMetadata = &UserMetadata{Role: string(update.Role)}
	}

	var user User
	err := a.client.do(ctx, request{
		api:    apiAuth,
		method: http.MethodPut,
		path:   "/auth/v1/admin/users/" + url.PathEscape(id),
		body:   body,
	}, &user)
	if err != nil {
		return nil, err
	}
	if user.ID == "" {
		user.ID = id
	}
	return toAccount(user), nil
}

// DeleteAccount: DELETE /auth/v1/admin/users/{id}
func (a *AuthAdmin) DeleteAccount(ctx context.Context, id string) error {
	return a.client.do(ctx, request{
		api:    apiAuth,
		method: http.MethodDelete,
		path:   "/auth/v1/admin/users/" + url.PathEscape(id),
	}, nil)
}

func toAccount(u User) *member.Account {
	return &member.Account{
		ID:    u.ID,
		Email: u.Email,
		Role:  member.Role(u.UserMetadata.Role),
	}
}

// SignInWithPassword: POST /auth/v1/token?grant_type=password
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Token, error) {
	return c.token(ctx, "password", map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	})
}

// RefreshToken: POST /auth/v1/token?grant_type=refresh_token
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *Client) token(ctx context.Context, grant string, body map[string]string) (*Token, error) {
	var tok Token
	err := c.do(ctx, request{
		api:    apiAuth,
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grant}},
		body:   body,
		// 토큰 발급은 사용자 토큰 없이 anon key로 호출
		headers: c.anonHeaders(),
	}, &tok)
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token grant %s: empty access token", grant)
	}
	return &tok, nil
}

func (c *Client) anonHeaders() map[string]string {
	if c.anonKey == "" {
		return nil
	}
	return map[string]string{
		"apikey":        c.anonKey,
		"Authorization": "Bearer " + c.anonKey,
	}
}
