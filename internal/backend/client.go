// Package backend: 외부 인증/데이터베이스 백엔드(Supabase 호환) HTTP 클라이언트
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ardhanurfan/member-dashboard/internal/metrics"
)

const (
	apiAuth = "auth"
	apiRest = "rest"

	maxErrorBody = 64 << 10
)

// Config: 백엔드 접속 설정
type Config struct {
	BaseURL    string
	AnonKey    string
	ServiceKey string
	Timeout    time.Duration
}

// Client: 백엔드 HTTP 클라이언트
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient: 백엔드 클라이언트 생성
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if strings.TrimSpace(cfg.ServiceKey) == "" {
		return nil, fmt.Errorf("backend service key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    base,
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}, nil
}

// BaseURL: 백엔드 기본 URL
func (c *Client) BaseURL() string { return c.baseURL }

// request: 단일 백엔드 호출 파라미터
type request struct {
	api     string
	method  string
	path    string
	query   url.Values
	token   string // 비어 있으면 service key
	body    any
	headers map[string]string
}

// do: 요청을 보내고 2xx 응답 본문을 out으로 디코딩한다.
func (c *Client) do(ctx context.Context, req request, out any) error {
	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("marshal %s %s body: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	apiKey, bearer := c.serviceKey, c.serviceKey
	if req.token != "" {
		bearer = req.token
		if c.anonKey != "" {
			apiKey = c.anonKey
		}
	}
	httpReq.Header.Set("apikey", apiKey)
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.ObserveBackendRequest(req.api, 0)
		c.logger.WarnContext(ctx, "backend_request_failed",
			slog.String("method", req.method),
			slog.String("path", req.path),
			slog.Any("error", err),
		)
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()
	metrics.ObserveBackendRequest(req.api, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		berr := decodeError(resp.StatusCode, data)
		c.logger.DebugContext(ctx, "backend_request_rejected",
			slog.String("method", req.method),
			slog.String("path", req.path),
			slog.Int("status", resp.StatusCode),
			slog.String("message", berr.Message),
			slog.Duration("elapsed", time.Since(start)),
		)
		return berr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", req.method, req.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.method, req.path, err)
	}
	return nil
}

// Ping: 백엔드 엔드포인트가 응답하는지 확인한다 (status 수집용).
func (c *Client) Ping(ctx context.Context, path string) error {
	api := apiRest
	if strings.HasPrefix(path, "/auth/") {
		api = apiAuth
	}
	return c.do(ctx, request{api: api, method: http.MethodGet, path: path}, nil)
}
