// Package server: HTTP 서버 및 라우팅
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ardhanurfan/member-dashboard/internal/auth"
	"github.com/ardhanurfan/member-dashboard/internal/config"
	"github.com/ardhanurfan/member-dashboard/internal/member"
	"github.com/ardhanurfan/member-dashboard/internal/metrics"
	"github.com/ardhanurfan/member-dashboard/internal/middleware"
	"github.com/ardhanurfan/member-dashboard/internal/revalidate"
	"github.com/ardhanurfan/member-dashboard/internal/status"
)

// LoginService: 로그인/토큰 갱신 (auth.Authenticator)
type LoginService interface {
	Login(ctx context.Context, email, password string) (auth.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (auth.Identity, error)
}

// Deps: 서버 의존성
type Deps struct {
	Sessions      auth.SessionProvider
	Authenticator LoginService
	Members       *member.Service
	Revalidation  *revalidate.Store
	Events        *revalidate.Hub
	Status        *status.Collector
}

// Server: HTTP 서버
type Server struct {
	engine          *gin.Engine
	cfg             *config.Config
	logger          *slog.Logger
	sessions        auth.SessionProvider
	authenticator   LoginService
	rateLimiter     *auth.LoginRateLimiter
	writeLimiter    *middleware.IPRateLimiter
	members         *member.Service
	revalidation    *revalidate.Store
	events          *revalidate.Hub
	statusCollector *status.Collector
}

// New: 서버 생성
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// OTel 미들웨어: 활성화된 경우 모든 HTTP 요청을 추적함 (가장 앞에 배치)
	if cfg.OTELEnabled {
		serviceName := strings.TrimSpace(cfg.OTELServiceName)
		if serviceName == "" {
			serviceName = "member-dashboard"
		}
		engine.Use(otelgin.Middleware(serviceName))
		logger.Info("otel_http_middleware_enabled", slog.String("service", serviceName))
	}

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(auth.SecurityHeadersMiddleware())

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "ETag", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// ETag: API GET 응답에 조건부 요청 지원 (304 Not Modified)
	engine.Use(middleware.ETag(middleware.DefaultETagPrefix))

	s := &Server{
		engine:          engine,
		cfg:             cfg,
		logger:          logger,
		sessions:        deps.Sessions,
		authenticator:   deps.Authenticator,
		rateLimiter:     auth.NewLoginRateLimiter(),
		writeLimiter:    middleware.NewIPRateLimiter(cfg.WriteRateLimitPerSecond, cfg.WriteRateLimitBurst),
		members:         deps.Members,
		revalidation:    deps.Revalidation,
		events:          deps.Events,
		statusCollector: deps.Status,
	}

	s.setupRoutes()
	return s
}

// Engine: 테스트용 gin 엔진
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) setupRoutes() {
	api := s.engine.Group("/admin/api")

	s.setupAuthRoutes(api)

	// 인증 필요 라우트
	authenticated := api.Group("")
	authenticated.Use(auth.AuthMiddleware(s.sessions, s.cfg.SessionSecret, s.cfg.ForceHTTPS))

	authenticated.GET("/auth/me", s.handleMe)
	s.setupMemberRoutes(authenticated)
	s.setupRevalidateRoutes(authenticated)
	s.setupStatusRoutes(authenticated)

	s.setupHealthRoute()
	s.setupMetricsRoute()
}

// setupAuthRoutes: 인증 관련 라우트 (미들웨어 없음)
func (s *Server) setupAuthRoutes(api *gin.RouterGroup) {
	authGroup := api.Group("/auth")
	authGroup.POST("/login", s.handleLogin)
	authGroup.POST("/logout", s.handleLogout)
	authGroup.POST("/heartbeat", s.handleHeartbeat)
}

// setupMemberRoutes: 멤버 관리 라우트. 변경 요청에는 IP별 레이트 리밋 적용.
func (s *Server) setupMemberRoutes(authenticated *gin.RouterGroup) {
	members := authenticated.Group("/members")
	members.GET("", s.handleReadMembers)

	writes := members.Group("", middleware.RateLimit(s.writeLimiter))
	writes.POST("", s.handleCreateMember)
	writes.PATCH("/:id/basic", s.handleUpdateMemberBasic)
	writes.PATCH("/:id/advance", s.handleUpdateMemberAdvance)
	writes.PATCH("/:id/account", s.handleUpdateMemberAccount)
	writes.DELETE("/:id", s.handleDeleteMember)
}

// setupRevalidateRoutes: 캐시 무효화 세대 조회 및 이벤트 스트림
func (s *Server) setupRevalidateRoutes(authenticated *gin.RouterGroup) {
	authenticated.GET("/revalidate", s.handleRevalidateGeneration)
	authenticated.GET("/ws/revalidate", s.handleRevalidateStream)
}

// setupStatusRoutes: 의존 서비스 상태 라우트
func (s *Server) setupStatusRoutes(authenticated *gin.RouterGroup) {
	authenticated.GET("/status", s.handleAggregatedStatus)
	authenticated.GET("/ws/system-stats", s.handleSystemStatsStream)
}

// setupHealthRoute: 헬스체크 라우트 (인증 없음)
func (s *Server) setupHealthRoute() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// setupMetricsRoute: Prometheus 메트릭 라우트 (옵션: API 키 보호)
func (s *Server) setupMetricsRoute() {
	metrics.Route(s.engine, "/metrics", s.cfg.MetricsAPIKey)
}

// HTTPServer: net/http.Server 인스턴스를 반환합니다. TLS가 아니면 h2c로 감쌉니다.
func (s *Server) HTTPServer() *http.Server {
	var handler http.Handler = s.engine
	if !s.cfg.TLSEnabled {
		handler = h2c.NewHandler(s.engine, &http2.Server{})
	}
	return &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
