// Package main: 멤버 관리 대시보드 백엔드의 엔트리포인트입니다.
// 로그인/세션, 멤버 계정 및 권한 관리, 캐시 무효화 이벤트를 제공합니다.
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/valkey-io/valkey-go"

	"github.com/ardhanurfan/member-dashboard/internal/auth"
	"github.com/ardhanurfan/member-dashboard/internal/backend"
	"github.com/ardhanurfan/member-dashboard/internal/bootstrap"
	"github.com/ardhanurfan/member-dashboard/internal/config"
	"github.com/ardhanurfan/member-dashboard/internal/logging"
	"github.com/ardhanurfan/member-dashboard/internal/member"
	"github.com/ardhanurfan/member-dashboard/internal/revalidate"
	"github.com/ardhanurfan/member-dashboard/internal/server"
	"github.com/ardhanurfan/member-dashboard/internal/status"
	"github.com/ardhanurfan/member-dashboard/internal/store"
	"github.com/ardhanurfan/member-dashboard/internal/telemetry"
)

// Version: 빌드 시 ldflags로 주입됨
var Version = "dev"

func main() {
	// .env 파일 로드 (개발 환경용)
	_ = godotenv.Load()

	cfg := config.Load()
	ctx := context.Background()

	otelEnabled := cfg.OTELEnabled

	// 로거 생성 (파일 로깅 실패 시 stdout)
	logger := bootstrap.InitLogger(cfg.LogDirectory, cfg.LogLevel, otelEnabled)

	// 필수 설정 검증 (누락 시 즉시 종료)
	if missing := cfg.MissingRequired(); len(missing) > 0 {
		logger.Error("config_missing_required", slog.String("expected_env", strings.Join(missing, ", ")))
		os.Exit(1)
	}

	// OpenTelemetry 초기화 (선택적)
	var (
		otelProvider *telemetry.Provider
		err          error
	)
	if otelEnabled && cfg.OTELEndpoint != "" {
		otelProvider, err = telemetry.NewProvider(ctx, telemetry.Config{
			Enabled:        true,
			ServiceName:    cfg.OTELServiceName,
			ServiceVersion: Version,
			Environment:    cfg.Environment,
			OTLPEndpoint:   cfg.OTELEndpoint,
			OTLPInsecure:   cfg.OTLPInsecure,
			SampleRate:     cfg.OTELSampleRate,
		})
		if err != nil {
			logger.Warn("otel_init_failed", slog.Any("error", err))
		} else if otelProvider.IsEnabled() {
			logger.Info("otel_initialized",
				slog.String("endpoint", cfg.OTELEndpoint),
				slog.String("service", cfg.OTELServiceName),
				slog.Float64("sample_rate", cfg.OTELSampleRate),
			)
		}
	}

	logger.Info("member_dashboard_starting",
		slog.String("version", Version),
		slog.String("port", cfg.Port),
		slog.String("env", cfg.Environment),
		slog.String("tables_mode", cfg.TablesMode),
		slog.Bool("otel_enabled", otelEnabled),
	)

	serverApp, cleanup, err := initializeApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("app_init_failed", slog.Any("error", err))
		if cleanup != nil {
			cleanup()
		}
		os.Exit(1)
	}

	// Deferred cleanup (LIFO 순서)
	defer func() {
		if cleanup != nil {
			cleanup()
		}
		// OTel Provider 정리 (마지막에 실행)
		if otelProvider != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := otelProvider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("otel_shutdown_failed", slog.Any("error", err))
			} else {
				logger.Info("otel_shutdown_complete")
			}
		}
	}()

	if err := serverApp.Run(ctx); err != nil {
		logger.Error("app_run_failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// initializeApp: 애플리케이션 구성 요소를 초기화합니다.
func initializeApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*bootstrap.ServerApp, func(), error) {
	var cleanupFns []func()
	cleanup := func() {
		for i := len(cleanupFns) - 1; i >= 0; i-- {
			cleanupFns[i]()
		}
	}

	// Valkey 클라이언트 초기화 (세션 + 캐시 무효화)
	valkeyClient, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.ValkeyURL},
	})
	if err != nil {
		logger.Error("valkey_connect_failed", slog.Any("error", err))
		return nil, cleanup, err
	}
	cleanupFns = append(cleanupFns, func() {
		valkeyClient.Close()
		logger.Info("valkey_closed")
	})
	logger.Info("valkey_connected", slog.String("addr", cfg.ValkeyURL))

	sessions := auth.NewValkeySessionStore(valkeyClient, logging.Component(logger, "session"))

	// 외부 백엔드 클라이언트 (auth admin + tables)
	backendClient, err := backend.NewClient(backend.Config{
		BaseURL:    cfg.BackendURL,
		AnonKey:    cfg.BackendAnonKey,
		ServiceKey: cfg.BackendServiceKey,
		Timeout:    cfg.BackendTimeout,
	}, logging.Component(logger, "backend"))
	if err != nil {
		return nil, cleanup, err
	}
	logger.Info("backend_client_initialized", slog.String("url", backendClient.BaseURL()))

	checks := []status.Check{
		{Name: "backend-auth", Probe: func(ctx context.Context) error { return backendClient.Ping(ctx, "/auth/v1/health") }},
		{Name: "backend-rest", Probe: func(ctx context.Context) error { return backendClient.Ping(ctx, "/rest/v1/") }},
		{Name: "valkey", Probe: func(ctx context.Context) error {
			return valkeyClient.Do(ctx, valkeyClient.B().Ping().Build()).Error()
		}},
	}

	// member/permission 테이블 접근 방식 선택
	var repos member.Repositories
	switch cfg.TablesMode {
	case config.TablesModePostgres:
		db, dbErr := store.NewPostgres(ctx, store.PostgresConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		}, logging.Component(logger, "store"))
		if dbErr != nil {
			logger.Error("postgres_connect_failed", slog.Any("error", dbErr))
			return nil, cleanup, dbErr
		}
		cleanupFns = append(cleanupFns, func() {
			if err := db.Close(); err != nil {
				logger.Warn("postgres_close_failed", slog.Any("error", err))
			}
		})
		if cfg.DBAutoMigrate {
			if err := db.AutoMigrate(ctx); err != nil {
				return nil, cleanup, err
			}
		}
		checks = append(checks, status.Check{Name: "postgres", Probe: db.Ping})
		repos = db
	default:
		repos = backend.NewRESTRepositories(backendClient)
	}
	logger.Info("member_tables_initialized", slog.String("mode", cfg.TablesMode))

	// 캐시 무효화: 세대 카운터 + pub/sub 이벤트
	revalidation := revalidate.NewStore(valkeyClient, logging.Component(logger, "revalidate"))
	events := revalidate.NewHub(logging.Component(logger, "revalidate"))

	members := member.NewService(
		backend.NewAuthAdmin(backendClient),
		repos,
		revalidation,
		member.Config{MembersPath: cfg.MembersPath},
		logging.Component(logger, "member"),
	)

	verifier, err := auth.NewTokenVerifier(cfg.BackendJWTSecret)
	if err != nil {
		return nil, cleanup, err
	}
	authenticator := auth.NewAuthenticator(backendClient, verifier, auth.OperatorCredentials{
		User:     cfg.AdminUser,
		PassHash: cfg.AdminPassHash,
	}, logging.Component(logger, "auth"))

	statusCollector := status.NewCollector(Version, logger, checks...)
	logger.Info("status_collector_initialized", slog.Int("checks", len(checks)))

	httpServer := server.New(cfg, logger, server.Deps{
		Sessions:      sessions,
		Authenticator: authenticator,
		Members:       members,
		Revalidation:  revalidation,
		Events:        events,
		Status:        statusCollector,
	})

	serverApp := bootstrap.NewServerApp(
		"member-dashboard",
		logger,
		httpServer.HTTPServer(),
		30*time.Second,
	).WithTLS(cfg.TLSEnabled, cfg.TLSCertPath, cfg.TLSKeyPath).
		WithBackground("revalidate-hub", func(ctx context.Context) error {
			return events.Run(ctx, revalidation)
		})

	return serverApp, cleanup, nil
}
