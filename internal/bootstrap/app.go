// Package bootstrap: 애플리케이션 초기화 및 실행을 위한 공통 유틸리티입니다.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// BackgroundTask: 서버와 함께 실행되는 작업. ctx가 취소되면 반환해야 합니다.
type BackgroundTask struct {
	Name string
	Run  func(ctx context.Context) error
}

// ServerApp: HTTP 서버를 포함하는 애플리케이션 실행 단위입니다.
type ServerApp struct {
	Name            string
	Logger          *slog.Logger
	Server          *http.Server
	ShutdownTimeout time.Duration
	// TLS 설정 (HTTP/2 지원)
	TLSEnabled  bool
	TLSCertPath string
	TLSKeyPath  string
	// 서버 수명에 묶인 작업 (예: 캐시 무효화 이벤트 구독)
	Background []BackgroundTask
}

// NewServerApp: 새로운 ServerApp 인스턴스를 생성합니다.
func NewServerApp(
	name string,
	logger *slog.Logger,
	server *http.Server,
	shutdownTimeout time.Duration,
) *ServerApp {
	return &ServerApp{
		Name:            name,
		Logger:          logger,
		Server:          server,
		ShutdownTimeout: shutdownTimeout,
	}
}

// WithTLS: TLS 설정을 추가합니다.
func (a *ServerApp) WithTLS(enabled bool, certPath, keyPath string) *ServerApp {
	a.TLSEnabled = enabled
	a.TLSCertPath = certPath
	a.TLSKeyPath = keyPath
	return a
}

// WithBackground: 서버와 함께 실행할 작업을 추가합니다.
func (a *ServerApp) WithBackground(name string, run func(ctx context.Context) error) *ServerApp {
	a.Background = append(a.Background, BackgroundTask{Name: name, Run: run})
	return a
}

// Run: 서버와 백그라운드 작업을 실행하고, SIGINT/SIGTERM 또는 ctx 취소 시 우아하게 종료합니다.
// 어느 하나라도 실패하면 나머지도 함께 중단됩니다.
func (a *ServerApp) Run(ctx context.Context) error {
	if a == nil {
		return nil
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(signalCtx)

	g.Go(a.serve)
	for _, task := range a.Background {
		g.Go(func() error { return a.runTask(gctx, task) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("wait for goroutines: %w", err)
	}
	return nil
}

func (a *ServerApp) serve() error {
	protocol := "http (h2c)"
	if a.TLSEnabled {
		protocol = "https (HTTP/2)"
	}
	a.Logger.Info("server_start",
		slog.String("name", a.Name),
		slog.String("addr", a.Server.Addr),
		slog.String("protocol", protocol),
		slog.Int("background_tasks", len(a.Background)),
	)

	var err error
	if a.TLSEnabled {
		err = a.Server.ListenAndServeTLS(a.TLSCertPath, a.TLSKeyPath)
	} else {
		err = a.Server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (a *ServerApp) runTask(ctx context.Context, task BackgroundTask) error {
	a.Logger.Info("background_task_started", slog.String("task", task.Name))
	if err := task.Run(ctx); err != nil {
		a.Logger.Error("background_task_failed", slog.String("task", task.Name), slog.Any("error", err))
		return fmt.Errorf("background task %s: %w", task.Name, err)
	}
	a.Logger.Info("background_task_stopped", slog.String("task", task.Name))
	return nil
}

func (a *ServerApp) shutdown() error {
	a.Logger.Info("shutdown_signal_received", slog.String("name", a.Name))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("server_shutdown_failed", slog.Any("error", err))
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.Logger.Info("server_stopped", slog.String("name", a.Name))
	return nil
}
