package bootstrap

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/ardhanurfan/member-dashboard/internal/logging"
)

// NewLogger: 파일 로깅이 불가능할 때 쓰는 stdout 로거
func NewLogger() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
		AddSource:  true,
	}))
}

// InitLogger: logDir/logLevel로 파일 로거를 만들고, 실패하면 stdout 로거로 대체한다.
// 대체된 경우 원인을 경고로 남긴다.
func InitLogger(logDir, logLevel string, enableOTel bool) *slog.Logger {
	cfg := logging.DefaultConfig()
	if logDir != "" {
		cfg.Dir = logDir
	}
	if logLevel != "" {
		cfg.Level = logLevel
	}

	logger, err := logging.NewLoggerWithOTel(cfg, enableOTel)
	if err != nil {
		logger = NewLogger()
		slog.SetDefault(logger)
		logger.Warn("file_logging_failed", slog.String("dir", cfg.Dir), slog.Any("error", err))
	}
	return logger
}
