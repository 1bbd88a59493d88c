// Package logging: slog 로거 구성 (tint 출력, lumberjack 파일 로테이션, 민감 값 마스킹, OTel 상관관계)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogFileName  = "member-dashboard.log"
	combinedLogFileName = "combined.log"
	redactedValue       = "[REDACTED]"
)

// 로그에 원문을 남기지 않는 속성 키 (비밀번호, 백엔드 토큰, 세션 쿠키)
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"confirm":       {},
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
	"apikey":        {},
	"cookie":        {},
}

// Config: 로깅 설정
type Config struct {
	Level      string // debug, info, warn, error
	Dir        string // 로그 디렉토리 (비어있으면 stdout만)
	FileName   string // 서비스 로그 파일명 (비어있으면 member-dashboard.log)
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig: 기본 로깅 설정
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Dir:        "/app/logs",
		FileName:   defaultLogFileName,
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 7,
		Compress:   true,
	}
}

func (c Config) validateRotation() error {
	if c.MaxSizeMB <= 0 || c.MaxBackups <= 0 || c.MaxAgeDays <= 0 {
		return fmt.Errorf("invalid log config: size=%d backups=%d age_days=%d", c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	}
	return nil
}

// Component: component 속성이 붙은 하위 로거
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", name))
}

// NewLogger: OTel 상관관계 없이 로거를 만든다.
func NewLogger(cfg Config) (*slog.Logger, error) {
	return NewLoggerWithOTel(cfg, false)
}

// NewLoggerWithOTel: 로거를 만들고 slog 기본 로거로 등록한다.
// Dir이 비어 있으면 stdout에만, 아니면 stdout + 서비스 파일 + combined.log에 쓴다.
func NewLoggerWithOTel(cfg Config, enableOTel bool) (*slog.Logger, error) {
	level := parseLevel(cfg.Level)

	logDir := strings.TrimSpace(cfg.Dir)
	if logDir == "" {
		logger := build(os.Stdout, level, false, enableOTel)
		slog.SetDefault(logger)
		return logger, nil
	}

	files, err := openRotatedFiles(logDir, cfg)
	if err != nil {
		return nil, err
	}

	writers := []io.Writer{os.Stdout}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		writers = append(writers, f)
		paths = append(paths, f.Filename)
	}

	logger := build(io.MultiWriter(writers...), level, true, enableOTel)
	slog.SetDefault(logger)
	logger.Info("file_logging_enabled",
		slog.Any("files", paths),
		slog.Bool("otel_correlation", enableOTel),
	)
	return logger, nil
}

// openRotatedFiles: 서비스 로그와 combined.log 로테이터를 준비한다.
func openRotatedFiles(dir string, cfg Config) ([]*lumberjack.Logger, error) {
	if err := cfg.validateRotation(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	name := strings.TrimSpace(cfg.FileName)
	if name == "" {
		name = defaultLogFileName
	}

	rotator := func(file string, sizeMB int) *lumberjack.Logger {
		return &lumberjack.Logger{
			Filename:   filepath.Join(dir, file),
			MaxSize:    sizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}
	// combined.log는 같은 호스트의 다른 서비스와 공유하므로 용량을 넉넉히 둔다.
	return []*lumberjack.Logger{
		rotator(name, cfg.MaxSizeMB),
		rotator(combinedLogFileName, cfg.MaxSizeMB*3),
	}, nil
}

func build(w io.Writer, level slog.Level, noColor, enableOTel bool) *slog.Logger {
	var handler slog.Handler = tint.NewHandler(w, &tint.Options{
		Level:       level,
		TimeFormat:  time.RFC3339,
		AddSource:   true,
		NoColor:     noColor,
		ReplaceAttr: redactSensitive,
	})
	if enableOTel {
		handler = &OTelHandler{inner: handler}
	}
	return slog.New(handler)
}

// redactSensitive: 민감 키의 값을 마스킹한다. 그룹 안의 키도 대상이다.
func redactSensitive(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redactedValue)
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
