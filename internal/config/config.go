// Package config: 설정 관리
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// TablesMode: member/permission 테이블 접근 방식
const (
	TablesModeREST     = "rest"
	TablesModePostgres = "postgres"
)

// Config: 애플리케이션 설정
type Config struct {
	// 서버 설정
	Port         string
	Environment  string
	LogLevel     string
	ForceHTTPS   bool
	LogDirectory string
	CORSOrigins  []string

	// TLS 설정 (HTTP/2 지원)
	TLSEnabled  bool
	TLSCertPath string
	TLSKeyPath  string

	// 인증 설정 (운영자 계정 + 세션)
	AdminUser            string
	AdminPassHash        string
	SessionSecret        string
	SessionTokenRotation bool

	// Metrics 설정
	MetricsAPIKey string

	// 외부 백엔드 (auth + tables)
	BackendURL        string
	BackendAnonKey    string
	BackendServiceKey string
	BackendJWTSecret  string
	BackendTimeout    time.Duration

	// 테이블 접근 방식 (rest | postgres)
	TablesMode    string
	DBAutoMigrate bool
	Postgres      PostgresConfig

	// 캐시 무효화 대상 경로
	MembersPath string

	// 멤버 변경 API 레이트 리밋 (IP 기준)
	WriteRateLimitPerSecond float64
	WriteRateLimitBurst     int

	// Valkey
	ValkeyURL string

	// OTEL 설정
	OTELEnabled     bool
	OTELEndpoint    string
	OTELServiceName string
	OTLPInsecure    bool
	OTELSampleRate  float64
}

// PostgresConfig: 외부 백엔드 Postgres 직접 접속 정보
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// SessionConfig: 세션 관련 상수
var SessionConfig = struct {
	ExpiryDuration     time.Duration
	AbsoluteTimeout    time.Duration
	IdleSessionTTL     time.Duration
	GracePeriod        time.Duration
	RotationInterval   time.Duration
	TokenRefreshMargin time.Duration
}{
	ExpiryDuration:     30 * time.Minute,
	AbsoluteTimeout:    8 * time.Hour,
	IdleSessionTTL:     10 * time.Second,
	GracePeriod:        30 * time.Second,
	RotationInterval:   15 * time.Minute,
	TokenRefreshMargin: 60 * time.Second,
}

// Load: 환경 변수에서 설정 로드
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "30090"),
		Environment:  getEnv("ENV", "production"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		ForceHTTPS:   getEnvBool("FORCE_HTTPS", true),
		LogDirectory: getEnv("LOG_DIR", "/app/logs"),
		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		TLSEnabled:  getEnvBool("TLS_ENABLED", false),
		TLSCertPath: getEnv("TLS_CERT_PATH", "/certs/localhost.crt"),
		TLSKeyPath:  getEnv("TLS_KEY_PATH", "/certs/localhost.key"),

		AdminUser:            getEnv("ADMIN_USER", ""),
		AdminPassHash:        getEnvAny("ADMIN_PASS_HASH", "ADMIN_PASS_BCRYPT"),
		SessionSecret:        getEnvAny("SESSION_SECRET", "ADMIN_SECRET_KEY"),
		SessionTokenRotation: getEnvBool("SESSION_TOKEN_ROTATION", true),

		MetricsAPIKey: getEnv("METRICS_API_KEY", ""),

		BackendURL:        strings.TrimRight(getEnvAny("BACKEND_URL", "SUPABASE_URL"), "/"),
		BackendAnonKey:    getEnvAny("BACKEND_ANON_KEY", "SUPABASE_ANON_KEY"),
		BackendServiceKey: getEnvAny("BACKEND_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY"),
		BackendJWTSecret:  getEnvAny("BACKEND_JWT_SECRET", "SUPABASE_JWT_SECRET"),
		BackendTimeout:    getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),

		TablesMode:    strings.ToLower(getEnv("TABLES_MODE", TablesModeREST)),
		DBAutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "postgres"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},

		MembersPath: getEnv("MEMBERS_PATH", "/dashboard/members"),

		WriteRateLimitPerSecond: getEnvFloat("WRITE_RATE_LIMIT_PER_SECOND", 5),
		WriteRateLimitBurst:     getEnvInt("WRITE_RATE_LIMIT_BURST", 10),

		ValkeyURL: getEnv("VALKEY_URL", "valkey-cache:6379"),

		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317"),
		OTELServiceName: getEnv("OTEL_SERVICE_NAME", "member-dashboard"),
		OTLPInsecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELSampleRate:  getEnvFloat("OTEL_SAMPLE_RATE", 1.0),
	}
}

// MissingRequired: 비어 있는 필수 설정의 환경 변수 이름 목록
func (c *Config) MissingRequired() []string {
	var missing []string
	if strings.TrimSpace(c.SessionSecret) == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if strings.TrimSpace(c.BackendURL) == "" {
		missing = append(missing, "BACKEND_URL")
	}
	if strings.TrimSpace(c.BackendServiceKey) == "" {
		missing = append(missing, "BACKEND_SERVICE_KEY")
	}
	if strings.TrimSpace(c.BackendJWTSecret) == "" {
		missing = append(missing, "BACKEND_JWT_SECRET")
	}
	if c.TablesMode != TablesModeREST && c.TablesMode != TablesModePostgres {
		missing = append(missing, "TABLES_MODE")
	}
	return missing
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAny(keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return ""
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
