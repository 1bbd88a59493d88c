// Package status: 의존 서비스 상태 수집 (외부 백엔드, Valkey, DB)
package status

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"
)

const (
	probeTimeout       = 3 * time.Second
	maxConcurrentProbe = 4
)

// ServiceStatus: 개별 의존 서비스 상태
type ServiceStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// AggregatedStatus: 통합 상태 응답
type AggregatedStatus struct {
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	StartedAt  int64  `json:"startedAt"`
	Goroutines int    `json:"goroutines"`

	Services []ServiceStatus `json:"services"`

	AvailableServices int `json:"availableServices"`
	TotalServices     int `json:"totalServices"`
}

// Check: 이름 붙은 상태 확인 함수. nil 반환이면 정상.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Collector: 의존 서비스 상태 수집기
type Collector struct {
	checks    []Check
	logger    *slog.Logger
	startTime time.Time
	version   string
}

// NewCollector: 상태 수집기 생성
func NewCollector(version string, logger *slog.Logger, checks ...Check) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		checks:    checks,
		logger:    logger,
		startTime: time.Now(),
		version:   version,
	}
}

// GetAggregatedStatus: 모든 의존 서비스 상태를 병렬로 수집한다.
func (c *Collector) GetAggregatedStatus(ctx context.Context) *AggregatedStatus {
	services := c.probeAll(ctx)

	available := 0
	for _, svc := range services {
		if svc.Available {
			available++
		}
	}

	return &AggregatedStatus{
		Version:           c.version,
		Uptime:            formatDuration(time.Since(c.startTime)),
		StartedAt:         c.startTime.Unix(),
		Goroutines:        runtime.NumGoroutine(),
		Services:          services,
		AvailableServices: available,
		TotalServices:     len(services),
	}
}

func (c *Collector) probeAll(ctx context.Context) []ServiceStatus {
	results := make([]ServiceStatus, len(c.checks))
	if len(c.checks) == 0 {
		return results
	}

	p := pool.New().WithMaxGoroutines(maxConcurrentProbe)
	for i, check := range c.checks {
		p.Go(func() {
			results[i] = c.probe(ctx, check)
		})
	}
	p.Wait()
	return results
}

func (c *Collector) probe(ctx context.Context, check Check) ServiceStatus {
	status := ServiceStatus{Name: check.Name}
	if check.Probe == nil {
		status.Error = "not configured"
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := check.Probe(probeCtx)
	status.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		status.Error = err.Error()
		c.logger.Debug("status_probe_failed", slog.String("service", check.Name), slog.Any("error", err))
		return status
	}
	status.Available = true
	return status
}

// formatDuration: time.Duration을 사람이 읽기 쉬운 형식으로 변환
func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
