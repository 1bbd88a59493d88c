package status

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStats: 시스템 리소스 통계 (WebSocket 스트리밍용)
type SystemStats struct {
	CPUUsage    float64 `json:"cpuUsage"`    // CPU 사용률 (%)
	MemoryUsage float64 `json:"memoryUsage"` // 메모리 사용률 (%)
	MemoryTotal uint64  `json:"memoryTotal"` // 전체 메모리 (Bytes)
	MemoryUsed  uint64  `json:"memoryUsed"`  // 사용 중인 메모리 (Bytes)
	Goroutines  int     `json:"goroutines"`  // 현재 프로세스 Go 루틴 개수
	Timestamp   int64   `json:"timestamp"`
}

// GetSystemStats: 현재 시스템 리소스 상태를 반환합니다.
func (c *Collector) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read memory stats: %w", err)
	}

	// CPU 사용률 (즉시 반환)
	cpus, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("read cpu stats: %w", err)
	}

	var cpuUsage float64
	if len(cpus) > 0 {
		cpuUsage = cpus[0]
	}

	return &SystemStats{
		CPUUsage:    cpuUsage,
		MemoryUsage: v.UsedPercent,
		MemoryTotal: v.Total,
		MemoryUsed:  v.Used,
		Goroutines:  runtime.NumGoroutine(),
		Timestamp:   time.Now().Unix(),
	}, nil
}

// StreamSystemStats: interval마다 시스템 통계를 채널로 전송합니다. (0 이하면 2초)
func (c *Collector) StreamSystemStats(ctx context.Context, interval time.Duration, out chan<- *SystemStats) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 최초 1회 즉시 전송
	if stats, err := c.GetSystemStats(ctx); err == nil {
		select {
		case out <- stats:
		case <-ctx.Done():
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := c.GetSystemStats(ctx)
			if err != nil {
				continue
			}
			select {
			case out <- stats:
			case <-ctx.Done():
				return
			}
		}
	}
}
