// Package metrics: Prometheus 수집기 및 /metrics 스크레이프 라우트
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "member"

var (
	memberOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "멤버 작업 수 (operation, result별)",
	}, []string{"operation", "result"})

	memberOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "멤버 작업 소요 시간",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	backendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "외부 백엔드 요청 수 (api, status별)",
	}, []string{"api", "status"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "로그인 시도 수 (result별)",
	}, []string{"result"})
)

// ObserveMemberOperation: 멤버 작업 결과와 소요 시간을 기록합니다.
// result는 "ok" 또는 에러 코드(소문자)입니다.
func ObserveMemberOperation(operation, result string, elapsed time.Duration) {
	memberOperations.WithLabelValues(operation, result).Inc()
	memberOperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveBackendRequest: 외부 백엔드 요청을 기록합니다. status 0은 네트워크 오류입니다.
func ObserveBackendRequest(api string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	backendRequests.WithLabelValues(api, label).Inc()
}

// ObserveLogin: 로그인 결과를 기록합니다.
func ObserveLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}
