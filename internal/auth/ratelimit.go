package auth

import (
	"sync"
	"time"
)

// 멤버 로그인 잠금 기준
const (
	loginMaxFailures   = 5
	loginFailureWindow = 5 * time.Minute
	loginLockout       = 15 * time.Minute
	loginSweepInterval = 10 * time.Minute
)

// LoginRateLimiter: 클라이언트 IP별 로그인 실패를 세어 반복 실패한 IP를 일정 시간 차단한다.
// 차단 중에는 자격 증명이 맞더라도 로그인 핸들러가 429를 돌려준다.
type LoginRateLimiter struct {
	mu          sync.Mutex
	failures    map[string]*failureRecord
	maxFailures int
	window      time.Duration
	lockout     time.Duration
	now         func() time.Time
}

// failureRecord: 한 IP의 현재 집계 구간
type failureRecord struct {
	count       int
	windowStart time.Time
	lockedUntil time.Time
}

// NewLoginRateLimiter: 멤버 로그인용 limiter. 5분 안에 5번 틀리면 그 IP는 15분 동안 로그인할 수 없다.
// 오래된 기록은 백그라운드에서 주기적으로 비운다.
func NewLoginRateLimiter() *LoginRateLimiter {
	l := newLoginRateLimiter(loginMaxFailures, loginFailureWindow, loginLockout)
	go l.sweepEvery(loginSweepInterval)
	return l
}

func newLoginRateLimiter(maxFailures int, window, lockout time.Duration) *LoginRateLimiter {
	return &LoginRateLimiter{
		failures:    make(map[string]*failureRecord),
		maxFailures: maxFailures,
		window:      window,
		lockout:     lockout,
		now:         time.Now,
	}
}

// IsAllowed: ip가 지금 로그인을 시도해도 되는지. 차단 중이면 false와 남은 차단 시간을 돌려준다.
// 집계 구간이 지났으면 실패 횟수를 0부터 다시 센다.
func (l *LoginRateLimiter) IsAllowed(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec := l.recordFor(ip, now)

	if now.Before(rec.lockedUntil) {
		return false, rec.lockedUntil.Sub(now)
	}
	if now.Sub(rec.windowStart) > l.window {
		*rec = failureRecord{windowStart: now}
	}
	return rec.count < l.maxFailures, 0
}

// RecordFailure: 잘못된 자격 증명 한 번을 기록하고 구간 내 누적 횟수를 반환한다.
// 한도에 닿는 순간 차단이 시작된다.
func (l *LoginRateLimiter) RecordFailure(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec := l.recordFor(ip, now)
	rec.count++
	if rec.count >= l.maxFailures {
		rec.lockedUntil = now.Add(l.lockout)
	}
	return rec.count
}

// RecordSuccess: 로그인에 성공한 ip의 실패 기록을 지운다.
func (l *LoginRateLimiter) RecordSuccess(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, ip)
}

// recordFor: mu를 잡은 상태에서 호출해야 한다.
func (l *LoginRateLimiter) recordFor(ip string, now time.Time) *failureRecord {
	rec, ok := l.failures[ip]
	if !ok {
		rec = &failureRecord{windowStart: now}
		l.failures[ip] = rec
	}
	return rec
}

func (l *LoginRateLimiter) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		l.sweep()
	}
}

// sweep: 집계 구간과 차단 시간이 모두 지난 기록을 지운다.
func (l *LoginRateLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for ip, rec := range l.failures {
		if now.Sub(rec.windowStart) > l.window+l.lockout {
			delete(l.failures, ip)
		}
	}
}
