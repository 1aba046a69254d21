package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type HealthChecker struct {
	checks []HealthCheck
	mu     sync.RWMutex
	now    func() time.Time
}

type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Interval time.Duration
	Timeout  time.Duration
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make([]HealthCheck, 0),
		now:    time.Now,
	}
}

func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error, interval, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks = append(h.checks, HealthCheck{
		Name:     name,
		Check:    check,
		Interval: interval,
		Timeout:  timeout,
	})
}

// AddRedisCheck pings the decision bus backend.
func (h *HealthChecker) AddRedisCheck(client redis.UniversalClient, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, interval, timeout)
}

// ErrBreakerOpen is reported while the call handle circuit breaker
// rejects writes.
var ErrBreakerOpen = errors.New("call handle circuit breaker is open")

// AddBreakerCheck reports unhealthy while state() returns "open".
func (h *HealthChecker) AddBreakerCheck(state func() string, interval time.Duration) {
	h.AddCheck("call_handle", func(context.Context) error {
		if state() == "open" {
			return ErrBreakerOpen
		}
		return nil
	}, interval, time.Second)
}

func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: h.now(),
		Checks:    make(map[string]string, len(checks)),
	}

	for _, check := range checks {
		if err := runCheck(ctx, check); err != nil {
			status.Status = StatusUnhealthy
			status.Checks[check.Name] = err.Error()
			continue
		}
		status.Checks[check.Name] = StatusHealthy
	}

	return status
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == StatusHealthy
}

// StartBackgroundChecks runs every check on its interval until ctx is
// done, calling onFailure for each failed run.
func (h *HealthChecker) StartBackgroundChecks(ctx context.Context, onFailure func(name string, err error)) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, check := range h.checks {
		if check.Interval <= 0 {
			continue
		}
		go h.runCheckPeriodically(ctx, check, onFailure)
	}
}

func (h *HealthChecker) runCheckPeriodically(ctx context.Context, check HealthCheck, onFailure func(string, error)) {
	ticker := time.NewTicker(check.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := runCheck(ctx, check); err != nil && onFailure != nil {
				onFailure(check.Name, err)
			}
		}
	}
}

func runCheck(ctx context.Context, check HealthCheck) error {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return check.Check(checkCtx)
}
