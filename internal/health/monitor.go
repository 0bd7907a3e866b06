// Package health tracks whether the remote guidance service is reachable.
package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/saarthi/internal/observability"
)

// Checker probes the remote liveness endpoint. Any error means unhealthy.
type Checker interface {
	Health(ctx context.Context) error
}

type Status struct {
	Online      bool      `json:"online"`
	LastCheckAt time.Time `json:"last_check_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Monitor owns the process-wide connectivity flag. It starts online and flips
// on every check result with no hysteresis.
type Monitor struct {
	checker  Checker
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics

	online atomic.Bool

	mu        sync.Mutex
	listeners []func(online bool)
	lastCheck time.Time
	lastError string
}

func NewMonitor(checker Checker, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m := &Monitor{
		checker:  checker,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
	m.online.Store(true)
	metrics.SetOnline(true)
	return m
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Subscribe registers fn to be called on every online/offline transition.
func (m *Monitor) Subscribe(fn func(online bool)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// CheckStatus probes the service once and returns the resulting state.
func (m *Monitor) CheckStatus(ctx context.Context) bool {
	err := m.checker.Health(ctx)
	healthy := err == nil
	m.metrics.ObserveHealthCheck(healthy)

	m.mu.Lock()
	m.lastCheck = time.Now().UTC()
	if err != nil {
		m.lastError = err.Error()
	} else {
		m.lastError = ""
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Debug("health check failed", zap.Error(err))
	}
	m.set(healthy, "health check")
	return healthy
}

// SetOffline forces the offline state until the next healthy check.
func (m *Monitor) SetOffline(reason string) {
	m.set(false, reason)
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Online:      m.online.Load(),
		LastCheckAt: m.lastCheck,
		LastError:   m.lastError,
	}
}

// Run checks immediately, then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.CheckStatus(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckStatus(ctx)
		}
	}
}

func (m *Monitor) set(online bool, reason string) {
	prev := m.online.Swap(online)
	m.metrics.SetOnline(online)
	if prev == online {
		return
	}

	if online {
		m.logger.Info("remote service online", zap.String("reason", reason))
	} else {
		m.logger.Warn("remote service offline", zap.String("reason", reason))
	}

	m.mu.Lock()
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(online)
	}
}
