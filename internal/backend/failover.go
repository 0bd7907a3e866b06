package backend

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ent0n29/saarthi/internal/observability"
)

// FailoverService prefers the primary service and switches to the fallback
// when a primary call fails. Once the fallback succeeds it stays active until
// it fails; then the primary is retried.
type FailoverService struct {
	primary        Service
	fallback       Service
	fallbackActive atomic.Bool
	logger         *zap.Logger
	metrics        *observability.Metrics
}

func NewFailoverService(primary, fallback Service, logger *zap.Logger, metrics *observability.Metrics) *FailoverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailoverService{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		metrics:  metrics,
	}
}

func (s *FailoverService) FallbackActive() bool {
	return s.fallbackActive.Load()
}

func (s *FailoverService) Health(ctx context.Context) error {
	_, err := failover(s, "health", func(svc Service) (struct{}, error) {
		return struct{}{}, svc.Health(ctx)
	})
	return err
}

func (s *FailoverService) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	return failover(s, "transcribe", func(svc Service) (string, error) {
		return svc.Transcribe(ctx, wav, language)
	})
}

func (s *FailoverService) Guidance(ctx context.Context, text, language string) (Guidance, error) {
	return failover(s, "guidance", func(svc Service) (Guidance, error) {
		return svc.Guidance(ctx, text, language)
	})
}

func (s *FailoverService) Synthesize(ctx context.Context, text, language string) (Audio, error) {
	return failover(s, "synthesize", func(svc Service) (Audio, error) {
		return svc.Synthesize(ctx, text, language)
	})
}

func failover[T any](s *FailoverService, op string, call func(Service) (T, error)) (T, error) {
	var zero T
	if s.fallbackActive.Load() {
		out, fbErr := call(s.fallback)
		if fbErr == nil {
			return out, nil
		}
		// Fallback failed after being active; try primary again.
		out, prErr := call(s.primary)
		if prErr == nil {
			s.fallbackActive.Store(false)
			s.logger.Info("backend primary restored", zap.String("op", op))
			return out, nil
		}
		return zero, fmt.Errorf("%s fallback failed: %v; %s primary failed: %w", op, fbErr, op, prErr)
	}

	out, prErr := call(s.primary)
	if prErr == nil {
		return out, nil
	}
	out, fbErr := call(s.fallback)
	if fbErr != nil {
		return zero, fmt.Errorf("%s primary failed: %v; %s fallback failed: %w", op, prErr, op, fbErr)
	}
	if !s.fallbackActive.Swap(true) {
		s.metrics.ObserveBackendFailover()
		s.logger.Warn("backend switched to fallback", zap.String("op", op), zap.Error(prErr))
	}
	return out, nil
}
