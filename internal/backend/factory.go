package backend

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/saarthi/internal/observability"
)

// Config controls service construction.
type Config struct {
	Mode           string
	ServiceURL     string
	FallbackURL    string
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
	MaxRetries     int
}

// NewService builds the remote service for cfg.Mode (auto|http|mock). A
// FallbackURL of "mock" fails over to the local keyword engine.
func NewService(cfg Config, logger *zap.Logger, metrics *observability.Metrics) (Service, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	var primary Service
	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.ServiceURL) == "" {
			return NewMockService(), nil
		}
		primary = NewClient(cfg.ServiceURL, cfg.RequestTimeout, cfg.HealthTimeout, cfg.MaxRetries, logger)
	case "http":
		if strings.TrimSpace(cfg.ServiceURL) == "" {
			return nil, fmt.Errorf("service url is required for http mode")
		}
		primary = NewClient(cfg.ServiceURL, cfg.RequestTimeout, cfg.HealthTimeout, cfg.MaxRetries, logger)
	case "mock":
		return NewMockService(), nil
	default:
		return nil, fmt.Errorf("unsupported backend mode %q", cfg.Mode)
	}

	fallbackURL := strings.TrimSpace(cfg.FallbackURL)
	switch {
	case fallbackURL == "":
		return primary, nil
	case strings.EqualFold(fallbackURL, "mock"):
		return NewFailoverService(primary, NewMockService(), logger, metrics), nil
	default:
		fallback := NewClient(fallbackURL, cfg.RequestTimeout, cfg.HealthTimeout, cfg.MaxRetries, logger)
		return NewFailoverService(primary, fallback, logger, metrics), nil
	}
}
