package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SupportedLanguages lists the language codes the remote service accepts.
var SupportedLanguages = []string{"en", "hi", "te"}

// Config contains all runtime settings for the voice client.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	BackendMode    string
	ServiceURL     string
	FallbackURL    string
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
	MaxRetries     int
	Language       string

	HealthCheckInterval time.Duration

	CaptureMode       string
	CaptureCommand    string
	CaptureFile       string
	CaptureSampleRate int

	PlaybackMode    string
	PlaybackCommand string
	PlaybackDir     string

	CacheCapacity     int
	CacheSlot         string
	CacheDir          string
	CachePreviewChars int
	DatabaseURL       string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load reads an optional .env file, then environment variables, and applies safe defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf(".env parse error: %w", err)
	}

	cfg := Config{
		BindAddr:         stringsTrimSpace("APP_BIND_ADDR"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "saarthi"),
		BackendMode:      envOrDefault("SAARTHI_BACKEND_MODE", "auto"),
		ServiceURL:       envOrDefault("SAARTHI_SERVICE_URL", "http://127.0.0.1:5000"),
		FallbackURL:      stringsTrimSpace("SAARTHI_FALLBACK_URL"),
		Language:         strings.ToLower(envOrDefault("SAARTHI_LANGUAGE", "en")),
		CaptureMode:      envOrDefault("CAPTURE_MODE", "exec"),
		CaptureCommand:   envOrDefault("CAPTURE_COMMAND", "arecord"),
		CaptureFile:      stringsTrimSpace("CAPTURE_FILE"),
		PlaybackMode:     envOrDefault("PLAYBACK_MODE", "exec"),
		PlaybackCommand:  envOrDefault("PLAYBACK_COMMAND", "ffplay"),
		PlaybackDir:      envOrDefault("PLAYBACK_DIR", ".saarthi/audio"),
		// Same slot name the browser client used for localStorage.
		CacheSlot:   envOrDefault("CACHE_SLOT", "saarthiCache"),
		CacheDir:    envOrDefault("CACHE_DIR", ".saarthi"),
		DatabaseURL: stringsTrimSpace("DATABASE_URL"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		LogFormat:   envOrDefault("LOG_FORMAT", "console"),
		LogFile:     stringsTrimSpace("LOG_FILE"),

		ShutdownTimeout:     5 * time.Second,
		RequestTimeout:      60 * time.Second,
		HealthTimeout:       5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		CaptureSampleRate:   16000,
		CacheCapacity:       5,
		CachePreviewChars:   100,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.RequestTimeout, err = durationFromEnv("SAARTHI_REQUEST_TIMEOUT", cfg.RequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HealthTimeout, err = durationFromEnv("SAARTHI_HEALTH_TIMEOUT", cfg.HealthTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxRetries, err = intFromEnv("SAARTHI_MAX_RETRIES", cfg.MaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.HealthCheckInterval, err = durationFromEnv("HEALTH_CHECK_INTERVAL", cfg.HealthCheckInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureSampleRate, err = intFromEnv("CAPTURE_SAMPLE_RATE", cfg.CaptureSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.CacheCapacity, err = intFromEnv("CACHE_CAPACITY", cfg.CacheCapacity)
	if err != nil {
		return Config{}, err
	}
	cfg.CachePreviewChars, err = intFromEnv("CACHE_PREVIEW_CHARS", cfg.CachePreviewChars)
	if err != nil {
		return Config{}, err
	}

	if !IsSupportedLanguage(cfg.Language) {
		return Config{}, fmt.Errorf("SAARTHI_LANGUAGE must be one of %s", strings.Join(SupportedLanguages, "|"))
	}
	if cfg.HealthCheckInterval < time.Second {
		return Config{}, fmt.Errorf("HEALTH_CHECK_INTERVAL must be at least 1s")
	}
	if cfg.MaxRetries < 0 {
		return Config{}, fmt.Errorf("SAARTHI_MAX_RETRIES must be >= 0")
	}
	if cfg.CaptureSampleRate <= 0 {
		return Config{}, fmt.Errorf("CAPTURE_SAMPLE_RATE must be positive")
	}
	if cfg.CacheCapacity <= 0 {
		return Config{}, fmt.Errorf("CACHE_CAPACITY must be positive")
	}
	if cfg.CachePreviewChars <= 0 {
		return Config{}, fmt.Errorf("CACHE_PREVIEW_CHARS must be positive")
	}
	switch strings.ToLower(cfg.CaptureMode) {
	case "exec", "file":
	default:
		return Config{}, fmt.Errorf("CAPTURE_MODE must be exec|file, got %q", cfg.CaptureMode)
	}
	if strings.EqualFold(cfg.CaptureMode, "file") && cfg.CaptureFile == "" {
		return Config{}, fmt.Errorf("CAPTURE_FILE is required when CAPTURE_MODE=file")
	}
	switch strings.ToLower(cfg.PlaybackMode) {
	case "exec", "file", "none":
	default:
		return Config{}, fmt.Errorf("PLAYBACK_MODE must be exec|file|none, got %q", cfg.PlaybackMode)
	}

	return cfg, nil
}

// IsSupportedLanguage reports whether code is accepted by the remote service.
func IsSupportedLanguage(code string) bool {
	for _, l := range SupportedLanguages {
		if l == code {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
