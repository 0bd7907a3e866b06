package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/ent0n29/saarthi/internal/backend"
	"github.com/ent0n29/saarthi/internal/cache"
	"github.com/ent0n29/saarthi/internal/capture"
	"github.com/ent0n29/saarthi/internal/config"
	"github.com/ent0n29/saarthi/internal/health"
	"github.com/ent0n29/saarthi/internal/httpapi"
	"github.com/ent0n29/saarthi/internal/logging"
	"github.com/ent0n29/saarthi/internal/observability"
	"github.com/ent0n29/saarthi/internal/policy"
	"github.com/ent0n29/saarthi/internal/transcript"
	"github.com/ent0n29/saarthi/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("saarthi exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	stages := observability.NewStageWindow(0)

	service, err := backend.NewService(backend.Config{
		Mode:           cfg.BackendMode,
		ServiceURL:     cfg.ServiceURL,
		FallbackURL:    cfg.FallbackURL,
		RequestTimeout: cfg.RequestTimeout,
		HealthTimeout:  cfg.HealthTimeout,
		MaxRetries:     cfg.MaxRetries,
	}, logger.Named("backend"), metrics)
	if err != nil {
		return fmt.Errorf("backend init failed: %w", err)
	}
	monitor := health.NewMonitor(service, cfg.HealthCheckInterval, logger.Named("health"), metrics)

	store, err := cache.NewStore(runCtx, cfg.DatabaseURL, cfg.CacheDir, cfg.CacheSlot)
	if err != nil {
		return fmt.Errorf("cache store init failed: %w", err)
	}
	defer store.Close()
	responses := cache.New(store, cfg.CacheCapacity, cfg.CachePreviewChars, logger.Named("cache"), metrics)
	loaded := responses.LoadAll(runCtx)
	logger.Info("response cache loaded",
		zap.Int("entries", len(loaded)),
		zap.Int("capacity", responses.Capacity()),
		zap.String("database_url", policy.RedactURL(cfg.DatabaseURL)),
		zap.String("cache_dir", cfg.CacheDir),
	)

	console := transcript.NewConsole(os.Stdout)
	recorder := transcript.NewRecorder(0)
	hub := transcript.NewHub(metrics)
	sinks := transcript.Fanout{console, recorder, hub}
	if player := newPlayer(cfg); player != nil {
		sinks = append(sinks, transcript.NewSpeaker(runCtx, player, logger.Named("playback")))
	}

	lang, err := voice.NewLanguageSetting(cfg.Language)
	if err != nil {
		return err
	}
	orchestrator := voice.NewOrchestrator(service, responses, monitor, sinks, metrics, stages, logger.Named("pipeline"))

	controller := capture.NewController(
		newDevice(cfg, logger.Named("capture")),
		func(ctx context.Context, payload capture.AudioPayload) {
			_ = orchestrator.HandleCapturedAudio(ctx, payload, lang.Get())
		},
		cfg.CaptureSampleRate,
		logger.Named("capture"),
		metrics,
	)

	api := httpapi.New(cfg, httpapi.Deps{
		Capture:      controller,
		Connectivity: monitor,
		Cache:        responses,
		Transcript:   recorder,
		Language:     lang,
		Hub:          hub,
	}, metrics, stages, logger.Named("http"))

	monitor.Subscribe(func(online bool) {
		if online {
			console.Notice("Online")
		} else {
			console.Notice("Offline: answers will come from your last cached responses")
		}
		api.PublishStatus()
	})

	var httpServer *http.Server
	if cfg.BindAddr != "" {
		httpServer = &http.Server{Addr: cfg.BindAddr, Handler: api.Router()}
	}

	var wg conc.WaitGroup
	wg.Go(func() { monitor.Run(runCtx) })
	if httpServer != nil {
		wg.Go(func() {
			logger.Info("control api listening", zap.String("addr", cfg.BindAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("control api listen failed", zap.Error(err))
				stop()
			}
		})
	}

	// Stdin reads cannot be interrupted, so the console runs outside the wait group.
	go func() {
		err := runConsole(runCtx, os.Stdin, consoleDeps{
			capture:  controller,
			language: lang,
			cache:    responses,
			status:   monitor.Status,
			notice:   console.Notice,
			changed:  api.PublishStatus,
		})
		if errors.Is(err, io.EOF) && httpServer != nil {
			logger.Info("console input closed; control api keeps running")
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			logger.Warn("console input failed", zap.Error(err))
		}
		stop()
	}()

	<-runCtx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if controller.State() == capture.StateRecording {
		// Release the microphone; the last utterance still goes through the pipeline.
		if err := controller.Stop(shutdownCtx); err != nil {
			logger.Warn("capture stop failed", zap.Error(err))
		}
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
			_ = httpServer.Close()
		}
	}
	wg.Wait()

	logger.Info("shutdown complete")
	return nil
}

func newDevice(cfg config.Config, logger *zap.Logger) capture.Device {
	if strings.EqualFold(cfg.CaptureMode, "file") {
		d := capture.NewFileDevice(cfg.CaptureFile)
		d.Realtime = true
		return d
	}
	return capture.NewExecDevice(cfg.CaptureCommand, logger)
}

func newPlayer(cfg config.Config) transcript.Player {
	switch strings.ToLower(cfg.PlaybackMode) {
	case "none":
		return nil
	case "file":
		return transcript.NewFilePlayer(cfg.PlaybackDir)
	default:
		return transcript.NewExecPlayer(cfg.PlaybackCommand)
	}
}
