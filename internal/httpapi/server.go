package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/saarthi/internal/backend"
	"github.com/ent0n29/saarthi/internal/cache"
	"github.com/ent0n29/saarthi/internal/capture"
	"github.com/ent0n29/saarthi/internal/config"
	"github.com/ent0n29/saarthi/internal/health"
	"github.com/ent0n29/saarthi/internal/observability"
	"github.com/ent0n29/saarthi/internal/protocol"
	"github.com/ent0n29/saarthi/internal/transcript"
)

// Capture drives the microphone the same way the console does.
type Capture interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Toggle(ctx context.Context) error
	State() capture.State
}

type Connectivity interface {
	Status() health.Status
}

type CacheView interface {
	Entries() []cache.Exchange
	Capacity() int
	Summarize(limit int) string
}

type TranscriptLog interface {
	Messages() []transcript.Message
}

type Language interface {
	Get() string
	Set(code string) error
}

// Broadcaster is the live transcript feed behind /v1/transcript/ws.
type Broadcaster interface {
	Subscribe() (uint64, <-chan any)
	Unsubscribe(id uint64)
	Send(id uint64, msg any) bool
	PublishStatus(online bool, captureState, language string)
}

type Deps struct {
	Capture      Capture
	Connectivity Connectivity
	Cache        CacheView
	Transcript   TranscriptLog
	Language     Language
	Hub          Broadcaster
}

type Server struct {
	cfg      config.Config
	deps     Deps
	metrics  *observability.Metrics
	stages   *observability.StageWindow
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, deps Deps, metrics *observability.Metrics, stages *observability.StageWindow, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		deps:    deps,
		metrics: metrics,
		stages:  stages,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the microphone.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/status", s.handleStatus)
	r.Post("/v1/capture/start", s.handleCaptureStart)
	r.Post("/v1/capture/stop", s.handleCaptureStop)
	r.Post("/v1/capture/toggle", s.handleCaptureToggle)
	r.Put("/v1/language", s.handleSetLanguage)
	r.Get("/v1/cache", s.handleCache)
	r.Get("/v1/transcript", s.handleTranscript)
	r.Get("/v1/transcript/ws", s.handleTranscriptWS)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

// PublishStatus pushes the current connectivity, capture state and language
// to every transcript subscriber.
func (s *Server) PublishStatus() {
	if s.deps.Hub == nil {
		return
	}
	st := s.status()
	s.deps.Hub.PublishStatus(st.Online, st.CaptureState, st.Language)
}

type statusResponse struct {
	Online       bool      `json:"online"`
	LastCheckAt  time.Time `json:"last_check_at,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	CaptureState string    `json:"capture_state"`
	Language     string    `json:"language"`
	CacheEntries int       `json:"cache_entries"`
}

func (s *Server) status() statusResponse {
	out := statusResponse{Online: true, CaptureState: string(capture.StateIdle)}
	if s.deps.Connectivity != nil {
		st := s.deps.Connectivity.Status()
		out.Online = st.Online
		out.LastCheckAt = st.LastCheckAt
		out.LastError = st.LastError
	}
	if s.deps.Capture != nil {
		out.CaptureState = string(s.deps.Capture.State())
	}
	if s.deps.Language != nil {
		out.Language = s.deps.Language.Get()
	}
	if s.deps.Cache != nil {
		out.CacheEntries = len(s.deps.Cache.Entries())
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	s.runCapture(w, r, protocol.ActionStart)
}

func (s *Server) handleCaptureStop(w http.ResponseWriter, r *http.Request) {
	s.runCapture(w, r, protocol.ActionStop)
}

func (s *Server) handleCaptureToggle(w http.ResponseWriter, r *http.Request) {
	s.runCapture(w, r, protocol.ActionToggle)
}

func (s *Server) runCapture(w http.ResponseWriter, r *http.Request, action string) {
	if s.deps.Capture == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "capture not configured")
		return
	}
	// Stop runs the whole pipeline; a client hanging up must not cancel it.
	if err := s.captureAction(context.WithoutCancel(r.Context()), action); err != nil {
		status, code := captureErrorStatus(err)
		respondError(w, status, code, err.Error())
		return
	}
	s.PublishStatus()
	respondJSON(w, http.StatusOK, s.status())
}

func (s *Server) captureAction(ctx context.Context, action string) error {
	switch action {
	case protocol.ActionStart:
		return s.deps.Capture.Start(ctx)
	case protocol.ActionStop:
		return s.deps.Capture.Stop(ctx)
	default:
		return s.deps.Capture.Toggle(ctx)
	}
}

func captureErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, capture.ErrAlreadyRecording):
		return http.StatusConflict, "already_recording"
	case errors.Is(err, capture.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable, "device_unavailable"
	default:
		return http.StatusInternalServerError, "capture_failed"
	}
}

type languageRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Language == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "language not configured")
		return
	}
	var req languageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.deps.Language.Set(req.Language); err != nil {
		respondError(w, http.StatusBadRequest, "unsupported_language", err.Error())
		return
	}
	s.PublishStatus()
	respondJSON(w, http.StatusOK, s.status())
}

type cacheResponse struct {
	Capacity int              `json:"capacity"`
	Entries  []cache.Exchange `json:"entries"`
	Summary  string           `json:"summary"`
}

func (s *Server) handleCache(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Cache == nil {
		respondJSON(w, http.StatusOK, cacheResponse{Entries: []cache.Exchange{}, Summary: cache.EmptySummary})
		return
	}
	entries := s.deps.Cache.Entries()
	if entries == nil {
		entries = []cache.Exchange{}
	}
	respondJSON(w, http.StatusOK, cacheResponse{
		Capacity: s.deps.Cache.Capacity(),
		Entries:  entries,
		Summary:  s.deps.Cache.Summarize(s.deps.Cache.Capacity()),
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	msgs := []transcript.Message{}
	if s.deps.Transcript != nil {
		msgs = append(msgs, s.deps.Transcript.Messages()...)
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleTranscriptWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "transcript feed not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id, outbound := s.deps.Hub.Subscribe()
	defer s.deps.Hub.Unsubscribe(id)
	s.logger.Debug("transcript subscriber connected", zap.Uint64("subscriber", id))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.sendError(id, "invalid_client_message", err.Error())
			continue
		}
		s.handleClientMessage(ctx, id, parsed)
	}

	cancel()
	<-writerDone
	s.logger.Debug("transcript subscriber disconnected", zap.Uint64("subscriber", id))
}

func (s *Server) handleClientMessage(ctx context.Context, id uint64, msg any) {
	switch m := msg.(type) {
	case protocol.ClientControl:
		if s.deps.Capture == nil {
			s.sendError(id, "unavailable", "capture not configured")
			return
		}
		// The pipeline runs inside Stop; keep reading while it does.
		go func() {
			if err := s.captureAction(context.WithoutCancel(ctx), m.Action); err != nil {
				_, code := captureErrorStatus(err)
				s.sendError(id, code, err.Error())
				return
			}
			s.PublishStatus()
		}()
	case protocol.ClientLanguage:
		if s.deps.Language == nil {
			s.sendError(id, "unavailable", "language not configured")
			return
		}
		if err := s.deps.Language.Set(m.Language); err != nil {
			code := "invalid_language"
			if errors.Is(err, backend.ErrUnsupportedLanguage) {
				code = "unsupported_language"
			}
			s.sendError(id, code, err.Error())
			return
		}
		s.PublishStatus()
	}
}

func (s *Server) sendError(id uint64, code, detail string) {
	// Drop if the subscriber queue is saturated; the writer goroutine owns the socket.
	_ = s.deps.Hub.Send(id, protocol.ErrorEvent{
		Type:   protocol.TypeErrorEvent,
		Code:   code,
		Detail: detail,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
