package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/saarthi/internal/cache"
	"github.com/ent0n29/saarthi/internal/capture"
	"github.com/ent0n29/saarthi/internal/config"
	"github.com/ent0n29/saarthi/internal/health"
	"github.com/ent0n29/saarthi/internal/observability"
	"github.com/ent0n29/saarthi/internal/transcript"
	"github.com/ent0n29/saarthi/internal/voice"
)

type fakeCapture struct {
	mu       sync.Mutex
	state    capture.State
	startErr error
	stops    int
}

func (c *fakeCapture) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	if c.state == capture.StateRecording {
		return capture.ErrAlreadyRecording
	}
	c.state = capture.StateRecording
	return nil
}

func (c *fakeCapture) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == capture.StateRecording {
		c.stops++
	}
	c.state = capture.StateIdle
	return nil
}

func (c *fakeCapture) failStarts(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startErr = err
}

func (c *fakeCapture) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func (c *fakeCapture) Toggle(ctx context.Context) error {
	if c.State() == capture.StateRecording {
		return c.Stop(ctx)
	}
	return c.Start(ctx)
}

func (c *fakeCapture) State() capture.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == "" {
		return capture.StateIdle
	}
	return c.state
}

type fixedConnectivity struct{ status health.Status }

func (f fixedConnectivity) Status() health.Status { return f.status }

type testEnv struct {
	srv     *Server
	ts      *httptest.Server
	capture *fakeCapture
	cache   *cache.ResponseCache
	hub     *transcript.Hub
	rec     *transcript.Recorder
	lang    *voice.LanguageSetting
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	lang, err := voice.NewLanguageSetting("en")
	if err != nil {
		t.Fatalf("NewLanguageSetting() error = %v", err)
	}
	env := &testEnv{
		capture: &fakeCapture{},
		cache:   cache.New(cache.NewMemoryStore(), 5, 100, nil, nil),
		hub:     transcript.NewHub(nil),
		rec:     transcript.NewRecorder(0),
		lang:    lang,
	}
	env.srv = New(cfg, Deps{
		Capture:      env.capture,
		Connectivity: fixedConnectivity{status: health.Status{Online: false, LastError: "connection refused"}},
		Cache:        env.cache,
		Transcript:   env.rec,
		Language:     env.lang,
		Hub:          env.hub,
	}, nil, observability.NewStageWindow(8), nil)
	env.ts = httptest.NewServer(env.srv.Router())
	t.Cleanup(env.ts.Close)
	return env
}

func TestStatusAndCacheRoutes(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	env.cache.Insert(context.Background(), cache.NewExchange("will it rain", "Carry an umbrella", "climate", "en"))

	res, err := http.Get(env.ts.URL + "/v1/status")
	if err != nil {
		t.Fatalf("GET /v1/status error = %v", err)
	}
	defer res.Body.Close()
	var status statusResponse
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Online || status.LastError != "connection refused" {
		t.Fatalf("status = %+v, want offline with last error", status)
	}
	if status.CaptureState != "idle" || status.Language != "en" || status.CacheEntries != 1 {
		t.Fatalf("status = %+v", status)
	}

	res, err = http.Get(env.ts.URL + "/v1/cache")
	if err != nil {
		t.Fatalf("GET /v1/cache error = %v", err)
	}
	defer res.Body.Close()
	var cached cacheResponse
	if err := json.NewDecoder(res.Body).Decode(&cached); err != nil {
		t.Fatalf("decode cache: %v", err)
	}
	if cached.Capacity != 5 || len(cached.Entries) != 1 {
		t.Fatalf("cache = %+v, want one entry of capacity 5", cached)
	}
	if !strings.HasPrefix(cached.Summary, "Offline mode: Here are your last 1 cached responses:") {
		t.Fatalf("summary = %q", cached.Summary)
	}
}

func TestCaptureRoutes(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	res := post(t, env.ts.URL+"/v1/capture/start", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	res = post(t, env.ts.URL+"/v1/capture/start", nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second start status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
	res = post(t, env.ts.URL+"/v1/capture/stop", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if got := env.capture.stopCount(); got != 1 {
		t.Fatalf("stops = %d, want 1", got)
	}

	env.capture.failStarts(capture.ErrDeviceUnavailable)
	res = post(t, env.ts.URL+"/v1/capture/toggle", nil)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("toggle status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}
	var body errorResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != "device_unavailable" {
		t.Fatalf("code = %q, want device_unavailable", body.Code)
	}
}

func TestSetLanguage(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	req, _ := http.NewRequest(http.MethodPut, env.ts.URL+"/v1/language", strings.NewReader(`{"language":"fr"}`))
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /v1/language error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}

	req, _ = http.NewRequest(http.MethodPut, env.ts.URL+"/v1/language", strings.NewReader(`{"language":"te"}`))
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /v1/language error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if env.lang.Get() != "te" {
		t.Fatalf("language = %q, want te", env.lang.Get())
	}
}

func TestPerfLatency(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	env.srv.stages.Observe(observability.StageTranscribe, 1200*time.Millisecond)

	res, err := http.Get(env.ts.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET /v1/perf/latency error = %v", err)
	}
	defer res.Body.Close()
	var snap observability.StageSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Stages) == 0 {
		t.Fatalf("snapshot has no stages")
	}
}

func TestTranscriptWebSocket(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	env.srv.PublishStatus()

	conn := dialWS(t, env.ts.URL, nil)
	defer conn.Close()

	first := readEvent(t, conn)
	if first["type"] != "status_event" || first["online"] != false {
		t.Fatalf("first event = %+v, want offline status", first)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if evt := readEvent(t, conn); evt["type"] != "error_event" || evt["code"] != "invalid_client_message" {
		t.Fatalf("event = %+v, want invalid_client_message error", evt)
	}

	if err := conn.WriteJSON(map[string]string{"type": "client_language", "language": "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if evt := readEvent(t, conn); evt["type"] != "status_event" || evt["language"] != "hi" {
		t.Fatalf("event = %+v, want status with language hi", evt)
	}

	env.hub.AppendMessage(transcript.RoleBot, "Drink clean water", "health")
	evt := readEvent(t, conn)
	if evt["type"] != "transcript_message" || evt["text"] != "Drink clean water" || evt["intent"] != "health" {
		t.Fatalf("event = %+v, want bot transcript message", evt)
	}
}

func TestTranscriptWebSocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/transcript/ws"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatalf("Dial() with foreign origin succeeded")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("handshake response = %+v, want 403", res)
	}

	allowAny := newTestEnv(t, config.Config{AllowAnyOrigin: true})
	conn := dialWS(t, allowAny.ts.URL, header)
	conn.Close()
}

func post(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	res, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func dialWS(t *testing.T, baseURL string, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/v1/transcript/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt map[string]any
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return evt
}
