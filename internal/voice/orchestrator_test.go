package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ent0n29/saarthi/internal/backend"
	"github.com/ent0n29/saarthi/internal/cache"
	"github.com/ent0n29/saarthi/internal/capture"
	"github.com/ent0n29/saarthi/internal/observability"
	"github.com/ent0n29/saarthi/internal/transcript"
	"go.uber.org/zap/zaptest"
)

type stubPipeline struct {
	utterance     string
	transcribeErr error
	guidance      backend.Guidance
	guidanceErr   error
	audio         backend.Audio
	synthErr      error

	transcribeCalls int
	guidanceCalls   int
	synthCalls      int
	lastLanguage    string
}

func (p *stubPipeline) Transcribe(_ context.Context, _ []byte, language string) (string, error) {
	p.transcribeCalls++
	p.lastLanguage = language
	return p.utterance, p.transcribeErr
}

func (p *stubPipeline) Guidance(_ context.Context, _ string, _ string) (backend.Guidance, error) {
	p.guidanceCalls++
	return p.guidance, p.guidanceErr
}

func (p *stubPipeline) Synthesize(_ context.Context, _ string, _ string) (backend.Audio, error) {
	p.synthCalls++
	return p.audio, p.synthErr
}

type stubConnectivity struct {
	online       bool
	offlineCalls int
}

func (c *stubConnectivity) Online() bool { return c.online }

func (c *stubConnectivity) SetOffline(string) {
	c.offlineCalls++
	c.online = false
}

type countingCache struct {
	*cache.ResponseCache
	loads int
}

func (c *countingCache) LoadAll(ctx context.Context) []cache.Exchange {
	c.loads++
	return c.ResponseCache.LoadAll(ctx)
}

type harness struct {
	pipeline *stubPipeline
	conn     *stubConnectivity
	cache    *countingCache
	rec      *transcript.Recorder
	window   *observability.StageWindow
	orch     *Orchestrator
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	h := &harness{
		pipeline: &stubPipeline{},
		conn:     &stubConnectivity{online: online},
		cache:    &countingCache{ResponseCache: cache.New(cache.NewMemoryStore(), 5, 100, nil, nil)},
		rec:      transcript.NewRecorder(0),
		window:   observability.NewStageWindow(16),
	}
	h.orch = NewOrchestrator(h.pipeline, h.cache, h.conn, h.rec, nil, h.window, zaptest.NewLogger(t))
	return h
}

func (h *harness) seedCache(n int) {
	for i := 1; i <= n; i++ {
		h.cache.Insert(context.Background(), cache.NewExchange(fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i), "general", "en"))
	}
}

func payload() capture.AudioPayload {
	return capture.AudioPayload{SessionID: "s1", Data: []byte("RIFF"), ContentType: "audio/wav", SampleRate: 16000}
}

func TestTurnLeftWithSilentSynthesisFailure(t *testing.T) {
	h := newHarness(t, true)
	h.pipeline.utterance = "turn left at the signal"
	h.pipeline.guidance = backend.Guidance{Text: "Take the next left", Intent: "navigation"}
	h.pipeline.synthErr = errors.New("tts unavailable")

	if err := h.orch.HandleCapturedAudio(context.Background(), payload(), "en"); err != nil {
		t.Fatalf("HandleCapturedAudio() error = %v", err)
	}

	msgs := h.rec.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != transcript.RoleUser || msgs[0].Text != "turn left at the signal" {
		t.Fatalf("user message = %+v, want corrected utterance", msgs[0])
	}
	if msgs[1].Role != transcript.RoleBot || msgs[1].Text != "Take the next left" || msgs[1].Intent != "navigation" {
		t.Fatalf("bot message = %+v", msgs[1])
	}
	entries := h.cache.Entries()
	if len(entries) != 1 || entries[0].Utterance != "turn left at the signal" || entries[0].Intent != "navigation" {
		t.Fatalf("cache entries = %+v", entries)
	}
	if len(h.rec.Played()) != 0 {
		t.Fatalf("played = %d, want 0", len(h.rec.Played()))
	}
	if h.conn.offlineCalls != 0 || !h.conn.online {
		t.Fatalf("connectivity changed by synthesis failure")
	}
	if !hasIndicator(h.window, indicatorSynthesisSkipped) {
		t.Fatalf("missing %s indicator", indicatorSynthesisSkipped)
	}
}

func TestFullPipelinePlaysAudio(t *testing.T) {
	h := newHarness(t, true)
	h.pipeline.utterance = "मुझे बुखार है"
	h.pipeline.guidance = backend.Guidance{Text: "आराम करें", Intent: "health"}
	h.pipeline.audio = backend.Audio{Data: []byte{0xff, 0xfb}, ContentType: "audio/mpeg"}

	if err := h.orch.HandleCapturedAudio(context.Background(), payload(), "hi"); err != nil {
		t.Fatalf("HandleCapturedAudio() error = %v", err)
	}
	if h.pipeline.lastLanguage != "hi" {
		t.Fatalf("language = %q, want hi", h.pipeline.lastLanguage)
	}
	played := h.rec.Played()
	if len(played) != 1 || played[0].ContentType != "audio/mpeg" {
		t.Fatalf("played = %+v, want one mpeg clip", played)
	}
	if got := h.cache.Entries()[0].Language; got != "hi" {
		t.Fatalf("cached language = %q, want hi", got)
	}
}

func TestTranscriptionFailureWhileOnline(t *testing.T) {
	h := newHarness(t, true)
	h.seedCache(3)
	h.pipeline.transcribeErr = errors.New("status 500")

	err := h.orch.HandleCapturedAudio(context.Background(), payload(), "en")
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("HandleCapturedAudio() error = %v, want ErrTranscriptionFailed", err)
	}

	msgs := h.rec.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Text != ProcessingPlaceholder {
		t.Fatalf("user message = %q, want placeholder kept", msgs[0].Text)
	}
	if msgs[1].Text != GenericErrorMessage || msgs[1].Intent != "general" {
		t.Fatalf("bot message = %+v, want generic error", msgs[1])
	}
	if h.cache.loads != 0 {
		t.Fatalf("cache loads = %d, want 0", h.cache.loads)
	}
	if h.pipeline.guidanceCalls != 0 || h.pipeline.synthCalls != 0 {
		t.Fatalf("later stages ran after transcription failure")
	}
	if h.conn.offlineCalls != 0 {
		t.Fatalf("transcription failure forced offline")
	}
}

func TestTranscriptionFailureWhileOfflineSummarizesCache(t *testing.T) {
	for _, size := range []int{2, 5, 7} {
		h := newHarness(t, false)
		h.seedCache(size)
		h.pipeline.transcribeErr = errors.New("dial tcp: connection refused")

		_ = h.orch.HandleCapturedAudio(context.Background(), payload(), "en")

		want := size
		if want > 5 {
			want = 5
		}
		msgs := h.rec.Messages()
		last := msgs[len(msgs)-1]
		header := fmt.Sprintf("Offline mode: Here are your last %d cached responses:", want)
		if !strings.HasPrefix(last.Text, header) {
			t.Fatalf("size %d: summary = %q, want prefix %q", size, last.Text, header)
		}
		if got := strings.Count(last.Text, "\n→ "); got != want {
			t.Fatalf("size %d: summary entries = %d, want %d", size, got, want)
		}
		if !strings.Contains(last.Text, fmt.Sprintf("1. question %d", size)) {
			t.Fatalf("size %d: summary not newest-first: %q", size, last.Text)
		}
		if h.cache.loads != 1 {
			t.Fatalf("size %d: cache loads = %d, want 1", size, h.cache.loads)
		}
	}
}

func TestGuidanceFailureForcesOfflineAndReplaysCache(t *testing.T) {
	h := newHarness(t, true)
	h.pipeline.utterance = "is there a flood warning"
	h.pipeline.guidanceErr = errors.New("context deadline exceeded")

	err := h.orch.HandleCapturedAudio(context.Background(), payload(), "en")
	if !errors.Is(err, ErrGuidanceFailed) {
		t.Fatalf("HandleCapturedAudio() error = %v, want ErrGuidanceFailed", err)
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != observability.StageGuidance {
		t.Fatalf("error = %v, want guidance StageError", err)
	}
	if h.conn.offlineCalls != 1 || h.conn.online {
		t.Fatalf("guidance failure did not force offline")
	}

	msgs := h.rec.Messages()
	if msgs[0].Text != "is there a flood warning" {
		t.Fatalf("user message = %q, want transcribed text", msgs[0].Text)
	}
	last := msgs[len(msgs)-1]
	if last.Text != cache.EmptySummary || last.Intent != "general" {
		t.Fatalf("bot message = %+v, want empty-cache notice", last)
	}
	if h.cache.Len() != 0 {
		t.Fatalf("cache len = %d, want 0", h.cache.Len())
	}
	if h.pipeline.synthCalls != 0 {
		t.Fatalf("synthesis ran after guidance failure")
	}
}

func TestStageErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := error(&StageError{Stage: observability.StageTranscribe, Err: cause})
	if !errors.Is(err, cause) || !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("StageError does not match sentinel and cause: %v", err)
	}
	if errors.Is(err, ErrGuidanceFailed) {
		t.Fatalf("transcription StageError matched ErrGuidanceFailed")
	}
}

func TestLanguageSetting(t *testing.T) {
	l, err := NewLanguageSetting("EN")
	if err != nil {
		t.Fatalf("NewLanguageSetting() error = %v", err)
	}
	if l.Get() != "en" {
		t.Fatalf("Get() = %q, want en", l.Get())
	}
	if err := l.Set("te"); err != nil || l.Get() != "te" {
		t.Fatalf("Set(te) = %v, Get() = %q", err, l.Get())
	}
	if err := l.Set("fr"); !errors.Is(err, backend.ErrUnsupportedLanguage) {
		t.Fatalf("Set(fr) error = %v, want ErrUnsupportedLanguage", err)
	}
	if l.Get() != "te" {
		t.Fatalf("Get() after rejected Set = %q, want te", l.Get())
	}
}

func hasIndicator(w *observability.StageWindow, name string) bool {
	for _, ind := range w.Snapshot().Indicators {
		if ind.Name == name {
			return ind.Count > 0
		}
	}
	return false
}
