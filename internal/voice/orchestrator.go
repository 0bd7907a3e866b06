// Package voice sequences one capture cycle through the remote pipeline:
// transcribe, guidance, synthesize. It renders the exchange into the
// transcript and falls back to cached exchanges while offline.
package voice

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/saarthi/internal/cache"
	"github.com/ent0n29/saarthi/internal/capture"
	"github.com/ent0n29/saarthi/internal/observability"
	"github.com/ent0n29/saarthi/internal/policy"
	"github.com/ent0n29/saarthi/internal/transcript"
)

const (
	ProcessingPlaceholder = "Processing your voice..."
	GenericErrorMessage   = "Sorry, there was an error processing your request. Please try again."

	fallbackIntent = "general"
)

const (
	indicatorOfflineFallback  = "offline_fallback"
	indicatorSynthesisSkipped = "synthesis_skipped"
	indicatorEmptyUtterance   = "empty_utterance"
)

type Orchestrator struct {
	pipeline     Pipeline
	cache        ExchangeCache
	connectivity Connectivity
	sink         transcript.Sink
	metrics      *observability.Metrics
	stages       *observability.StageWindow
	logger       *zap.Logger
}

func NewOrchestrator(
	pipeline Pipeline,
	exchangeCache ExchangeCache,
	connectivity Connectivity,
	sink transcript.Sink,
	metrics *observability.Metrics,
	stages *observability.StageWindow,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		pipeline:     pipeline,
		cache:        exchangeCache,
		connectivity: connectivity,
		sink:         sink,
		metrics:      metrics,
		stages:       stages,
		logger:       logger,
	}
}

// turn carries one capture cycle through the stages.
type turn struct {
	payload   capture.AudioPayload
	language  string
	utterance string
	guidance  string
	intent    string
}

type stage struct {
	name string
	run  func(ctx context.Context, t *turn) error
	// optional stages fail silently and end the run without a failure message.
	optional bool
}

func (o *Orchestrator) pipelineStages() []stage {
	return []stage{
		{name: observability.StageTranscribe, run: o.transcribe},
		{name: observability.StageGuidance, run: o.guide},
		{name: observability.StageSynthesize, run: o.synthesize, optional: true},
	}
}

// HandleCapturedAudio runs one payload through the pipeline. The transcript
// has already been updated when it returns; the error is informational.
func (o *Orchestrator) HandleCapturedAudio(ctx context.Context, payload capture.AudioPayload, language string) error {
	started := time.Now()
	t := &turn{payload: payload, language: language}
	log := o.logger.With(zap.String("session_id", payload.SessionID), zap.String("language", language))

	o.sink.AppendMessage(transcript.RoleUser, ProcessingPlaceholder, "")

	for _, st := range o.pipelineStages() {
		stageStart := time.Now()
		err := st.run(ctx, t)
		o.observeStage(st.name, time.Since(stageStart))
		if err == nil {
			continue
		}
		o.metrics.ObserveStageFailure(st.name)
		if st.optional {
			o.stages.ObserveIndicator(indicatorSynthesisSkipped)
			log.Info("optional pipeline stage failed", zap.String("stage", st.name), zap.Error(err))
			break
		}
		stageErr := &StageError{Stage: st.name, Err: err}
		log.Warn("pipeline stage failed", zap.String("stage", st.name), zap.Error(err))
		o.observeStage(observability.StagePipelineTotal, time.Since(started))
		return o.handleFailure(ctx, stageErr)
	}

	o.observeStage(observability.StagePipelineTotal, time.Since(started))
	o.metrics.ObservePipelineRun("ok")
	log.Info("pipeline completed", zap.String("intent", t.intent), zap.Duration("elapsed", time.Since(started)))
	return nil
}

func (o *Orchestrator) transcribe(ctx context.Context, t *turn) error {
	text, err := o.pipeline.Transcribe(ctx, t.payload.Data, t.language)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		o.stages.ObserveIndicator(indicatorEmptyUtterance)
	}
	t.utterance = text
	o.sink.ReplaceLastUserMessage(text)
	if ce := o.logger.Check(zap.DebugLevel, "utterance transcribed"); ce != nil {
		redacted, _ := policy.RedactPII(text)
		ce.Write(zap.String("session_id", t.payload.SessionID), zap.String("text", redacted))
	}
	return nil
}

func (o *Orchestrator) guide(ctx context.Context, t *turn) error {
	g, err := o.pipeline.Guidance(ctx, t.utterance, t.language)
	if err != nil {
		return err
	}
	t.guidance = g.Text
	t.intent = g.Intent
	o.sink.AppendMessage(transcript.RoleBot, g.Text, g.Intent)
	o.cache.Insert(ctx, cache.NewExchange(t.utterance, g.Text, g.Intent, t.language))
	return nil
}

func (o *Orchestrator) synthesize(ctx context.Context, t *turn) error {
	a, err := o.pipeline.Synthesize(ctx, t.utterance, t.language)
	if err != nil {
		return err
	}
	o.sink.PlayAudio(transcript.Audio{Data: a.Data, ContentType: a.ContentType})
	return nil
}

// handleFailure renders the failure for the user. A guidance failure marks
// the service offline; either failure then replays the cache while offline.
func (o *Orchestrator) handleFailure(ctx context.Context, err *StageError) error {
	if errors.Is(err, ErrGuidanceFailed) {
		o.connectivity.SetOffline("guidance request failed")
	}

	if o.connectivity.Online() {
		o.metrics.ObservePipelineRun("error")
		o.sink.AppendMessage(transcript.RoleBot, GenericErrorMessage, fallbackIntent)
		return err
	}

	o.metrics.ObservePipelineRun("offline_fallback")
	o.stages.ObserveIndicator(indicatorOfflineFallback)
	entries := o.cache.LoadAll(ctx)
	if len(entries) == 0 {
		o.sink.AppendMessage(transcript.RoleBot, cache.EmptySummary, fallbackIntent)
		return err
	}
	o.sink.AppendMessage(transcript.RoleBot, o.cache.Summarize(o.cache.Capacity()), fallbackIntent)
	return err
}

func (o *Orchestrator) observeStage(name string, d time.Duration) {
	o.metrics.ObserveStageLatency(name, d)
	o.stages.Observe(name, d)
}

func stageSentinel(stage string) error {
	switch stage {
	case observability.StageTranscribe:
		return ErrTranscriptionFailed
	case observability.StageGuidance:
		return ErrGuidanceFailed
	default:
		return nil
	}
}
