// Package capture owns the microphone: an Idle/Recording state machine over a
// capture Device that turns one recording into one WAV AudioPayload.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/saarthi/internal/audio"
	"github.com/ent0n29/saarthi/internal/observability"
)

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// AudioPayload is one finalized recording. It is produced once per session and
// must not be mutated by consumers.
type AudioPayload struct {
	SessionID   string
	Data        []byte
	ContentType string
	SampleRate  int
	Fragments   int
	StartedAt   time.Time
	StoppedAt   time.Time
}

func (p AudioPayload) Duration() time.Duration {
	return p.StoppedAt.Sub(p.StartedAt)
}

// Handler consumes a finalized payload. The controller calls it synchronously
// from Stop and rejects new recordings until it returns.
type Handler func(ctx context.Context, payload AudioPayload)

type session struct {
	id        string
	startedAt time.Time
	stream    Stream
	fragments [][]byte
	pumped    chan struct{}
}

// pump is the only writer of s.fragments; readers wait on s.pumped.
func (s *session) pump() {
	defer close(s.pumped)
	for frag := range s.stream.Fragments() {
		if len(frag) == 0 {
			continue
		}
		s.fragments = append(s.fragments, frag)
	}
}

type Controller struct {
	device     Device
	handler    Handler
	sampleRate int
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time

	mu         sync.Mutex
	state      State
	finalizing bool
	current    *session
}

func NewController(device Device, handler Handler, sampleRate int, logger *zap.Logger, metrics *observability.Metrics) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Controller{
		device:     device,
		handler:    handler,
		sampleRate: sampleRate,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
		state:      StateIdle,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens the device and begins accumulating fragments.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRecording {
		c.metrics.ObserveCaptureEvent("start_rejected")
		return ErrAlreadyRecording
	}
	if c.finalizing {
		c.metrics.ObserveCaptureEvent("start_rejected")
		return ErrBusy
	}

	stream, err := c.device.Open(ctx, c.sampleRate)
	if err != nil {
		c.metrics.ObserveCaptureEvent("device_unavailable")
		c.logger.Warn("capture device open failed", zap.Error(err))
		if errors.Is(err, ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s := &session{
		id:        uuid.NewString(),
		startedAt: c.now(),
		stream:    stream,
		pumped:    make(chan struct{}),
	}
	go s.pump()

	c.current = s
	c.state = StateRecording
	c.metrics.ObserveCaptureEvent("start")
	c.logger.Info("recording started", zap.String("session_id", s.id))
	return nil
}

// Stop releases the device, finalizes the recording and hands it to the
// handler. Calling Stop while Idle does nothing.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecording || c.current == nil {
		c.mu.Unlock()
		return nil
	}

	s := c.current
	if err := s.stream.Close(); err != nil {
		c.logger.Warn("capture stream close failed", zap.String("session_id", s.id), zap.Error(err))
	}
	<-s.pumped

	payload, err := c.finalize(s)
	c.current = nil
	c.state = StateIdle
	if err != nil {
		c.mu.Unlock()
		c.metrics.ObserveCaptureEvent("finalize_failed")
		c.logger.Error("recording finalize failed", zap.String("session_id", s.id), zap.Error(err))
		return fmt.Errorf("finalize recording: %w", err)
	}
	c.finalizing = true
	c.mu.Unlock()

	c.metrics.ObserveCaptureEvent("stop")
	c.logger.Info("recording stopped",
		zap.String("session_id", payload.SessionID),
		zap.Int("fragments", payload.Fragments),
		zap.Duration("duration", payload.Duration()),
	)

	defer func() {
		c.mu.Lock()
		c.finalizing = false
		c.mu.Unlock()
	}()
	if c.handler != nil {
		c.handler(ctx, payload)
	}
	return nil
}

// Toggle starts a recording when Idle and stops it when Recording.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.State() == StateRecording {
		return c.Stop(ctx)
	}
	return c.Start(ctx)
}

func (c *Controller) finalize(s *session) (AudioPayload, error) {
	defer func() { s.fragments = nil }()

	var pcm bytes.Buffer
	for _, frag := range s.fragments {
		pcm.Write(frag)
	}
	raw := pcm.Bytes()
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}

	rate := s.stream.SampleRate()
	if rate <= 0 {
		rate = c.sampleRate
	}
	wav, err := audio.EncodeWAVPCM16LE(raw, rate)
	if err != nil {
		return AudioPayload{}, err
	}
	return AudioPayload{
		SessionID:   s.id,
		Data:        wav,
		ContentType: audio.ContentTypeWAV,
		SampleRate:  rate,
		Fragments:   len(s.fragments),
		StartedAt:   s.startedAt,
		StoppedAt:   c.now(),
	}, nil
}
