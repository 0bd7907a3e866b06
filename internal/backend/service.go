// Package backend talks to the remote guidance service: liveness,
// transcription, guidance and speech synthesis.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/saarthi/internal/config"
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

// Guidance is the service's answer to an utterance, tagged with the detected intent.
type Guidance struct {
	Text   string
	Intent string
}

// Audio is synthesized speech ready for playback.
type Audio struct {
	Data        []byte
	ContentType string
}

type HealthChecker interface {
	Health(ctx context.Context) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, language string) (string, error)
}

type GuidanceProvider interface {
	Guidance(ctx context.Context, text, language string) (Guidance, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) (Audio, error)
}

// Service is the full remote surface used by the client.
type Service interface {
	HealthChecker
	Transcriber
	GuidanceProvider
	Synthesizer
}

// StatusError reports a non-2xx response from the remote service.
type StatusError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("saarthi %s: http status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("saarthi %s: http status %d: %s", e.Op, e.StatusCode, e.Detail)
}

func validateLanguage(language string) error {
	if !config.IsSupportedLanguage(strings.ToLower(strings.TrimSpace(language))) {
		return fmt.Errorf("%w %q", ErrUnsupportedLanguage, language)
	}
	return nil
}
